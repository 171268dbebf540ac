package claims

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	// GetForUpdate locks the row for the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, status Status, limit, offset int) ([]*Claim, int, error)
	ListByServiceDate(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*Claim, error)
}

type ValidationRepository interface {
	Create(ctx context.Context, r *ValidationResult) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*ValidationResult, error)
}

type BatchRepository interface {
	Create(ctx context.Context, b *SubmissionBatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*SubmissionBatch, error)
	Update(ctx context.Context, b *SubmissionBatch) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*SubmissionBatch, error)
}
