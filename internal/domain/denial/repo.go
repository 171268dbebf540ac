package denial

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error)
	Update(ctx context.Context, a *Analysis) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Analysis, error)
	// ListOpen returns unresolved analyses with the given disposition,
	// oldest first.
	ListOpen(ctx context.Context, orgID uuid.UUID, disposition Disposition) ([]*Analysis, error)
}

type AppealRepository interface {
	Create(ctx context.Context, a *Appeal) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Appeal, error)
}
