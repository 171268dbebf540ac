package fraud

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Detection) error
	GetByID(ctx context.Context, id uuid.UUID) (*Detection, error)
	// LatestForSubject returns the newest detection, which supersedes all
	// earlier ones for the subject.
	LatestForSubject(ctx context.Context, subjectType SubjectType, subjectID uuid.UUID) (*Detection, error)
	ListForSubject(ctx context.Context, subjectType SubjectType, subjectID uuid.UUID) ([]*Detection, error)
}
