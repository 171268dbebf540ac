package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *BankReconciliation) error
	GetByID(ctx context.Context, id uuid.UUID) (*BankReconciliation, error)
	Update(ctx context.Context, r *BankReconciliation) error
	// Previous returns the latest finished run for the account whose period
	// ends at or before the given time, or nil when there is none.
	Previous(ctx context.Context, orgID uuid.UUID, bankAccountID string, before time.Time) (*BankReconciliation, error)
	ListByAccount(ctx context.Context, orgID uuid.UUID, bankAccountID string) ([]*BankReconciliation, error)
}
