package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Payment, int, error)
	// ListPosted returns completed, posted payments into bankAccountID with a
	// posted date in [from, to).
	ListPosted(ctx context.Context, orgID uuid.UUID, bankAccountID string, from, to time.Time) ([]*Payment, error)
	SetReconciliationStatus(ctx context.Context, id uuid.UUID, status ReconciliationStatus) error
	// RecentAmounts lists the patient's payment amounts initiated since,
	// excluding one payment.
	RecentAmounts(ctx context.Context, orgID, patientID uuid.UUID, since time.Time, exclude uuid.UUID) ([]decimal.Decimal, error)
}

type LedgerRepository interface {
	Create(ctx context.Context, e *LedgerEntry) error
	ListByPatient(ctx context.Context, orgID, patientID uuid.UUID) ([]*LedgerEntry, error)
}
