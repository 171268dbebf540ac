package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FraudHistory feeds the fraud scorer's velocity and duplicate checks from
// stored payments.
type FraudHistory struct {
	repo Repository
}

func NewFraudHistory(repo Repository) *FraudHistory {
	return &FraudHistory{repo: repo}
}

func (h *FraudHistory) RecentAmounts(ctx context.Context, orgID, patientID uuid.UUID, since time.Time, exclude uuid.UUID) ([]decimal.Decimal, error) {
	return h.repo.RecentAmounts(ctx, orgID, patientID, since, exclude)
}
