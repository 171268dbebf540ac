package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/fraud"
)

type Service struct {
	payments Repository
	ledger   LedgerRepository
	executor *Executor
}

func NewService(payments Repository, ledger LedgerRepository, executor *Executor) *Service {
	return &Service{payments: payments, ledger: ledger, executor: executor}
}

// Create stores a new payment and executes it.
func (s *Service) Create(ctx context.Context, p *Payment) (*Payment, error) {
	p.ID = uuid.Nil
	return s.executor.Execute(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	return s.payments.ListByOrganization(ctx, orgID, limit, offset)
}

// Retry executes a payment still pending after a gateway failure.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, p)
}

// Post posts a completed payment. The flag is false when it was already
// posted.
func (s *Service) Post(ctx context.Context, id uuid.UUID) (*Payment, bool, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	posted, err := s.executor.AutoPost(ctx, p)
	return p, posted, err
}

func (s *Service) Review(ctx context.Context, id uuid.UUID, decision fraud.Decision, reviewer string) (*Payment, error) {
	return s.executor.Review(ctx, id, decision, reviewer)
}

func (s *Service) Ledger(ctx context.Context, orgID, patientID uuid.UUID) ([]*LedgerEntry, error) {
	return s.ledger.ListByPatient(ctx, orgID, patientID)
}
