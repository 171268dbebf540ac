package fraud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

type mockRepo struct {
	mu    sync.Mutex
	items []*Detection
}

func (m *mockRepo) Create(_ context.Context, d *Detection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, d)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.items {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, failure.NotFound("fraud.detection", "detection not found")
}

func (m *mockRepo) LatestForSubject(_ context.Context, st SubjectType, id uuid.UUID) (*Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.items) - 1; i >= 0; i-- {
		if d := m.items[i]; d.SubjectType == st && d.SubjectID == id {
			return d, nil
		}
	}
	return nil, failure.NotFound("fraud.detection", "detection not found")
}

func (m *mockRepo) ListForSubject(_ context.Context, st SubjectType, id uuid.UUID) ([]*Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Detection
	for _, d := range m.items {
		if d.SubjectType == st && d.SubjectID == id {
			out = append(out, d)
		}
	}
	return out, nil
}

type stubHistory struct {
	amounts []decimal.Decimal
	err     error
	since   time.Time
}

func (h *stubHistory) RecentAmounts(_ context.Context, _, _ uuid.UUID, since time.Time, _ uuid.UUID) ([]decimal.Decimal, error) {
	h.since = since
	return h.amounts, h.err
}

func TestService_AssessUsesHistory(t *testing.T) {
	repo := &mockRepo{}
	hist := &stubHistory{amounts: []decimal.Decimal{
		decimal.NewFromInt(6000), decimal.NewFromInt(20), decimal.NewFromInt(30),
		decimal.NewFromInt(40), decimal.NewFromInt(50),
	}}
	svc := NewService(NewScorer(DefaultConfig()), repo, hist, zerolog.Nop())

	when := at(2)
	d, err := svc.Assess(context.Background(), Input{
		SubjectType:   SubjectPayment,
		SubjectID:     uuid.New(),
		PatientID:     uuid.New(),
		Amount:        decimal.RequireFromString("6000.00"),
		PaymentMethod: "credit_card",
		At:            when,
	})
	if err != nil {
		t.Fatalf("Assess() error: %v", err)
	}
	if !hist.since.Equal(when.Add(-24 * time.Hour)) {
		t.Errorf("expected 24h window, got since=%v", hist.since)
	}
	if factor(d, FactorVelocity) == nil || factor(d, FactorDuplicateAmount) == nil {
		t.Errorf("expected velocity and duplicate factors, got %+v", d.RiskFactors)
	}
	if d.Status != StatusPendingReview {
		t.Errorf("expected pending_review, got %s", d.Status)
	}
	if len(repo.items) != 1 {
		t.Errorf("expected detection persisted")
	}
}

func TestService_AssessHistoryFailure(t *testing.T) {
	svc := NewService(NewScorer(DefaultConfig()), &mockRepo{}, &stubHistory{err: errors.New("db down")}, zerolog.Nop())
	_, err := svc.Assess(context.Background(), Input{SubjectType: SubjectPayment, PatientID: uuid.New(), Amount: decimal.NewFromInt(10)})
	if failure.KindOf(err) != failure.KindPersistence {
		t.Errorf("expected persistence failure, got %v", err)
	}
}

func TestService_AssessClaimSkipsPaymentHistory(t *testing.T) {
	hist := &stubHistory{err: errors.New("must not be called")}
	svc := NewService(NewScorer(DefaultConfig()), &mockRepo{}, hist, zerolog.Nop())
	d, err := svc.Assess(context.Background(), Input{SubjectType: SubjectClaim, PatientID: uuid.New(), Amount: decimal.NewFromInt(10), At: at(12)})
	if err != nil {
		t.Fatalf("Assess() error: %v", err)
	}
	if factor(d, FactorVelocity) != nil {
		t.Error("claims are not scored on payment velocity")
	}
}

func TestService_ReviewSupersedes(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(NewScorer(DefaultConfig()), repo, nil, zerolog.Nop())
	ctx := context.Background()
	subject := uuid.New()

	original, _ := svc.Assess(ctx, Input{
		SubjectType: SubjectPayment, SubjectID: subject,
		Amount: decimal.NewFromInt(6000), PaymentMethod: "credit_card", At: at(2),
		RecentCount: 5, DuplicateAmount: true,
	})

	inv, err := svc.Review(ctx, SubjectPayment, subject, DecisionInvestigate, "auditor-1")
	if err != nil {
		t.Fatalf("Review(investigate) error: %v", err)
	}
	if inv.Status != StatusInvestigating || inv.SupersedesID == nil || *inv.SupersedesID != original.ID {
		t.Errorf("unexpected investigate detection %+v", inv)
	}

	appr, err := svc.Review(ctx, SubjectPayment, subject, DecisionApprove, "auditor-2")
	if err != nil {
		t.Fatalf("Review(approve) error: %v", err)
	}
	if appr.Status != StatusApproved || *appr.SupersedesID != inv.ID || *appr.Reviewer != "auditor-2" {
		t.Errorf("unexpected approve detection %+v", appr)
	}
	if original.Status != StatusPendingReview {
		t.Error("original detection must not be mutated")
	}

	if _, err := svc.Review(ctx, SubjectPayment, subject, DecisionApprove, "auditor-3"); failure.KindOf(err) != failure.KindConflict {
		t.Errorf("expected conflict reviewing an approved detection, got %v", err)
	}

	history, _ := repo.ListForSubject(ctx, SubjectPayment, subject)
	if len(history) != 3 {
		t.Errorf("expected 3 detections in trail, got %d", len(history))
	}
}

func TestService_ReviewRejectsBadInput(t *testing.T) {
	svc := NewService(NewScorer(DefaultConfig()), &mockRepo{}, nil, zerolog.Nop())
	ctx := context.Background()
	if _, err := svc.Review(ctx, SubjectPayment, uuid.New(), "shrug", "a"); failure.KindOf(err) != failure.KindMalformed {
		t.Errorf("expected malformed for unknown decision, got %v", err)
	}
	if _, err := svc.Review(ctx, SubjectPayment, uuid.New(), DecisionApprove, ""); failure.KindOf(err) != failure.KindMalformed {
		t.Errorf("expected malformed for missing reviewer, got %v", err)
	}
	if _, err := svc.Review(ctx, SubjectPayment, uuid.New(), DecisionApprove, "a"); failure.KindOf(err) != failure.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}
