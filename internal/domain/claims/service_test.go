package claims

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/fraud"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

// -- Mock Repositories --

type mockClaimRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]Claim
}

func newMockClaimRepo() *mockClaimRepo {
	return &mockClaimRepo{items: make(map[uuid.UUID]Claim)}
}

func (m *mockClaimRepo) Create(_ context.Context, c *Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.items[c.ID] = *c
	return nil
}

func (m *mockClaimRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, failure.NotFound("claims.claim", "claim not found")
	}
	return &c, nil
}

func (m *mockClaimRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return m.GetByID(ctx, id)
}

func (m *mockClaimRepo) Update(_ context.Context, c *Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[c.ID]; !ok {
		return failure.NotFound("claims.claim", "claim not found")
	}
	m.items[c.ID] = *c
	return nil
}

func (m *mockClaimRepo) ListByOrganization(_ context.Context, orgID uuid.UUID, status Status, limit, offset int) ([]*Claim, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Claim
	for _, c := range m.items {
		if c.OrganizationID == orgID && (status == "" || c.Status == status) {
			c := c
			all = append(all, &c)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockClaimRepo) ListByServiceDate(_ context.Context, orgID uuid.UUID, from, to time.Time) ([]*Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Claim
	for _, c := range m.items {
		if c.OrganizationID == orgID && c.ServiceDate != nil && !c.ServiceDate.Before(from) && c.ServiceDate.Before(to) {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockClaimRepo) get(t *testing.T, id uuid.UUID) *Claim {
	t.Helper()
	c, err := m.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("claim %s: %v", id, err)
	}
	return c
}

type mockValidationRepo struct {
	mu    sync.Mutex
	items []*ValidationResult
}

func (m *mockValidationRepo) Create(_ context.Context, r *ValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, r)
	return nil
}

func (m *mockValidationRepo) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ValidationResult
	for _, r := range m.items {
		if r.ClaimID == claimID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockBatchRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]SubmissionBatch
	saves int
}

func newMockBatchRepo() *mockBatchRepo {
	return &mockBatchRepo{items: make(map[uuid.UUID]SubmissionBatch)}
}

func (m *mockBatchRepo) Create(_ context.Context, b *SubmissionBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[b.ID] = *b
	return nil
}

func (m *mockBatchRepo) GetByID(_ context.Context, id uuid.UUID) (*SubmissionBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil, failure.NotFound("claims.batch", "batch not found")
	}
	return &b, nil
}

func (m *mockBatchRepo) Update(_ context.Context, b *SubmissionBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[b.ID] = *b
	m.saves++
	return nil
}

func (m *mockBatchRepo) ListByOrganization(_ context.Context, orgID uuid.UUID, _, _ time.Time) ([]*SubmissionBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SubmissionBatch
	for _, b := range m.items {
		if b.OrganizationID == orgID {
			b := b
			out = append(out, &b)
		}
	}
	return out, nil
}

// -- Collaborator doubles --

type stubFraud struct {
	status fraud.Status
	score  float64
	err    error
}

func (s *stubFraud) Assess(_ context.Context, in fraud.Input) (*fraud.Detection, error) {
	if s.err != nil {
		return nil, s.err
	}
	status := s.status
	if status == "" {
		status = fraud.StatusApproved
	}
	return &fraud.Detection{
		ID:             uuid.New(),
		OrganizationID: in.OrganizationID,
		SubjectType:    in.SubjectType,
		SubjectID:      in.SubjectID,
		RiskScore:      s.score,
		Status:         status,
	}, nil
}

// fakeClearinghouse accepts every claim unless told otherwise.
type fakeClearinghouse struct {
	mu       sync.Mutex
	calls    [][]uuid.UUID
	lastID   string
	err      error
	reject   map[uuid.UUID]bool
	block    bool
	omitting bool
}

func (f *fakeClearinghouse) Submit(ctx context.Context, clearinghouseID string, claimIDs []uuid.UUID) ([]SubmissionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]uuid.UUID(nil), claimIDs...))
	f.lastID = clearinghouseID
	err, block, reject, omitting := f.err, f.block, f.reject, f.omitting
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	var out []SubmissionResult
	for i, id := range claimIDs {
		if omitting && i == len(claimIDs)-1 {
			continue
		}
		res := SubmissionResult{ClaimID: id, Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
		if reject[id] {
			res.Message = "payer id unknown"
		} else {
			res.IsAccepted = true
			res.AcknowledgmentCode = "A1"
			res.SubmissionID = "SUB-" + id.String()[:8]
		}
		out = append(out, res)
	}
	return out, nil
}

func (f *fakeClearinghouse) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// -- Fixtures --

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func testEngine() *ValidationEngine {
	cfg := DefaultValidationConfig()
	cfg.Now = func() time.Time { return testNow }
	return NewValidationEngine(cfg)
}

func cleanClaim(org uuid.UUID) *Claim {
	dob := time.Date(1980, 3, 4, 0, 0, 0, 0, time.UTC)
	svc := testNow.AddDate(0, 0, -10)
	return &Claim{
		ID:             uuid.New(),
		OrganizationID: org,
		PatientID:      uuid.New(),
		ClaimNumber:    "CLM-TEST",
		PatientName:    "Jane Roe",
		DateOfBirth:    &dob,
		Gender:         "female",
		PostalCode:     "02139",
		ProviderNPI:    "1234567893",
		ServiceDate:    &svc,
		ServiceLines: []ServiceLine{
			{ProcedureCode: "99213", Units: 1, Charge: decimal.NewFromInt(150)},
		},
		DiagnosisCodes: []string{"J45.909"},
		TotalCharges:   decimal.NewFromInt(150),
		Balance:        decimal.NewFromInt(150),
		PrimaryInsurance: Insurance{
			PayerID:           "AETNA",
			PayerName:         "Aetna",
			MemberNumber:      "M123456",
			GroupNumber:       "G100",
			EligibilityStatus: EligibilityActive,
		},
		Status: StatusDraft,
	}
}

type fixture struct {
	claims        *mockClaimRepo
	validations   *mockValidationRepo
	batches       *mockBatchRepo
	fraud         *stubFraud
	clearinghouse *fakeClearinghouse
	events        *notification.Recorder
	processor     *Processor
	svc           *Service
}

func newFixture() *fixture {
	f := &fixture{
		claims:        newMockClaimRepo(),
		validations:   &mockValidationRepo{},
		batches:       newMockBatchRepo(),
		fraud:         &stubFraud{},
		clearinghouse: &fakeClearinghouse{},
		events:        &notification.Recorder{},
	}
	cfg := DefaultProcessorConfig()
	cfg.SubmitTimeout = 50 * time.Millisecond
	f.processor = NewProcessor(testEngine(), f.fraud, f.claims, f.validations, f.clearinghouse,
		StaticRouter{Default: "CH-DEFAULT"}, f.events, cfg, zerolog.Nop())
	f.processor.now = func() time.Time { return testNow }
	f.svc = NewService(f.claims, f.validations, f.processor)
	return f
}

func (f *fixture) seed(t *testing.T, c *Claim) *Claim {
	t.Helper()
	if err := f.claims.Create(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

// -- Service Tests --

func TestService_CreateClaim(t *testing.T) {
	f := newFixture()
	c := cleanClaim(uuid.New())
	c.TotalCharges = decimal.Zero
	c.TotalPayments = decimal.NewFromInt(99)
	c.Status = StatusPaid

	if err := f.svc.Create(context.Background(), c); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if c.Status != StatusDraft {
		t.Errorf("expected draft, got %s", c.Status)
	}
	if !c.TotalCharges.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected charges from service lines, got %s", c.TotalCharges)
	}
	if !c.TotalPayments.IsZero() || !c.Balance.Equal(c.TotalCharges) {
		t.Errorf("expected fresh totals, got payments=%s balance=%s", c.TotalPayments, c.Balance)
	}
	if c.ClaimNumber == "" {
		t.Error("expected claim number")
	}
}

func TestService_CreateClaim_MalformedIdentity(t *testing.T) {
	f := newFixture()
	c := cleanClaim(uuid.Nil)
	c.PatientID = uuid.Nil
	err := f.svc.Create(context.Background(), c)
	if failure.KindOf(err) != failure.KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}
	if len(f.claims.items) != 0 {
		t.Error("malformed claim must not be stored")
	}
}

func TestService_PostPayment(t *testing.T) {
	f := newFixture()
	c := cleanClaim(uuid.New())
	c.Status = StatusSubmitted
	f.seed(t, c)
	ctx := context.Background()

	updated, err := f.svc.PostPayment(ctx, c.ID, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("PostPayment() error: %v", err)
	}
	if !updated.Balance.Equal(decimal.NewFromInt(50)) || updated.Status != StatusSubmitted {
		t.Errorf("unexpected claim after partial payment: balance=%s status=%s", updated.Balance, updated.Status)
	}

	if _, err := f.svc.PostPayment(ctx, c.ID, decimal.NewFromInt(60)); failure.KindOf(err) != failure.KindValidation {
		t.Errorf("expected overpayment to be refused, got %v", err)
	}

	updated, err = f.svc.PostPayment(ctx, c.ID, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("PostPayment() error: %v", err)
	}
	if !updated.Balance.IsZero() || updated.Status != StatusPaid {
		t.Errorf("expected paid with zero balance, got %s %s", updated.Balance, updated.Status)
	}
	stored := f.claims.get(t, c.ID)
	if !stored.Balance.Equal(stored.TotalCharges.Sub(stored.TotalPayments).Sub(stored.TotalAdjustments)) {
		t.Error("balance invariant broken in storage")
	}
}

func TestService_TransitionResolveArchives(t *testing.T) {
	f := newFixture()
	c := cleanClaim(uuid.New())
	c.Status = StatusDenied
	f.seed(t, c)
	ctx := context.Background()

	resolved, err := f.svc.Transition(ctx, c.ID, StatusResolved, "")
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	if resolved.ArchivedAt == nil {
		t.Error("expected resolved claim to be archived")
	}
	if _, err := f.svc.Transition(ctx, c.ID, StatusAppealed, ""); failure.KindOf(err) != failure.KindConflict {
		t.Errorf("expected conflict changing an archived claim, got %v", err)
	}
}
