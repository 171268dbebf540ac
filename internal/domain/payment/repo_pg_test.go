package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db/pgtest"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/lock"
)

func TestPaymentRepoPG_RoundTrip(t *testing.T) {
	pool := pgtest.Start(t, 15451)
	ctx := context.Background()
	repo := NewRepoPG(pool)
	ledger := NewLedgerRepoPG(pool)

	org, patient := uuid.New(), uuid.New()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	p := &Payment{
		OrganizationID: org, PatientID: patient, BankAccountID: "ACCT-1",
		Amount: decimal.RequireFromString("125.50"), PaymentMethod: MethodACH,
		Status: StatusPending, ReconciliationStatus: ReconUnmatched,
		InitiatedAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Amount.Equal(p.Amount) || got.PaymentMethod != MethodACH || got.Posted() {
		t.Errorf("unexpected payment %+v", got)
	}

	posted := now.Add(time.Hour)
	got.Status = StatusCompleted
	got.PostedDate = &posted
	got.ProcessedAt = &posted
	got.TransactionID = "txn-1"
	got.UpdatedAt = posted
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	list, err := repo.ListPosted(ctx, org, "ACCT-1", from, from.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("list posted: %v", err)
	}
	if len(list) != 1 || list[0].TransactionID != "txn-1" {
		t.Fatalf("expected the posted payment, got %d", len(list))
	}
	list, _ = repo.ListPosted(ctx, org, "ACCT-2", from, from.AddDate(0, 1, 0))
	if len(list) != 0 {
		t.Errorf("expected no payments for other account, got %d", len(list))
	}

	if err := repo.SetReconciliationStatus(ctx, p.ID, ReconMatched); err != nil {
		t.Fatalf("set reconciliation status: %v", err)
	}
	got, _ = repo.GetByID(ctx, p.ID)
	if got.ReconciliationStatus != ReconMatched {
		t.Errorf("reconciliation status = %s", got.ReconciliationStatus)
	}

	if err := ledger.Create(ctx, &LedgerEntry{OrganizationID: org, PatientID: patient, PaymentID: p.ID,
		Amount: p.Amount, EntryType: EntryPayment, CreatedAt: posted}); err != nil {
		t.Fatalf("ledger create: %v", err)
	}
	if err := ledger.Create(ctx, &LedgerEntry{OrganizationID: org, PatientID: patient, PaymentID: p.ID,
		Amount: p.Amount, EntryType: EntryPayment, CreatedAt: posted}); err == nil {
		t.Error("expected duplicate ledger entry to be rejected")
	}
	entries, err := ledger.ListByPatient(ctx, org, patient)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ledger entries: %d %v", len(entries), err)
	}

	items, total, err := repo.ListByOrganization(ctx, org, 10, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("list by organization: total %d, items %d, %v", total, len(items), err)
	}
}

func TestPaymentRepoPG_RecentAmounts(t *testing.T) {
	pool := pgtest.Start(t, 15452)
	ctx := context.Background()
	repo := NewRepoPG(pool)

	org, patient := uuid.New(), uuid.New()
	now := time.Now().UTC()
	mk := func(amount string, at time.Time) *Payment {
		p := &Payment{OrganizationID: org, PatientID: patient, Amount: decimal.RequireFromString(amount),
			PaymentMethod: MethodCreditCard, Status: StatusCompleted, ReconciliationStatus: ReconUnmatched,
			InitiatedAt: at, CreatedAt: at, UpdatedAt: at}
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		return p
	}
	mk("40.00", now.AddDate(0, 0, -3))
	mk("60.00", now.AddDate(0, 0, -100))
	current := mk("900.00", now)

	amounts, err := repo.RecentAmounts(ctx, org, patient, now.AddDate(0, 0, -90), current.ID)
	if err != nil {
		t.Fatalf("recent amounts: %v", err)
	}
	if len(amounts) != 1 || !amounts[0].Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected only the recent 40.00, got %v", amounts)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); failure.KindOf(err) != failure.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
	if err := repo.SetReconciliationStatus(ctx, uuid.New(), ReconMatched); failure.KindOf(err) != failure.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

// sqlClaimLedger moves claim totals with SQL on the ambient transaction and
// can be told to fail once the update has been written.
type sqlClaimLedger struct {
	pool      *pgxpool.Pool
	failAfter error
}

func (l *sqlClaimLedger) CheckPosting(context.Context, uuid.UUID, decimal.Decimal) error { return nil }

func (l *sqlClaimLedger) PostPayment(ctx context.Context, claimID uuid.UUID, amount decimal.Decimal) error {
	_, err := db.Conn(ctx, l.pool).Exec(ctx, `UPDATE claim
		SET total_payments = total_payments + $2, balance = balance - $2 WHERE id = $1`, claimID, amount)
	if err != nil {
		return err
	}
	return l.failAfter
}

func TestExecutor_AutoPostRollsBackPG(t *testing.T) {
	pool := pgtest.Start(t, 15453)
	ctx := context.Background()
	payments := NewRepoPG(pool)
	ledger := NewLedgerRepoPG(pool)
	claims := &sqlClaimLedger{pool: pool, failAfter: errors.New("claim row locked")}
	exec := NewExecutor(payments, ledger, claims, nil, nil, lock.NewLocalLocker(),
		db.NewTransactor(pool), nil, testConfig(), zerolog.Nop())

	org, patient, claimID := uuid.New(), uuid.New(), uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO claim (id, organization_id, patient_id, claim_number, status,
		total_charges, balance) VALUES ($1,$2,$3,'CLM-900','submitted',100,100)`, claimID, org, patient); err != nil {
		t.Fatalf("insert claim: %v", err)
	}
	now := time.Now().UTC()
	p := &Payment{OrganizationID: org, PatientID: patient, ClaimID: &claimID, BankAccountID: "ACCT-1",
		Amount: decimal.NewFromInt(60), PaymentMethod: MethodACH, Status: StatusCompleted,
		ReconciliationStatus: ReconUnmatched, InitiatedAt: now, CreatedAt: now, UpdatedAt: now}
	if err := payments.Create(ctx, p); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	claimTotals := func() (decimal.Decimal, decimal.Decimal) {
		t.Helper()
		var paid, balance decimal.Decimal
		if err := pool.QueryRow(ctx, `SELECT total_payments, balance FROM claim WHERE id = $1`, claimID).
			Scan(&paid, &balance); err != nil {
			t.Fatalf("claim totals: %v", err)
		}
		return paid, balance
	}

	if _, err := exec.AutoPost(ctx, p); failure.KindOf(err) != failure.KindPersistence {
		t.Fatalf("err = %v, want persistence", err)
	}
	entries, err := ledger.ListByPatient(ctx, org, patient)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("ledger entries = %d, want 0", len(entries))
	}
	if paid, balance := claimTotals(); !paid.IsZero() || !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("claim totals moved: paid %s balance %s", paid, balance)
	}
	if got, _ := payments.GetByID(ctx, p.ID); got.PostedDate != nil {
		t.Errorf("posted date = %v, want nil", got.PostedDate)
	}

	claims.failAfter = nil
	posted, err := exec.AutoPost(ctx, p)
	if err != nil || !posted {
		t.Fatalf("second post: %v %v", posted, err)
	}
	entries, _ = ledger.ListByPatient(ctx, org, patient)
	if len(entries) != 1 {
		t.Errorf("ledger entries after commit = %d, want 1", len(entries))
	}
	if paid, balance := claimTotals(); !paid.Equal(decimal.NewFromInt(60)) || !balance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("claim totals after commit: paid %s balance %s", paid, balance)
	}
	if got, _ := payments.GetByID(ctx, p.ID); got.PostedDate == nil {
		t.Error("posted date not stored")
	}
}
