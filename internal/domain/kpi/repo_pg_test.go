package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db/pgtest"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

func TestSnapshotRepoPG_SaveKeepsFirst(t *testing.T) {
	pool := pgtest.Start(t, 15441)
	ctx := context.Background()
	repo := NewSnapshotRepoPG(pool)

	org, other := uuid.New(), uuid.New()
	day := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	first := &Snapshot{OrganizationID: org, Date: day, DaysInAR: 41.5, CollectionRate: 93,
		GrossCharges: decimal.NewFromInt(3000), NetCharges: decimal.NewFromInt(3000),
		Payments: decimal.NewFromInt(2790), Adjustments: decimal.Zero, WriteOffs: decimal.Zero, CreatedAt: day}
	second := *first
	second.DaysInAR = 60
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, &second); err != nil {
		t.Fatalf("duplicate save: %v", err)
	}
	otherSnap := *first
	otherSnap.OrganizationID = other
	if err := repo.Save(ctx, &otherSnap); err != nil {
		t.Fatalf("save other: %v", err)
	}

	got, err := repo.ListRange(ctx, org, day.AddDate(0, 0, -1), day)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(got))
	}
	if got[0].DaysInAR != 41.5 {
		t.Errorf("expected first snapshot kept, days in AR %v", got[0].DaysInAR)
	}
	if !got[0].Payments.Equal(decimal.NewFromInt(2790)) {
		t.Errorf("payments = %s", got[0].Payments)
	}

	all, err := repo.ListRange(ctx, uuid.Nil, day, day)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 snapshots across organizations, got %d", len(all))
	}
}

func TestAlertRepoPG_Lifecycle(t *testing.T) {
	pool := pgtest.Start(t, 15442)
	ctx := context.Background()
	repo := NewAlertRepoPG(pool)

	org := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)
	a := &Alert{OrganizationID: org, AlertType: AlertThreshold, Severity: SeverityCritical,
		AffectedKPI: DaysInAR, CurrentValue: 50, ThresholdValue: 45,
		RecommendedActions: []string{"review aging buckets", "follow up on oldest claims"}, CreatedAt: now}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.RecommendedActions) != 2 || got.Severity != SeverityCritical {
		t.Errorf("unexpected alert %+v", got)
	}

	open, err := repo.ListOpen(ctx, org)
	if err != nil || len(open) != 1 {
		t.Fatalf("list open: %d %v", len(open), err)
	}

	got.IsResolved = true
	got.ResolvedAt = &now
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	open, _ = repo.ListOpen(ctx, org)
	if len(open) != 0 {
		t.Errorf("expected no open alerts, got %d", len(open))
	}
	_, total, err := repo.List(ctx, org, false, 10, 0)
	if err != nil || total != 0 {
		t.Errorf("open total = %d, %v", total, err)
	}
	items, total, err := repo.List(ctx, org, true, 10, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("all total = %d, items %d, %v", total, len(items), err)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); failure.KindOf(err) != failure.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
	if err := repo.Update(ctx, &Alert{ID: uuid.New()}); failure.KindOf(err) != failure.KindNotFound {
		t.Errorf("expected not found on update, got %v", err)
	}
}

func insertClaim(t *testing.T, pool *pgxpool.Pool, org uuid.UUID, number, status string, serviceDate time.Time, charges, balance float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO claim (id, organization_id, patient_id, claim_number, status, service_date,
			total_charges, balance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$6)`,
		id, org, uuid.New(), number, status, serviceDate, charges, balance)
	if err != nil {
		t.Fatalf("insert claim: %v", err)
	}
	return id
}

func TestPGSource_Aggregates(t *testing.T) {
	pool := pgtest.Start(t, 15443)
	ctx := context.Background()
	src := NewPGSource(pool)

	org := uuid.New()
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -30)
	in := to.AddDate(0, 0, -5)

	insertClaim(t, pool, org, "CLM-1", "submitted", in, 1000, 400)
	insertClaim(t, pool, org, "CLM-2", "resolved", in, 500, 50)
	insertClaim(t, pool, org, "CLM-3", "draft", in, 200, 200)
	insertClaim(t, pool, org, "CLM-OLD", "submitted", from.AddDate(0, 0, -10), 900, 300)
	insertClaim(t, pool, uuid.New(), "CLM-X", "submitted", in, 700, 700)

	_, err := pool.Exec(ctx, `
		INSERT INTO payment (id, organization_id, patient_id, amount, payment_method, status, posted_date)
		VALUES ($1,$2,$3,600,'ach','completed',$4), ($5,$2,$3,99,'ach','pending',NULL)`,
		uuid.New(), org, uuid.New(), in, uuid.New())
	if err != nil {
		t.Fatalf("insert payments: %v", err)
	}

	agg, err := src.Aggregates(ctx, org, from, to)
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if agg.ClaimCount != 3 {
		t.Errorf("claim count = %d, want 3", agg.ClaimCount)
	}
	if !agg.GrossCharges.Equal(decimal.NewFromInt(1700)) {
		t.Errorf("gross charges = %s, want 1700", agg.GrossCharges)
	}
	if !agg.Payments.Equal(decimal.NewFromInt(600)) {
		t.Errorf("payments = %s, want 600", agg.Payments)
	}
	if !agg.WriteOffs.Equal(decimal.NewFromInt(50)) {
		t.Errorf("write-offs = %s, want 50", agg.WriteOffs)
	}
	// AR is point-in-time, so the older open claim counts.
	if !agg.OutstandingAR.Equal(decimal.NewFromInt(700)) {
		t.Errorf("outstanding AR = %s, want 700", agg.OutstandingAR)
	}

	orgs, err := src.Organizations(ctx)
	if err != nil {
		t.Fatalf("organizations: %v", err)
	}
	if len(orgs) != 2 {
		t.Errorf("expected 2 organizations, got %d", len(orgs))
	}
}

func TestPGSource_MeasuresShareReadOnlySnapshot(t *testing.T) {
	pool := pgtest.Start(t, 15444)
	ctx := context.Background()
	src := NewPGSource(pool)

	var isolation, readOnly string
	err := src.snapshot(ctx, func(q db.Querier) error {
		if err := q.QueryRow(ctx, `SHOW transaction_isolation`).Scan(&isolation); err != nil {
			return err
		}
		return q.QueryRow(ctx, `SHOW transaction_read_only`).Scan(&readOnly)
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if isolation != "repeatable read" || readOnly != "on" {
		t.Errorf("isolation %q read-only %q, want repeatable read and on", isolation, readOnly)
	}

	// Rows committed after the snapshot starts stay invisible to it.
	org := uuid.New()
	in := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	var before, after int
	err = src.snapshot(ctx, func(q db.Querier) error {
		if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM claim WHERE organization_id = $1`, org).Scan(&before); err != nil {
			return err
		}
		insertClaim(t, pool, org, "CLM-LATE", "submitted", in, 100, 100)
		return q.QueryRow(ctx, `SELECT COUNT(*) FROM claim WHERE organization_id = $1`, org).Scan(&after)
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if before != 0 || after != 0 {
		t.Errorf("snapshot saw %d then %d claims, want 0 and 0", before, after)
	}

	// Inside a caller's transaction the measures see its uncommitted rows.
	err = db.NewTransactor(pool).WithTx(ctx, func(ctx context.Context) error {
		if _, err := db.Conn(ctx, pool).Exec(ctx, `
			INSERT INTO claim (id, organization_id, claim_number, patient_id, status, service_date, total_charges, balance, created_at)
			VALUES ($1,$2,'CLM-TX',$3,'submitted',$4,250,250,$4)`, uuid.New(), org, uuid.New(), in); err != nil {
			return err
		}
		agg, err := src.Aggregates(ctx, org, in.AddDate(0, 0, -1), in.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		if agg.ClaimCount != 2 {
			t.Errorf("claim count in caller transaction = %d, want 2", agg.ClaimCount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
}
