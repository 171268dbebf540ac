package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
)

// measure is a single-value aggregate over the claim tables. Period
// measures take ($1 organization, $2 from, $3 to); point-in-time measures
// take ($1 organization, $2 as-of).
type measure struct {
	ID   string
	SQL  string
	asOf bool
	// scan returns the destination for the measure's single column.
	scan func(a *Aggregates) any
}

var measures = []measure{
	{
		ID: "claim-count",
		SQL: `SELECT COUNT(*) FROM claim
			WHERE organization_id = $1 AND service_date >= $2 AND service_date < $3`,
		scan: func(a *Aggregates) any { return &a.ClaimCount },
	},
	{
		ID: "claims-submitted",
		SQL: `SELECT COUNT(*) FROM claim
			WHERE organization_id = $1 AND submitted_at >= $2 AND submitted_at < $3`,
		scan: func(a *Aggregates) any { return &a.ClaimsSubmitted },
	},
	{
		ID: "claims-denied",
		SQL: `SELECT COUNT(DISTINCT claim_id) FROM denial_analysis
			WHERE organization_id = $1 AND denied_at >= $2 AND denied_at < $3`,
		scan: func(a *Aggregates) any { return &a.ClaimsDenied },
	},
	{
		ID: "gross-charges",
		SQL: `SELECT COALESCE(SUM(total_charges), 0) FROM claim
			WHERE organization_id = $1 AND service_date >= $2 AND service_date < $3`,
		scan: func(a *Aggregates) any { return &a.GrossCharges },
	},
	{
		ID: "payments",
		SQL: `SELECT COALESCE(SUM(amount), 0) FROM payment
			WHERE organization_id = $1 AND status = 'completed'
				AND posted_date >= $2 AND posted_date < $3`,
		scan: func(a *Aggregates) any { return &a.Payments },
	},
	{
		ID: "adjustments",
		SQL: `SELECT COALESCE(SUM(total_adjustments), 0) FROM claim
			WHERE organization_id = $1 AND service_date >= $2 AND service_date < $3`,
		scan: func(a *Aggregates) any { return &a.Adjustments },
	},
	{
		ID: "write-offs",
		SQL: `SELECT COALESCE(SUM(balance), 0) FROM claim
			WHERE organization_id = $1 AND status = 'resolved' AND balance > 0
				AND service_date >= $2 AND service_date < $3`,
		scan: func(a *Aggregates) any { return &a.WriteOffs },
	},
	{
		ID: "outstanding-ar",
		SQL: `SELECT COALESCE(SUM(balance), 0) FROM claim
			WHERE organization_id = $1 AND status NOT IN ('draft', 'resolved', 'rejected')
				AND balance > 0 AND created_at < $2`,
		asOf: true,
		scan: func(a *Aggregates) any { return &a.OutstandingAR },
	},
}

// PGSource evaluates the aggregate measures against PostgreSQL.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) Aggregates(ctx context.Context, orgID uuid.UUID, from, to time.Time) (*Aggregates, error) {
	agg := &Aggregates{
		GrossCharges:  decimal.Zero,
		Payments:      decimal.Zero,
		Adjustments:   decimal.Zero,
		WriteOffs:     decimal.Zero,
		OutstandingAR: decimal.Zero,
	}
	err := s.snapshot(ctx, func(q db.Querier) error {
		for _, m := range measures {
			args := []any{orgID, from, to}
			if m.asOf {
				args = []any{orgID, to}
			}
			if err := q.QueryRow(ctx, m.SQL, args...).Scan(m.scan(agg)); err != nil {
				return fmt.Errorf("measure %s: %w", m.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// snapshot runs fn in one read-only repeatable-read transaction so every
// measure sees the same committed state. An ambient transaction is joined.
func (s *PGSource) snapshot(ctx context.Context, fn func(q db.Querier) error) error {
	if tx := db.TxFromContext(ctx); tx != nil {
		return fn(tx)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Organizations lists every organization with at least one claim.
func (s *PGSource) Organizations(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `SELECT DISTINCT organization_id FROM claim ORDER BY organization_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orgs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		orgs = append(orgs, id)
	}
	return orgs, rows.Err()
}
