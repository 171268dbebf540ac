package kpi

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

// =========== Snapshot Repository ===========

type snapshotRepoPG struct{ pool *pgxpool.Pool }

func NewSnapshotRepoPG(pool *pgxpool.Pool) SnapshotRepository { return &snapshotRepoPG{pool: pool} }

const snapshotCols = `organization_id, date, days_in_ar, collection_rate, denial_rate,
	cost_to_collect, net_collection_rate, gross_charges, net_charges, payments,
	adjustments, write_offs, created_at`

func (r *snapshotRepoPG) Save(ctx context.Context, s *Snapshot) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO kpi_snapshot (`+snapshotCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (organization_id, date) DO NOTHING`,
		s.OrganizationID, s.Date, s.DaysInAR, s.CollectionRate, s.DenialRate,
		s.CostToCollect, s.NetCollectionRate, s.GrossCharges, s.NetCharges, s.Payments,
		s.Adjustments, s.WriteOffs, s.CreatedAt)
	return err
}

func (r *snapshotRepoPG) ListRange(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*Snapshot, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+snapshotCols+` FROM kpi_snapshot
		WHERE ($1 OR organization_id = $2) AND date >= $3 AND date <= $4
		ORDER BY date, organization_id`, orgID == uuid.Nil, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.OrganizationID, &s.Date, &s.DaysInAR, &s.CollectionRate, &s.DenialRate,
			&s.CostToCollect, &s.NetCollectionRate, &s.GrossCharges, &s.NetCharges, &s.Payments,
			&s.Adjustments, &s.WriteOffs, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

// =========== Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository { return &alertRepoPG{pool: pool} }

const alertCols = `id, organization_id, alert_type, severity, affected_kpi, current_value,
	threshold_value, recommended_actions, is_resolved, resolved_at, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.OrganizationID, &a.AlertType, &a.Severity, &a.AffectedKPI, &a.CurrentValue,
		&a.ThresholdValue, &a.RecommendedActions, &a.IsResolved, &a.ResolvedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, failure.NotFound("kpi.alert", "alert not found")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *alertRepoPG) Create(ctx context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO kpi_alert (`+alertCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.OrganizationID, a.AlertType, a.Severity, a.AffectedKPI, a.CurrentValue,
		a.ThresholdValue, a.RecommendedActions, a.IsResolved, a.ResolvedAt, a.CreatedAt)
	return err
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+alertCols+` FROM kpi_alert WHERE id = $1`, id))
}

func (r *alertRepoPG) Update(ctx context.Context, a *Alert) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE kpi_alert SET current_value = $2, is_resolved = $3, resolved_at = $4
		WHERE id = $1`,
		a.ID, a.CurrentValue, a.IsResolved, a.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return failure.NotFound("kpi.alert", "alert not found")
	}
	return nil
}

func (r *alertRepoPG) ListOpen(ctx context.Context, orgID uuid.UUID) ([]*Alert, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+alertCols+` FROM kpi_alert
		WHERE organization_id = $1 AND NOT is_resolved ORDER BY created_at, seq`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (r *alertRepoPG) List(ctx context.Context, orgID uuid.UUID, includeResolved bool, limit, offset int) ([]*Alert, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM kpi_alert
		WHERE organization_id = $1 AND ($2 OR NOT is_resolved)`, orgID, includeResolved).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+alertCols+` FROM kpi_alert
		WHERE organization_id = $1 AND ($2 OR NOT is_resolved)
		ORDER BY created_at DESC, seq DESC LIMIT $3 OFFSET $4`, orgID, includeResolved, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectAlerts(rows)
	return items, total, err
}

func collectAlerts(rows pgx.Rows) ([]*Alert, error) {
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
