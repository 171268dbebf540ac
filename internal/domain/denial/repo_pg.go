package denial

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

// =========== Analysis Repository ===========

type analysisRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &analysisRepoPG{pool: pool} }

const analysisCols = `id, organization_id, claim_id, denial_code, denial_reason, category,
	is_appealable, appeal_deadline, root_cause, prevention_strategy, disposition,
	denied_at, is_resolved, resolved_at, created_at`

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	var a Analysis
	err := row.Scan(&a.ID, &a.OrganizationID, &a.ClaimID, &a.DenialCode, &a.DenialReason, &a.Category,
		&a.IsAppealable, &a.AppealDeadline, &a.RootCause, &a.PreventionStrategy, &a.Disposition,
		&a.DeniedAt, &a.IsResolved, &a.ResolvedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, failure.NotFound("denial.analysis", "denial analysis not found")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAnalyses(rows pgx.Rows) ([]*Analysis, error) {
	var items []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *analysisRepoPG) Create(ctx context.Context, a *Analysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO denial_analysis (`+analysisCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		a.ID, a.OrganizationID, a.ClaimID, a.DenialCode, a.DenialReason, a.Category,
		a.IsAppealable, a.AppealDeadline, a.RootCause, a.PreventionStrategy, a.Disposition,
		a.DeniedAt, a.IsResolved, a.ResolvedAt, a.CreatedAt)
	return err
}

func (r *analysisRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	return scanAnalysis(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+analysisCols+` FROM denial_analysis WHERE id = $1`, id))
}

// Update only touches the resolution fields; the rest of an analysis is
// immutable.
func (r *analysisRepoPG) Update(ctx context.Context, a *Analysis) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE denial_analysis SET is_resolved = $2, resolved_at = $3 WHERE id = $1`,
		a.ID, a.IsResolved, a.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return failure.NotFound("denial.analysis", "denial analysis not found")
	}
	return nil
}

func (r *analysisRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Analysis, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+analysisCols+` FROM denial_analysis WHERE claim_id = $1 ORDER BY created_at, seq`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnalyses(rows)
}

func (r *analysisRepoPG) ListOpen(ctx context.Context, orgID uuid.UUID, disposition Disposition) ([]*Analysis, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+analysisCols+` FROM denial_analysis
		WHERE organization_id = $1 AND disposition = $2 AND NOT is_resolved
		ORDER BY created_at, seq`, orgID, disposition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnalyses(rows)
}

// =========== Appeal Repository ===========

type appealRepoPG struct{ pool *pgxpool.Pool }

func NewAppealRepoPG(pool *pgxpool.Pool) AppealRepository { return &appealRepoPG{pool: pool} }

func (r *appealRepoPG) Create(ctx context.Context, a *Appeal) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO appeal (id, organization_id, analysis_id, claim_id, subject, letter, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.OrganizationID, a.AnalysisID, a.ClaimID, a.Subject, a.Letter, a.Status, a.CreatedAt)
	return err
}

func (r *appealRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Appeal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, organization_id, analysis_id, claim_id, subject, letter, status, created_at
		FROM appeal WHERE claim_id = $1 ORDER BY created_at, seq`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appeal
	for rows.Next() {
		var a Appeal
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.AnalysisID, &a.ClaimID,
			&a.Subject, &a.Letter, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
