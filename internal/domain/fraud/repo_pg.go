package fraud

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

type detectionRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &detectionRepoPG{pool: pool} }

const detectionCols = `id, organization_id, subject_type, subject_id, risk_factors,
	risk_score, status, supersedes_id, reviewer, created_at`

func scanDetection(row pgx.Row) (*Detection, error) {
	var d Detection
	err := row.Scan(&d.ID, &d.OrganizationID, &d.SubjectType, &d.SubjectID, &d.RiskFactors,
		&d.RiskScore, &d.Status, &d.SupersedesID, &d.Reviewer, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, failure.NotFound("fraud.detection", "detection not found")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *detectionRepoPG) Create(ctx context.Context, d *Detection) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO fraud_detection (id, organization_id, subject_type, subject_id, risk_factors,
			risk_score, status, supersedes_id, reviewer, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.OrganizationID, d.SubjectType, d.SubjectID, d.RiskFactors,
		d.RiskScore, d.Status, d.SupersedesID, d.Reviewer, d.CreatedAt)
	return err
}

func (r *detectionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Detection, error) {
	return scanDetection(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+detectionCols+` FROM fraud_detection WHERE id = $1`, id))
}

func (r *detectionRepoPG) LatestForSubject(ctx context.Context, subjectType SubjectType, subjectID uuid.UUID) (*Detection, error) {
	return scanDetection(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+detectionCols+` FROM fraud_detection
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY created_at DESC, seq DESC LIMIT 1`, subjectType, subjectID))
}

func (r *detectionRepoPG) ListForSubject(ctx context.Context, subjectType SubjectType, subjectID uuid.UUID) ([]*Detection, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+detectionCols+` FROM fraud_detection
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY created_at, seq`, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
