package claims

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

// =========== Claim Repository ===========

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) ClaimRepository { return &claimRepoPG{pool: pool} }

const claimCols = `id, organization_id, patient_id, provider_id, encounter_id, claim_number,
	patient_name, date_of_birth, gender, postal_code, provider_npi, service_date,
	service_lines, diagnosis_codes, prior_auth_number,
	total_charges, total_payments, total_adjustments, balance,
	primary_insurance, validation_score, quality_metrics, status,
	submission_id, acknowledgment_code, clearinghouse_id, submitted_at,
	last_error, archived_at, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.OrganizationID, &c.PatientID, &c.ProviderID, &c.EncounterID, &c.ClaimNumber,
		&c.PatientName, &c.DateOfBirth, &c.Gender, &c.PostalCode, &c.ProviderNPI, &c.ServiceDate,
		&c.ServiceLines, &c.DiagnosisCodes, &c.PriorAuthNumber,
		&c.TotalCharges, &c.TotalPayments, &c.TotalAdjustments, &c.Balance,
		&c.PrimaryInsurance, &c.ValidationScore, &c.QualityMetrics, &c.Status,
		&c.SubmissionID, &c.AcknowledgmentCode, &c.ClearinghouseID, &c.SubmittedAt,
		&c.LastError, &c.ArchivedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, failure.NotFound("claims.claim", "claim not found")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO claim (`+claimCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31)`,
		c.ID, c.OrganizationID, c.PatientID, c.ProviderID, c.EncounterID, c.ClaimNumber,
		c.PatientName, c.DateOfBirth, c.Gender, c.PostalCode, c.ProviderNPI, c.ServiceDate,
		c.ServiceLines, c.DiagnosisCodes, c.PriorAuthNumber,
		c.TotalCharges, c.TotalPayments, c.TotalAdjustments, c.Balance,
		c.PrimaryInsurance, c.ValidationScore, c.QualityMetrics, c.Status,
		c.SubmissionID, c.AcknowledgmentCode, c.ClearinghouseID, c.SubmittedAt,
		c.LastError, c.ArchivedAt, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+claimCols+` FROM claim WHERE id = $1`, id))
}

func (r *claimRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+claimCols+` FROM claim WHERE id = $1 FOR UPDATE`, id))
}

func (r *claimRepoPG) Update(ctx context.Context, c *Claim) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE claim SET provider_id=$2, encounter_id=$3, patient_name=$4, date_of_birth=$5,
			gender=$6, postal_code=$7, provider_npi=$8, service_date=$9, service_lines=$10,
			diagnosis_codes=$11, prior_auth_number=$12, total_charges=$13, total_payments=$14,
			total_adjustments=$15, balance=$16, primary_insurance=$17, validation_score=$18,
			quality_metrics=$19, status=$20, submission_id=$21, acknowledgment_code=$22,
			clearinghouse_id=$23, submitted_at=$24, last_error=$25, archived_at=$26, updated_at=$27
		WHERE id = $1`,
		c.ID, c.ProviderID, c.EncounterID, c.PatientName, c.DateOfBirth,
		c.Gender, c.PostalCode, c.ProviderNPI, c.ServiceDate, c.ServiceLines,
		c.DiagnosisCodes, c.PriorAuthNumber, c.TotalCharges, c.TotalPayments,
		c.TotalAdjustments, c.Balance, c.PrimaryInsurance, c.ValidationScore,
		c.QualityMetrics, c.Status, c.SubmissionID, c.AcknowledgmentCode,
		c.ClearinghouseID, c.SubmittedAt, c.LastError, c.ArchivedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return failure.NotFound("claims.claim", "claim not found")
	}
	return nil
}

func (r *claimRepoPG) ListByOrganization(ctx context.Context, orgID uuid.UUID, status Status, limit, offset int) ([]*Claim, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM claim WHERE organization_id = $1 AND ($2 = '' OR status = $2)`,
		orgID, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+claimCols+` FROM claim
		WHERE organization_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, seq DESC LIMIT $3 OFFSET $4`,
		orgID, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectClaims(rows)
	return items, total, err
}

func (r *claimRepoPG) ListByServiceDate(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*Claim, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+claimCols+` FROM claim
		WHERE organization_id = $1 AND service_date >= $2 AND service_date < $3
		ORDER BY service_date, seq`, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectClaims(rows)
}

func collectClaims(rows pgx.Rows) ([]*Claim, error) {
	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// =========== Validation Result Repository ===========

type validationRepoPG struct{ pool *pgxpool.Pool }

func NewValidationRepoPG(pool *pgxpool.Pool) ValidationRepository {
	return &validationRepoPG{pool: pool}
}

func (r *validationRepoPG) Create(ctx context.Context, v *ValidationResult) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO validation_result (id, claim_id, is_valid, validation_score, sub_scores,
			errors, warnings, recommendations, validated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.ClaimID, v.IsValid, v.ValidationScore, v.SubScores,
		v.Errors, v.Warnings, v.Recommendations, v.ValidatedAt)
	return err
}

func (r *validationRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*ValidationResult, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, claim_id, is_valid, validation_score, sub_scores, errors, warnings,
			recommendations, validated_at
		FROM validation_result WHERE claim_id = $1 ORDER BY validated_at, seq`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ValidationResult
	for rows.Next() {
		var v ValidationResult
		if err := rows.Scan(&v.ID, &v.ClaimID, &v.IsValid, &v.ValidationScore, &v.SubScores,
			&v.Errors, &v.Warnings, &v.Recommendations, &v.ValidatedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}

// =========== Submission Batch Repository ===========

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository { return &batchRepoPG{pool: pool} }

const batchCols = `id, organization_id, claim_ids, dropped_claim_ids, clearinghouse_id, status,
	status_history, validation_results, submission_results, last_error, created_at, updated_at`

func scanBatch(row pgx.Row) (*SubmissionBatch, error) {
	var b SubmissionBatch
	err := row.Scan(&b.ID, &b.OrganizationID, &b.ClaimIDs, &b.DroppedClaimIDs, &b.ClearinghouseID, &b.Status,
		&b.StatusHistory, &b.ValidationResults, &b.SubmissionResults, &b.LastError, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, failure.NotFound("claims.batch", "batch not found")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepoPG) Create(ctx context.Context, b *SubmissionBatch) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO submission_batch (`+batchCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		b.ID, b.OrganizationID, b.ClaimIDs, b.DroppedClaimIDs, b.ClearinghouseID, b.Status,
		b.StatusHistory, b.ValidationResults, b.SubmissionResults, b.LastError, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *batchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SubmissionBatch, error) {
	return scanBatch(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+batchCols+` FROM submission_batch WHERE id = $1`, id))
}

func (r *batchRepoPG) Update(ctx context.Context, b *SubmissionBatch) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE submission_batch SET status=$2, status_history=$3, validation_results=$4,
			submission_results=$5, last_error=$6, updated_at=$7
		WHERE id = $1`,
		b.ID, b.Status, b.StatusHistory, b.ValidationResults, b.SubmissionResults, b.LastError, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return failure.NotFound("claims.batch", "batch not found")
	}
	return nil
}

func (r *batchRepoPG) ListByOrganization(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*SubmissionBatch, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+batchCols+` FROM submission_batch
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*SubmissionBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
