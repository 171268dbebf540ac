package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &paymentRepoPG{pool: pool} }

const paymentCols = `id, organization_id, patient_id, claim_id, bank_account_id, amount,
	payment_method, status, posted_date, reconciliation_status, transaction_id,
	processed_at, failure_reason, initiated_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrganizationID, &p.PatientID, &p.ClaimID, &p.BankAccountID, &p.Amount,
		&p.PaymentMethod, &p.Status, &p.PostedDate, &p.ReconciliationStatus, &p.TransactionID,
		&p.ProcessedAt, &p.FailureReason, &p.InitiatedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, failure.NotFound("payment.payment", "payment not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]*Payment, error) {
	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO payment (`+paymentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.OrganizationID, p.PatientID, p.ClaimID, p.BankAccountID, p.Amount,
		p.PaymentMethod, p.Status, p.PostedDate, p.ReconciliationStatus, p.TransactionID,
		p.ProcessedAt, p.FailureReason, p.InitiatedAt, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE id = $1`, id))
}

func (r *paymentRepoPG) Update(ctx context.Context, p *Payment) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE payment SET claim_id=$2, bank_account_id=$3, status=$4, posted_date=$5,
			reconciliation_status=$6, transaction_id=$7, processed_at=$8, failure_reason=$9, updated_at=$10
		WHERE id = $1`,
		p.ID, p.ClaimID, p.BankAccountID, p.Status, p.PostedDate,
		p.ReconciliationStatus, p.TransactionID, p.ProcessedAt, p.FailureReason, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return failure.NotFound("payment.payment", "payment not found")
	}
	return nil
}

func (r *paymentRepoPG) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM payment WHERE organization_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+paymentCols+` FROM payment WHERE organization_id = $1
		ORDER BY created_at DESC, seq DESC LIMIT $2 OFFSET $3`, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectPayments(rows)
	return items, total, err
}

func (r *paymentRepoPG) ListPosted(ctx context.Context, orgID uuid.UUID, bankAccountID string, from, to time.Time) ([]*Payment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+paymentCols+` FROM payment
		WHERE organization_id = $1 AND bank_account_id = $2 AND status = 'completed'
			AND posted_date IS NOT NULL AND posted_date >= $3 AND posted_date < $4
		ORDER BY posted_date, seq`, orgID, bankAccountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (r *paymentRepoPG) SetReconciliationStatus(ctx context.Context, id uuid.UUID, status ReconciliationStatus) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE payment SET reconciliation_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return failure.NotFound("payment.payment", "payment not found")
	}
	return nil
}

func (r *paymentRepoPG) RecentAmounts(ctx context.Context, orgID, patientID uuid.UUID, since time.Time, exclude uuid.UUID) ([]decimal.Decimal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT amount FROM payment
		WHERE organization_id = $1 AND patient_id = $2 AND initiated_at >= $3 AND id <> $4`,
		orgID, patientID, since, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []decimal.Decimal
	for rows.Next() {
		var amt decimal.Decimal
		if err := rows.Scan(&amt); err != nil {
			return nil, err
		}
		out = append(out, amt)
	}
	return out, rows.Err()
}

// =========== Ledger Repository ===========

type ledgerRepoPG struct{ pool *pgxpool.Pool }

func NewLedgerRepoPG(pool *pgxpool.Pool) LedgerRepository { return &ledgerRepoPG{pool: pool} }

func (r *ledgerRepoPG) Create(ctx context.Context, e *LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO ledger_entry (id, organization_id, patient_id, payment_id, claim_id, amount, entry_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.OrganizationID, e.PatientID, e.PaymentID, e.ClaimID, e.Amount, e.EntryType, e.CreatedAt)
	return err
}

func (r *ledgerRepoPG) ListByPatient(ctx context.Context, orgID, patientID uuid.UUID) ([]*LedgerEntry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, organization_id, patient_id, payment_id, claim_id, amount, entry_type, created_at
		FROM ledger_entry WHERE organization_id = $1 AND patient_id = $2
		ORDER BY created_at, seq`, orgID, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.PatientID, &e.PaymentID, &e.ClaimID,
			&e.Amount, &e.EntryType, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
