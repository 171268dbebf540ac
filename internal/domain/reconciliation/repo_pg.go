package reconciliation

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

type reconRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &reconRepoPG{pool: pool} }

const reconCols = `id, organization_id, bank_account_id, period_start, period_end,
	matched_transactions, unmatched_transactions, discrepancies, unmatched_payments, skipped_payments,
	opening_balance, total_deposits, total_withdrawals, closing_balance, system_total,
	status, last_error, created_at, completed_at`

func scanRecon(row pgx.Row) (*BankReconciliation, error) {
	var r BankReconciliation
	err := row.Scan(&r.ID, &r.OrganizationID, &r.BankAccountID, &r.PeriodStart, &r.PeriodEnd,
		&r.MatchedTransactions, &r.UnmatchedTransactions, &r.Discrepancies, &r.UnmatchedPayments, &r.SkippedPayments,
		&r.OpeningBalance, &r.TotalDeposits, &r.TotalWithdrawals, &r.ClosingBalance, &r.SystemTotal,
		&r.Status, &r.LastError, &r.CreatedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, failure.NotFound("reconciliation.run", "reconciliation not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *reconRepoPG) Create(ctx context.Context, rec *BankReconciliation) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bank_reconciliation (`+reconCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		rec.ID, rec.OrganizationID, rec.BankAccountID, rec.PeriodStart, rec.PeriodEnd,
		rec.MatchedTransactions, rec.UnmatchedTransactions, rec.Discrepancies, rec.UnmatchedPayments, rec.SkippedPayments,
		rec.OpeningBalance, rec.TotalDeposits, rec.TotalWithdrawals, rec.ClosingBalance, rec.SystemTotal,
		rec.Status, rec.LastError, rec.CreatedAt, rec.CompletedAt)
	return err
}

func (r *reconRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BankReconciliation, error) {
	return scanRecon(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+reconCols+` FROM bank_reconciliation WHERE id = $1`, id))
}

// Update refuses to touch a run that already finished.
func (r *reconRepoPG) Update(ctx context.Context, rec *BankReconciliation) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bank_reconciliation SET matched_transactions=$2, unmatched_transactions=$3,
			discrepancies=$4, unmatched_payments=$5, skipped_payments=$6, opening_balance=$7,
			total_deposits=$8, total_withdrawals=$9, closing_balance=$10, system_total=$11,
			status=$12, last_error=$13, completed_at=$14
		WHERE id = $1 AND status = 'in_progress'`,
		rec.ID, rec.MatchedTransactions, rec.UnmatchedTransactions,
		rec.Discrepancies, rec.UnmatchedPayments, rec.SkippedPayments, rec.OpeningBalance,
		rec.TotalDeposits, rec.TotalWithdrawals, rec.ClosingBalance, rec.SystemTotal,
		rec.Status, rec.LastError, rec.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return failure.Conflict("reconciliation.run", "reconciliation missing or already finished")
	}
	return nil
}

func (r *reconRepoPG) Previous(ctx context.Context, orgID uuid.UUID, bankAccountID string, before time.Time) (*BankReconciliation, error) {
	rec, err := scanRecon(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+reconCols+` FROM bank_reconciliation
		WHERE organization_id = $1 AND bank_account_id = $2 AND status <> 'in_progress' AND period_end <= $3
		ORDER BY period_end DESC, seq DESC LIMIT 1`, orgID, bankAccountID, before))
	if failure.KindOf(err) == failure.KindNotFound {
		return nil, nil
	}
	return rec, err
}

func (r *reconRepoPG) ListByAccount(ctx context.Context, orgID uuid.UUID, bankAccountID string) ([]*BankReconciliation, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+reconCols+` FROM bank_reconciliation
		WHERE organization_id = $1 AND ($2 = '' OR bank_account_id = $2)
		ORDER BY period_start DESC, seq DESC`, orgID, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BankReconciliation
	for rows.Next() {
		rec, err := scanRecon(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
