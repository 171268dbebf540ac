package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
)

// BankTransaction is one line of a bank feed. Amount is positive; Type
// carries the direction.
type BankTransaction struct {
	ID            string          `json:"id"`
	BankAccountID string          `json:"bank_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description,omitempty"`
	Reference     string          `json:"reference,omitempty"`
}

// normalize turns signed feed amounts into positive amounts with a type.
func (t BankTransaction) normalize() BankTransaction {
	if t.Amount.IsNegative() {
		t.Amount = t.Amount.Neg()
		t.Type = TypeWithdrawal
	}
	if t.Type == "" {
		t.Type = TypeDeposit
	}
	return t
}

// Period is the half-open range [Start, End).
type Period struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

func (p Period) Valid() bool {
	return !p.Start.IsZero() && p.End.After(p.Start)
}

type MatchKind string

const (
	MatchExact       MatchKind = "exact"
	MatchDiscrepancy MatchKind = "discrepancy"
)

// Match pairs a bank deposit with a posted payment.
type Match struct {
	TransactionID string          `json:"transaction_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Kind          MatchKind       `json:"kind"`
	BankAmount    decimal.Decimal `json:"bank_amount"`
	SystemAmount  decimal.Decimal `json:"system_amount"`
	Difference    decimal.Decimal `json:"difference"`
	BankDate      time.Time       `json:"bank_date"`
	PostedDate    time.Time       `json:"posted_date"`
}

type Status string

const (
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusDiscrepancy Status = "discrepancy"
)

// BankReconciliation maps to the bank_reconciliation table. A finished run
// is never changed.
type BankReconciliation struct {
	ID                    uuid.UUID         `db:"id" json:"id"`
	OrganizationID        uuid.UUID         `db:"organization_id" json:"organization_id"`
	BankAccountID         string            `db:"bank_account_id" json:"bank_account_id"`
	PeriodStart           time.Time         `db:"period_start" json:"period_start"`
	PeriodEnd             time.Time         `db:"period_end" json:"period_end"`
	MatchedTransactions   []Match           `db:"matched_transactions" json:"matched_transactions"`
	UnmatchedTransactions []BankTransaction `db:"unmatched_transactions" json:"unmatched_transactions"`
	Discrepancies         []Match           `db:"discrepancies" json:"discrepancies"`
	UnmatchedPayments     []uuid.UUID       `db:"unmatched_payments" json:"unmatched_payments"`
	SkippedPayments       []uuid.UUID       `db:"skipped_payments" json:"skipped_payments,omitempty"`
	OpeningBalance        decimal.Decimal   `db:"opening_balance" json:"opening_balance"`
	TotalDeposits         decimal.Decimal   `db:"total_deposits" json:"total_deposits"`
	TotalWithdrawals      decimal.Decimal   `db:"total_withdrawals" json:"total_withdrawals"`
	ClosingBalance        decimal.Decimal   `db:"closing_balance" json:"closing_balance"`
	SystemTotal           decimal.Decimal   `db:"system_total" json:"system_total"`
	Status                Status            `db:"status" json:"status"`
	LastError             string            `db:"last_error" json:"last_error,omitempty"`
	CreatedAt             time.Time         `db:"created_at" json:"created_at"`
	CompletedAt           *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

func (r *BankReconciliation) Period() Period {
	return Period{Start: r.PeriodStart, End: r.PeriodEnd}
}

func (r *BankReconciliation) Finished() bool {
	return r.Status != StatusInProgress
}
