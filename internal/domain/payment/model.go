package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCreditCard Method = "credit_card"
	MethodDebitCard  Method = "debit_card"
	MethodACH        Method = "ach"
	MethodCheck      Method = "check"
	MethodCash       Method = "cash"
)

// Offline methods are settled at the front desk, not through the gateway.
func (m Method) Offline() bool { return m == MethodCash || m == MethodCheck }

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDisputed  Status = "disputed"
)

type ReconciliationStatus string

const (
	ReconUnmatched   ReconciliationStatus = "unmatched"
	ReconMatched     ReconciliationStatus = "matched"
	ReconDiscrepancy ReconciliationStatus = "discrepancy"
)

// Payment maps to the payment table. Payments are never deleted.
type Payment struct {
	ID                   uuid.UUID            `db:"id" json:"id"`
	OrganizationID       uuid.UUID            `db:"organization_id" json:"organization_id" validate:"required"`
	PatientID            uuid.UUID            `db:"patient_id" json:"patient_id" validate:"required"`
	ClaimID              *uuid.UUID           `db:"claim_id" json:"claim_id,omitempty"`
	BankAccountID        string               `db:"bank_account_id" json:"bank_account_id,omitempty"`
	Amount               decimal.Decimal      `db:"amount" json:"amount"`
	PaymentMethod        Method               `db:"payment_method" json:"payment_method" validate:"oneof=credit_card debit_card ach check cash"`
	Status               Status               `db:"status" json:"status"`
	PostedDate           *time.Time           `db:"posted_date" json:"posted_date,omitempty"`
	ReconciliationStatus ReconciliationStatus `db:"reconciliation_status" json:"reconciliation_status"`
	TransactionID        string               `db:"transaction_id" json:"transaction_id,omitempty"`
	ProcessedAt          *time.Time           `db:"processed_at" json:"processed_at,omitempty"`
	FailureReason        string               `db:"failure_reason" json:"failure_reason,omitempty"`
	InitiatedAt          time.Time            `db:"initiated_at" json:"initiated_at"`
	CreatedAt            time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time            `db:"updated_at" json:"updated_at"`
}

func (p *Payment) Posted() bool { return p.PostedDate != nil }

const EntryPayment = "payment"

// LedgerEntry is a patient-ledger line written when a payment posts.
type LedgerEntry struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	OrganizationID uuid.UUID       `db:"organization_id" json:"organization_id"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	PaymentID      uuid.UUID       `db:"payment_id" json:"payment_id"`
	ClaimID        *uuid.UUID      `db:"claim_id" json:"claim_id,omitempty"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	EntryType      string          `db:"entry_type" json:"entry_type"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// GatewayResult is the processor's answer for one payment.
type GatewayResult struct {
	Success       bool      `json:"success"`
	TransactionID string    `json:"transaction_id"`
	ProcessedAt   time.Time `json:"processed_at"`
	FailureReason string    `json:"failure_reason,omitempty"`
}
