package claims

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/fraud"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusValidating Status = "validating"
	StatusPending    Status = "pending"
	StatusSubmitted  Status = "submitted"
	StatusPaid       Status = "paid"
	StatusDenied     Status = "denied"
	StatusAppealed   Status = "appealed"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusDraft:      {StatusValidating, StatusPending},
	StatusValidating: {StatusPending, StatusSubmitted, StatusRejected},
	StatusPending:    {StatusValidating, StatusSubmitted, StatusRejected, StatusPaid},
	StatusSubmitted:  {StatusPaid, StatusDenied, StatusRejected},
	StatusDenied:     {StatusAppealed, StatusPaid, StatusResolved},
	StatusAppealed:   {StatusSubmitted, StatusPaid, StatusDenied, StatusResolved},
	StatusPaid:       {StatusDenied, StatusResolved},
	StatusRejected:   {StatusValidating, StatusPending},
	StatusResolved:   {},
}

// CanTransition reports whether a claim may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ServiceLine struct {
	ProcedureCode string          `json:"procedure_code"`
	Modifiers     []string        `json:"modifiers,omitempty"`
	Units         int             `json:"units"`
	Charge        decimal.Decimal `json:"charge"`
}

type Eligibility string

const (
	EligibilityActive     Eligibility = "active"
	EligibilityInactive   Eligibility = "inactive"
	EligibilityUnverified Eligibility = "unverified"
)

type Insurance struct {
	PayerID           string      `json:"payer_id"`
	PayerName         string      `json:"payer_name"`
	MemberNumber      string      `json:"member_number"`
	GroupNumber       string      `json:"group_number,omitempty"`
	EligibilityStatus Eligibility `json:"eligibility_status,omitempty"`
}

type QualityMetrics struct {
	ValidationAttempts int        `json:"validation_attempts"`
	LastErrorCount     int        `json:"last_error_count"`
	LastWarningCount   int        `json:"last_warning_count"`
	FirstPassClean     bool       `json:"first_pass_clean"`
	LastValidatedAt    *time.Time `json:"last_validated_at,omitempty"`
}

// Claim maps to the claim table.
type Claim struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	OrganizationID     uuid.UUID       `db:"organization_id" json:"organization_id" validate:"required"`
	PatientID          uuid.UUID       `db:"patient_id" json:"patient_id" validate:"required"`
	ProviderID         *uuid.UUID      `db:"provider_id" json:"provider_id,omitempty"`
	EncounterID        *uuid.UUID      `db:"encounter_id" json:"encounter_id,omitempty"`
	ClaimNumber        string          `db:"claim_number" json:"claim_number"`
	PatientName        string          `db:"patient_name" json:"patient_name"`
	DateOfBirth        *time.Time      `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender             string          `db:"gender" json:"gender,omitempty"`
	PostalCode         string          `db:"postal_code" json:"postal_code,omitempty"`
	ProviderNPI        string          `db:"provider_npi" json:"provider_npi,omitempty"`
	ServiceDate        *time.Time      `db:"service_date" json:"service_date,omitempty"`
	ServiceLines       []ServiceLine   `db:"service_lines" json:"service_lines"`
	DiagnosisCodes     []string        `db:"diagnosis_codes" json:"diagnosis_codes"`
	PriorAuthNumber    string          `db:"prior_auth_number" json:"prior_auth_number,omitempty"`
	TotalCharges       decimal.Decimal `db:"total_charges" json:"total_charges"`
	TotalPayments      decimal.Decimal `db:"total_payments" json:"total_payments"`
	TotalAdjustments   decimal.Decimal `db:"total_adjustments" json:"total_adjustments"`
	Balance            decimal.Decimal `db:"balance" json:"balance"`
	PrimaryInsurance   Insurance       `db:"primary_insurance" json:"primary_insurance"`
	ValidationScore    float64         `db:"validation_score" json:"validation_score"`
	QualityMetrics     QualityMetrics  `db:"quality_metrics" json:"quality_metrics"`
	Status             Status          `db:"status" json:"status"`
	SubmissionID       string          `db:"submission_id" json:"submission_id,omitempty"`
	AcknowledgmentCode string          `db:"acknowledgment_code" json:"acknowledgment_code,omitempty"`
	ClearinghouseID    string          `db:"clearinghouse_id" json:"clearinghouse_id,omitempty"`
	SubmittedAt        *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`
	LastError          string          `db:"last_error" json:"last_error,omitempty"`
	ArchivedAt         *time.Time      `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Recalculate restores Balance = TotalCharges - TotalPayments - TotalAdjustments.
func (c *Claim) Recalculate() {
	c.Balance = c.TotalCharges.Sub(c.TotalPayments).Sub(c.TotalAdjustments)
}

// LineTotal sums the service line charges.
func (c *Claim) LineTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.ServiceLines {
		total = total.Add(l.Charge)
	}
	return total
}

// SetStatus moves the claim to s if the transition is allowed.
func (c *Claim) SetStatus(s Status) error {
	if c.ArchivedAt != nil {
		return fmt.Errorf("claim %s is archived", c.ID)
	}
	if !CanTransition(c.Status, s) {
		return fmt.Errorf("claim %s: cannot move from %s to %s", c.ID, c.Status, s)
	}
	c.Status = s
	return nil
}

// ApplyPayment adds amount to TotalPayments and marks the claim paid once the
// balance reaches zero.
func (c *Claim) ApplyPayment(amount decimal.Decimal) error {
	c.TotalPayments = c.TotalPayments.Add(amount)
	c.Recalculate()
	if c.Balance.LessThanOrEqual(decimal.Zero) && c.Status != StatusPaid {
		return c.SetStatus(StatusPaid)
	}
	return nil
}

// Archive resolves the claim. Archived claims are kept but never change again.
func (c *Claim) Archive(at time.Time) error {
	if err := c.SetStatus(StatusResolved); err != nil {
		return err
	}
	c.ArchivedAt = &at
	return nil
}

type Category string

const (
	CategoryCoding      Category = "coding"
	CategoryDemographic Category = "demographic"
	CategoryInsurance   Category = "insurance"
	CategoryPayer       Category = "payer"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Issue struct {
	Code     string   `json:"code"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
}

type SubScores struct {
	Coding      float64 `json:"coding"`
	Demographic float64 `json:"demographic"`
	Insurance   float64 `json:"insurance"`
	Payer       float64 `json:"payer"`
}

// ValidationResult is one validation attempt. It is never updated; each
// attempt appends a new result to the claim's history.
type ValidationResult struct {
	ID              uuid.UUID `db:"id" json:"id"`
	ClaimID         uuid.UUID `db:"claim_id" json:"claim_id"`
	IsValid         bool      `db:"is_valid" json:"is_valid"`
	ValidationScore float64   `db:"validation_score" json:"validation_score"`
	SubScores       SubScores `db:"sub_scores" json:"sub_scores"`
	Errors          []Issue   `db:"errors" json:"errors"`
	Warnings        []Issue   `db:"warnings" json:"warnings"`
	Recommendations []Issue   `db:"recommendations" json:"recommendations"`
	ValidatedAt     time.Time `db:"validated_at" json:"validated_at"`
}

// HasCode reports whether any error or warning carries code.
func (r *ValidationResult) HasCode(code string) bool {
	for _, list := range [][]Issue{r.Errors, r.Warnings} {
		for _, i := range list {
			if i.Code == code {
				return true
			}
		}
	}
	return false
}

type BatchStatus string

const (
	BatchPreparing  BatchStatus = "preparing"
	BatchValidating BatchStatus = "validating"
	BatchSubmitting BatchStatus = "submitting"
	BatchSubmitted  BatchStatus = "submitted"
	BatchRejected   BatchStatus = "rejected"
)

var batchRank = map[BatchStatus]int{
	BatchPreparing:  0,
	BatchValidating: 1,
	BatchSubmitting: 2,
	BatchSubmitted:  3,
	BatchRejected:   3,
}

func (s BatchStatus) Terminal() bool {
	return s == BatchSubmitted || s == BatchRejected
}

type BatchTransition struct {
	Status BatchStatus `json:"status"`
	At     time.Time   `json:"at"`
}

// SubmissionResult is the clearinghouse's answer for one claim.
type SubmissionResult struct {
	ClaimID            uuid.UUID `json:"claim_id"`
	IsAccepted         bool      `json:"is_accepted"`
	AcknowledgmentCode string    `json:"acknowledgment_code,omitempty"`
	SubmissionID       string    `json:"submission_id,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Message            string    `json:"message,omitempty"`
}

// SubmissionBatch maps to the submission_batch table.
type SubmissionBatch struct {
	ID                uuid.UUID           `db:"id" json:"id"`
	OrganizationID    uuid.UUID           `db:"organization_id" json:"organization_id"`
	ClaimIDs          []uuid.UUID         `db:"claim_ids" json:"claim_ids"`
	DroppedClaimIDs   []uuid.UUID         `db:"dropped_claim_ids" json:"dropped_claim_ids,omitempty"`
	ClearinghouseID   string              `db:"clearinghouse_id" json:"clearinghouse_id"`
	Status            BatchStatus         `db:"status" json:"status"`
	StatusHistory     []BatchTransition   `db:"status_history" json:"status_history"`
	ValidationResults []*ValidationResult `db:"validation_results" json:"validation_results"`
	SubmissionResults []SubmissionResult  `db:"submission_results" json:"submission_results,omitempty"`
	LastError         string              `db:"last_error" json:"last_error,omitempty"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// Advance moves the batch forward. Backward moves and moves out of a
// terminal status are refused.
func (b *SubmissionBatch) Advance(to BatchStatus, at time.Time) error {
	if b.Status.Terminal() {
		return fmt.Errorf("batch %s is %s", b.ID, b.Status)
	}
	next, ok := batchRank[to]
	if !ok {
		return fmt.Errorf("unknown batch status %q", to)
	}
	if next <= batchRank[b.Status] {
		return fmt.Errorf("batch %s: cannot move from %s to %s", b.ID, b.Status, to)
	}
	b.Status = to
	b.StatusHistory = append(b.StatusHistory, BatchTransition{Status: to, At: at})
	b.UpdatedAt = at
	return nil
}

// ValidClaimIDs returns the claims that passed validation, in batch order.
func (b *SubmissionBatch) ValidClaimIDs() []uuid.UUID {
	valid := make(map[uuid.UUID]bool, len(b.ValidationResults))
	for _, r := range b.ValidationResults {
		if r != nil && r.IsValid {
			valid[r.ClaimID] = true
		}
	}
	var ids []uuid.UUID
	for _, id := range b.ClaimIDs {
		if valid[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// ProcessResult is what Processor.Process reports for one claim.
type ProcessResult struct {
	Claim            *Claim            `json:"claim"`
	ValidationResult *ValidationResult `json:"validation_result"`
	FraudDetection   *fraud.Detection  `json:"fraud_detection,omitempty"`
	FraudHold        bool              `json:"fraud_hold"`
	Submission       *SubmissionResult `json:"submission,omitempty"`
	SubmissionError  error             `json:"-"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
}
