package fraud

import (
	"time"

	"github.com/google/uuid"
)

type SubjectType string

const (
	SubjectPayment SubjectType = "payment"
	SubjectClaim   SubjectType = "claim"
)

type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusInvestigating Status = "investigating"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Factor names.
const (
	FactorLargeAmount     = "large_amount"
	FactorOffHours        = "off_hours"
	FactorPaymentMethod   = "payment_method"
	FactorVelocity        = "velocity"
	FactorDuplicateAmount = "duplicate_amount"
)

type RiskFactor struct {
	Name         string   `json:"name"`
	Weight       float64  `json:"weight"`
	Score        float64  `json:"score"`
	Contribution float64  `json:"contribution"`
	Severity     Severity `json:"severity"`
	Detail       string   `json:"detail,omitempty"`
}

// Detection is an immutable fraud assessment. A manual review records a new
// Detection whose SupersedesID points at the one reviewed.
type Detection struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	OrganizationID uuid.UUID    `db:"organization_id" json:"organization_id"`
	SubjectType    SubjectType  `db:"subject_type" json:"subject_type"`
	SubjectID      uuid.UUID    `db:"subject_id" json:"subject_id"`
	RiskFactors    []RiskFactor `db:"risk_factors" json:"risk_factors"`
	RiskScore      float64      `db:"risk_score" json:"risk_score"`
	Status         Status       `db:"status" json:"status"`
	SupersedesID   *uuid.UUID   `db:"supersedes_id" json:"supersedes_id,omitempty"`
	Reviewer       *string      `db:"reviewer" json:"reviewer,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// RequiresReview reports whether the detection holds its subject.
func (d *Detection) RequiresReview() bool {
	return d.Status == StatusPendingReview
}

// Decision is the outcome of a manual review.
type Decision string

const (
	DecisionApprove     Decision = "approve"
	DecisionInvestigate Decision = "investigate"
)
