package denial

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryAuthorization Category = "authorization"
	CategoryCoverage      Category = "coverage"
	CategoryDuplicate     Category = "duplicate"
	CategoryTimelyFiling  Category = "timely_filing"
	CategoryClinical      Category = "clinical"
	CategoryTechnical     Category = "technical"
)

// Appealable reports whether a denial in the category can be appealed.
// Duplicates and late filings are final.
func (c Category) Appealable() bool {
	return c != CategoryDuplicate && c != CategoryTimelyFiling
}

// AutoAppealable reports whether an appeal can be generated without a
// human looking at the denial first.
func (c Category) AutoAppealable() bool {
	return c == CategoryTechnical || c == CategoryAuthorization
}

// Disposition records where the analysis sent the denial.
type Disposition string

const (
	DispositionAutoAppeal   Disposition = "auto_appeal"
	DispositionManualReview Disposition = "manual_review"
	DispositionClosed       Disposition = "closed"
)

// Input is one denial event reported by a payer.
type Input struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ClaimID        uuid.UUID `json:"claim_id"`
	DenialCode     string    `json:"denial_code" validate:"required_without=DenialReason"`
	DenialReason   string    `json:"denial_reason" validate:"required_without=DenialCode"`
	DeniedAt       time.Time `json:"denied_at"`
}

// Analysis maps to the denial_analysis table. It is immutable after
// creation except for the resolution fields.
type Analysis struct {
	ID                 uuid.UUID   `db:"id" json:"id"`
	OrganizationID     uuid.UUID   `db:"organization_id" json:"organization_id"`
	ClaimID            uuid.UUID   `db:"claim_id" json:"claim_id"`
	DenialCode         string      `db:"denial_code" json:"denial_code"`
	DenialReason       string      `db:"denial_reason" json:"denial_reason"`
	Category           Category    `db:"category" json:"category"`
	IsAppealable       bool        `db:"is_appealable" json:"is_appealable"`
	AppealDeadline     *time.Time  `db:"appeal_deadline" json:"appeal_deadline,omitempty"`
	RootCause          string      `db:"root_cause" json:"root_cause"`
	PreventionStrategy string      `db:"prevention_strategy" json:"prevention_strategy"`
	Disposition        Disposition `db:"disposition" json:"disposition"`
	DeniedAt           time.Time   `db:"denied_at" json:"denied_at"`
	IsResolved         bool        `db:"is_resolved" json:"is_resolved"`
	ResolvedAt         *time.Time  `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
}

type AppealStatus string

const (
	AppealGenerated AppealStatus = "generated"
	AppealSubmitted AppealStatus = "submitted"
)

// Appeal is a generated appeal letter kept with the analysis it answers.
type Appeal struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	OrganizationID uuid.UUID    `db:"organization_id" json:"organization_id"`
	AnalysisID     uuid.UUID    `db:"analysis_id" json:"analysis_id"`
	ClaimID        uuid.UUID    `db:"claim_id" json:"claim_id"`
	Subject        string       `db:"subject" json:"subject"`
	Letter         string       `db:"letter" json:"letter"`
	Status         AppealStatus `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// Outcome is the result of one Analyze call.
type Outcome struct {
	Analysis *Analysis `json:"analysis"`
	Appeal   *Appeal   `json:"appeal,omitempty"`
}
