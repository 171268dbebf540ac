package claims

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationWeights combine the four sub-scores into ValidationScore.
type ValidationWeights struct {
	Coding      float64
	Demographic float64
	Insurance   float64
	Payer       float64
}

func DefaultValidationWeights() ValidationWeights {
	return ValidationWeights{Coding: 0.4, Demographic: 0.2, Insurance: 0.2, Payer: 0.2}
}

// Penalty describes one defect the engine can detect.
type Penalty struct {
	Category       Category
	Severity       Severity
	Amount         float64
	Message        string
	Recommendation string
}

// Penalty codes.
const (
	CodeNoServiceLines        = "NO_SERVICE_LINES"
	CodeMissingProcedureCode  = "MISSING_PROCEDURE_CODE"
	CodeInvalidProcedureCode  = "INVALID_PROCEDURE_CODE"
	CodeInvalidUnits          = "INVALID_UNITS"
	CodeInvalidCharge         = "INVALID_CHARGE"
	CodeTooManyModifiers      = "TOO_MANY_MODIFIERS"
	CodeMissingDiagnosisCode  = "MISSING_DIAGNOSIS_CODE"
	CodeInvalidDiagnosisCode  = "INVALID_DIAGNOSIS_CODE"
	CodeChargeMismatch        = "CHARGE_MISMATCH"
	CodeMissingPatientName    = "MISSING_PATIENT_NAME"
	CodeMissingDateOfBirth    = "MISSING_DATE_OF_BIRTH"
	CodeFutureDateOfBirth     = "FUTURE_DATE_OF_BIRTH"
	CodeMissingGender         = "MISSING_GENDER"
	CodeMissingPostalCode     = "MISSING_POSTAL_CODE"
	CodeMissingPayer          = "MISSING_PAYER"
	CodeMissingMemberNumber   = "MISSING_MEMBER_NUMBER"
	CodeMissingGroupNumber    = "MISSING_GROUP_NUMBER"
	CodeEligibilityInactive   = "ELIGIBILITY_INACTIVE"
	CodeEligibilityUnverified = "ELIGIBILITY_UNVERIFIED"
	CodeMissingServiceDate    = "MISSING_SERVICE_DATE"
	CodeFutureServiceDate     = "FUTURE_SERVICE_DATE"
	CodeTimelyFilingExceeded  = "TIMELY_FILING_EXCEEDED"
	CodeTimelyFilingAtRisk    = "TIMELY_FILING_AT_RISK"
	CodeMissingPriorAuth      = "MISSING_PRIOR_AUTH"
	CodeMissingProviderNPI    = "MISSING_PROVIDER_NPI"
	CodeInvalidProviderNPI    = "INVALID_PROVIDER_NPI"
)

// Penalties maps a defect code to its penalty.
type Penalties map[string]Penalty

func DefaultPenalties() Penalties {
	return Penalties{
		CodeNoServiceLines:       {CategoryCoding, SeverityError, 0.5, "claim has no service lines", "add at least one billable service line"},
		CodeMissingProcedureCode: {CategoryCoding, SeverityError, 0.2, "service line is missing a procedure code", "code every service line with CPT or HCPCS"},
		CodeInvalidProcedureCode: {CategoryCoding, SeverityError, 0.1, "procedure code is not a valid CPT or HCPCS code", "verify the procedure code against the current code set"},
		CodeInvalidUnits:         {CategoryCoding, SeverityError, 0.1, "service line units must be positive", ""},
		CodeInvalidCharge:        {CategoryCoding, SeverityError, 0.1, "service line charge must be positive", ""},
		CodeTooManyModifiers:     {CategoryCoding, SeverityWarning, 0.05, "more than four modifiers on a service line", "payers read at most four modifiers per line"},
		CodeMissingDiagnosisCode: {CategoryCoding, SeverityError, 0.3, "claim has no diagnosis code", "add the primary ICD-10 diagnosis"},
		CodeInvalidDiagnosisCode: {CategoryCoding, SeverityWarning, 0.1, "diagnosis code is not ICD-10 formatted", "verify the diagnosis code format"},
		CodeChargeMismatch:       {CategoryCoding, SeverityWarning, 0.1, "total charges differ from the sum of service lines", "recompute total charges from the service lines"},

		CodeMissingPatientName: {CategoryDemographic, SeverityError, 0.3, "patient name is missing", ""},
		CodeMissingDateOfBirth: {CategoryDemographic, SeverityError, 0.3, "patient date of birth is missing", ""},
		CodeFutureDateOfBirth:  {CategoryDemographic, SeverityError, 0.3, "patient date of birth is in the future", ""},
		CodeMissingGender:      {CategoryDemographic, SeverityWarning, 0.1, "patient gender is missing", "record administrative gender for payer matching"},
		CodeMissingPostalCode:  {CategoryDemographic, SeverityWarning, 0.1, "patient postal code is missing", "record the patient address"},

		CodeMissingPayer:          {CategoryInsurance, SeverityError, 0.4, "primary insurance payer is missing", ""},
		CodeMissingMemberNumber:   {CategoryInsurance, SeverityError, 0.3, "insurance member number is missing", "capture the member number from the insurance card"},
		CodeMissingGroupNumber:    {CategoryInsurance, SeverityWarning, 0.05, "insurance group number is missing", "capture the group number for employer plans"},
		CodeEligibilityInactive:   {CategoryInsurance, SeverityError, 0.5, "coverage is inactive", "confirm coverage or bill the patient"},
		CodeEligibilityUnverified: {CategoryInsurance, SeverityWarning, 0.1, "eligibility has not been verified", "run an eligibility check before submission"},

		CodeMissingServiceDate:   {CategoryPayer, SeverityError, 0.3, "service date is missing", ""},
		CodeFutureServiceDate:    {CategoryPayer, SeverityError, 0.3, "service date is in the future", ""},
		CodeTimelyFilingExceeded: {CategoryPayer, SeverityError, 0.5, "payer timely filing limit exceeded", ""},
		CodeTimelyFilingAtRisk:   {CategoryPayer, SeverityWarning, 0.1, "claim is close to the payer timely filing limit", "submit this claim first"},
		CodeMissingPriorAuth:     {CategoryPayer, SeverityError, 0.3, "procedure requires prior authorization", "obtain and record the prior authorization number"},
		CodeMissingProviderNPI:   {CategoryPayer, SeverityError, 0.2, "rendering provider NPI is missing", ""},
		CodeInvalidProviderNPI:   {CategoryPayer, SeverityError, 0.2, "rendering provider NPI fails the check digit", "verify the NPI against NPPES"},
	}
}

// PayerRule holds payer-specific submission requirements.
type PayerRule struct {
	TimelyFilingDays int
	// AtRiskDays before the filing limit raise a warning.
	AtRiskDays     int
	PriorAuthCodes []string
	RequireNPI     bool
}

func DefaultPayerRule() PayerRule {
	return PayerRule{TimelyFilingDays: 365, AtRiskDays: 30, RequireNPI: true}
}

type ValidationConfig struct {
	Weights     ValidationWeights
	Penalties   Penalties
	PayerRules  map[string]PayerRule
	DefaultRule PayerRule
	Now         func() time.Time
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		Weights:     DefaultValidationWeights(),
		Penalties:   DefaultPenalties(),
		DefaultRule: DefaultPayerRule(),
	}
}

// ValidationEngine scores claims. Given the same claim and clock it always
// returns the same result.
type ValidationEngine struct {
	cfg ValidationConfig
}

func NewValidationEngine(cfg ValidationConfig) *ValidationEngine {
	if cfg.Penalties == nil {
		cfg.Penalties = DefaultPenalties()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &ValidationEngine{cfg: cfg}
}

var (
	cptPattern   = regexp.MustCompile(`^\d{4}[0-9FTU]$`)
	hcpcsPattern = regexp.MustCompile(`^[A-V]\d{4}$`)
	icd10Pattern = regexp.MustCompile(`^[A-Z]\d[0-9A-Z](\.?[0-9A-Z]{1,4})?$`)
)

type collector struct {
	penalties Penalties
	scores    map[Category]float64
	result    *ValidationResult
}

func (c *collector) flag(code, field string) {
	p, ok := c.penalties[code]
	if !ok {
		return
	}
	c.scores[p.Category] -= p.Amount
	issue := Issue{Code: code, Field: field, Message: p.Message, Category: p.Category, Severity: p.Severity}
	switch p.Severity {
	case SeverityError:
		c.result.Errors = append(c.result.Errors, issue)
	case SeverityWarning:
		c.result.Warnings = append(c.result.Warnings, issue)
	}
	if p.Recommendation != "" {
		c.result.Recommendations = append(c.result.Recommendations, Issue{
			Code: code, Field: field, Message: p.Recommendation, Category: p.Category, Severity: SeverityInfo,
		})
	}
}

func (e *ValidationEngine) Validate(claim *Claim) *ValidationResult {
	now := e.cfg.Now()
	res := &ValidationResult{
		ClaimID:         claim.ID,
		Errors:          []Issue{},
		Warnings:        []Issue{},
		Recommendations: []Issue{},
		ValidatedAt:     now,
	}
	c := &collector{
		penalties: e.cfg.Penalties,
		scores: map[Category]float64{
			CategoryCoding: 1, CategoryDemographic: 1, CategoryInsurance: 1, CategoryPayer: 1,
		},
		result: res,
	}

	e.checkCoding(c, claim)
	e.checkDemographics(c, claim, now)
	e.checkInsurance(c, claim)
	e.checkPayer(c, claim, now)

	res.SubScores = SubScores{
		Coding:      clamp(c.scores[CategoryCoding]),
		Demographic: clamp(c.scores[CategoryDemographic]),
		Insurance:   clamp(c.scores[CategoryInsurance]),
		Payer:       clamp(c.scores[CategoryPayer]),
	}
	w := e.cfg.Weights
	score := w.Coding*res.SubScores.Coding +
		w.Demographic*res.SubScores.Demographic +
		w.Insurance*res.SubScores.Insurance +
		w.Payer*res.SubScores.Payer
	res.ValidationScore = clamp(math.Round(score*1e6) / 1e6)
	res.IsValid = len(res.Errors) == 0
	return res
}

func (e *ValidationEngine) checkCoding(c *collector, claim *Claim) {
	if len(claim.ServiceLines) == 0 {
		c.flag(CodeNoServiceLines, "service_lines")
	}
	for i, line := range claim.ServiceLines {
		field := fmt.Sprintf("service_lines[%d]", i)
		code := strings.ToUpper(strings.TrimSpace(line.ProcedureCode))
		switch {
		case code == "":
			c.flag(CodeMissingProcedureCode, field+".procedure_code")
		case !cptPattern.MatchString(code) && !hcpcsPattern.MatchString(code):
			c.flag(CodeInvalidProcedureCode, field+".procedure_code")
		}
		if line.Units <= 0 {
			c.flag(CodeInvalidUnits, field+".units")
		}
		if !line.Charge.IsPositive() {
			c.flag(CodeInvalidCharge, field+".charge")
		}
		if len(line.Modifiers) > 4 {
			c.flag(CodeTooManyModifiers, field+".modifiers")
		}
	}
	if len(claim.DiagnosisCodes) == 0 {
		c.flag(CodeMissingDiagnosisCode, "diagnosis_codes")
	}
	for i, dx := range claim.DiagnosisCodes {
		if !icd10Pattern.MatchString(strings.ToUpper(strings.TrimSpace(dx))) {
			c.flag(CodeInvalidDiagnosisCode, fmt.Sprintf("diagnosis_codes[%d]", i))
		}
	}
	if len(claim.ServiceLines) > 0 && !claim.LineTotal().Equal(claim.TotalCharges) {
		c.flag(CodeChargeMismatch, "total_charges")
	}
}

func (e *ValidationEngine) checkDemographics(c *collector, claim *Claim, now time.Time) {
	if strings.TrimSpace(claim.PatientName) == "" {
		c.flag(CodeMissingPatientName, "patient_name")
	}
	switch {
	case claim.DateOfBirth == nil:
		c.flag(CodeMissingDateOfBirth, "date_of_birth")
	case claim.DateOfBirth.After(now):
		c.flag(CodeFutureDateOfBirth, "date_of_birth")
	}
	if strings.TrimSpace(claim.Gender) == "" {
		c.flag(CodeMissingGender, "gender")
	}
	if strings.TrimSpace(claim.PostalCode) == "" {
		c.flag(CodeMissingPostalCode, "postal_code")
	}
}

func (e *ValidationEngine) checkInsurance(c *collector, claim *Claim) {
	ins := claim.PrimaryInsurance
	if strings.TrimSpace(ins.PayerID) == "" {
		c.flag(CodeMissingPayer, "primary_insurance.payer_id")
	}
	if strings.TrimSpace(ins.MemberNumber) == "" {
		c.flag(CodeMissingMemberNumber, "primary_insurance.member_number")
	}
	if strings.TrimSpace(ins.GroupNumber) == "" {
		c.flag(CodeMissingGroupNumber, "primary_insurance.group_number")
	}
	switch ins.EligibilityStatus {
	case EligibilityInactive:
		c.flag(CodeEligibilityInactive, "primary_insurance.eligibility_status")
	case EligibilityActive:
	default:
		c.flag(CodeEligibilityUnverified, "primary_insurance.eligibility_status")
	}
}

func (e *ValidationEngine) checkPayer(c *collector, claim *Claim, now time.Time) {
	rule := e.RuleFor(claim.PrimaryInsurance.PayerID)

	switch {
	case claim.ServiceDate == nil:
		c.flag(CodeMissingServiceDate, "service_date")
	case claim.ServiceDate.After(now):
		c.flag(CodeFutureServiceDate, "service_date")
	case rule.TimelyFilingDays > 0:
		deadline := claim.ServiceDate.AddDate(0, 0, rule.TimelyFilingDays)
		if now.After(deadline) {
			c.flag(CodeTimelyFilingExceeded, "service_date")
		} else if rule.AtRiskDays > 0 && now.After(deadline.AddDate(0, 0, -rule.AtRiskDays)) {
			c.flag(CodeTimelyFilingAtRisk, "service_date")
		}
	}

	if strings.TrimSpace(claim.PriorAuthNumber) == "" && len(rule.PriorAuthCodes) > 0 {
		for i, line := range claim.ServiceLines {
			if containsCode(rule.PriorAuthCodes, line.ProcedureCode) {
				c.flag(CodeMissingPriorAuth, fmt.Sprintf("service_lines[%d].procedure_code", i))
				break
			}
		}
	}

	switch {
	case claim.ProviderNPI == "":
		if rule.RequireNPI {
			c.flag(CodeMissingProviderNPI, "provider_npi")
		}
	case !ValidNPI(claim.ProviderNPI):
		c.flag(CodeInvalidProviderNPI, "provider_npi")
	}
}

// RuleFor returns the payer's rule, or the default rule for unknown payers.
func (e *ValidationEngine) RuleFor(payerID string) PayerRule {
	if r, ok := e.cfg.PayerRules[payerID]; ok {
		return r
	}
	return e.cfg.DefaultRule
}

// ValidNPI checks a 10-digit NPI with the Luhn check digit over the 80840
// prefixed number.
func ValidNPI(npi string) bool {
	if len(npi) != 10 {
		return false
	}
	sum := 24 // contribution of the 80840 prefix
	for i := 8; i >= 0; i-- {
		ch := npi[i]
		if ch < '0' || ch > '9' {
			return false
		}
		d := int(ch - '0')
		if (8-i)%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	last := npi[9]
	if last < '0' || last > '9' {
		return false
	}
	return (10-sum%10)%10 == int(last-'0')
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, strings.TrimSpace(code)) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// CheckPostingEligibility reports why amount cannot be posted to claim, or
// nil when it can.
func CheckPostingEligibility(claim *Claim, amount decimal.Decimal) error {
	if claim == nil {
		return fmt.Errorf("claim is required")
	}
	if claim.ArchivedAt != nil {
		return fmt.Errorf("claim %s is archived", claim.ClaimNumber)
	}
	switch claim.Status {
	case StatusDraft, StatusValidating, StatusRejected, StatusResolved:
		return fmt.Errorf("claim %s is %s", claim.ClaimNumber, claim.Status)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("payment amount must be positive")
	}
	if amount.GreaterThan(claim.Balance) {
		return fmt.Errorf("payment %s exceeds claim balance %s", amount.StringFixed(2), claim.Balance.StringFixed(2))
	}
	return nil
}
