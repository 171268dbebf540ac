package claims

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestValidate_CleanClaim(t *testing.T) {
	res := testEngine().Validate(cleanClaim(uuid.New()))
	if !res.IsValid {
		t.Fatalf("expected valid claim, got errors %+v", res.Errors)
	}
	if res.ValidationScore != 1 {
		t.Errorf("expected score 1, got %v", res.ValidationScore)
	}
	if len(res.Warnings) != 0 || len(res.Recommendations) != 0 {
		t.Errorf("expected no warnings, got %+v", res.Warnings)
	}
	if !res.ValidatedAt.Equal(testNow) {
		t.Errorf("expected engine clock to stamp result, got %v", res.ValidatedAt)
	}
}

func TestValidate_MissingMemberNumber(t *testing.T) {
	c := cleanClaim(uuid.New())
	c.PrimaryInsurance.MemberNumber = ""
	res := testEngine().Validate(c)

	if res.IsValid {
		t.Error("expected invalid claim")
	}
	if !approx(res.SubScores.Insurance, 0.7) {
		t.Errorf("expected insurance sub-score 0.7, got %v", res.SubScores.Insurance)
	}
	if !approx(res.ValidationScore, 0.94) {
		t.Errorf("expected score 0.94, got %v", res.ValidationScore)
	}
	found := false
	for _, e := range res.Errors {
		if e.Code == CodeMissingMemberNumber {
			found = true
			if e.Severity != SeverityError || e.Category != CategoryInsurance {
				t.Errorf("unexpected issue %+v", e)
			}
		}
	}
	if !found {
		t.Errorf("expected %s, got %+v", CodeMissingMemberNumber, res.Errors)
	}
}

func TestValidate_WarningsDoNotInvalidate(t *testing.T) {
	c := cleanClaim(uuid.New())
	c.Gender = ""
	c.PrimaryInsurance.GroupNumber = ""
	res := testEngine().Validate(c)
	if !res.IsValid {
		t.Errorf("warnings must not invalidate, got errors %+v", res.Errors)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %+v", res.Warnings)
	}
	if len(res.Recommendations) != 2 {
		t.Errorf("expected a recommendation per warning, got %+v", res.Recommendations)
	}
	if res.ValidationScore >= 1 {
		t.Errorf("expected penalized score, got %v", res.ValidationScore)
	}
}

func TestValidate_ScoreRangeAndValidity(t *testing.T) {
	var lines []ServiceLine
	for i := 0; i < 10; i++ {
		lines = append(lines, ServiceLine{Units: 0, Charge: decimal.Zero, Modifiers: []string{"a", "b", "c", "d", "e"}})
	}
	future := testNow.AddDate(1, 0, 0)
	claims := []*Claim{
		{},
		{ServiceLines: lines, DiagnosisCodes: []string{"nope", "???"}, DateOfBirth: &future, ServiceDate: &future, ProviderNPI: "42"},
		cleanClaim(uuid.New()),
	}
	for i, c := range claims {
		res := testEngine().Validate(c)
		if res.ValidationScore < 0 || res.ValidationScore > 1 {
			t.Errorf("claim %d: score %v out of range", i, res.ValidationScore)
		}
		for _, s := range []float64{res.SubScores.Coding, res.SubScores.Demographic, res.SubScores.Insurance, res.SubScores.Payer} {
			if s < 0 || s > 1 {
				t.Errorf("claim %d: sub-score %v out of range", i, s)
			}
		}
		if res.IsValid && len(res.Errors) > 0 {
			t.Errorf("claim %d: valid result carries errors", i)
		}
		if !res.IsValid && len(res.Errors) == 0 {
			t.Errorf("claim %d: invalid result has no errors", i)
		}
	}
	if res := testEngine().Validate(claims[1]); res.SubScores.Coding != 0 {
		t.Errorf("expected coding sub-score clamped to 0, got %v", res.SubScores.Coding)
	}
}

func TestValidate_TimelyFiling(t *testing.T) {
	tests := []struct {
		name    string
		daysAgo int
		code    string
		valid   bool
	}{
		{"within limit", 100, "", true},
		{"at risk", 340, CodeTimelyFilingAtRisk, true},
		{"exceeded", 400, CodeTimelyFilingExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cleanClaim(uuid.New())
			svc := testNow.AddDate(0, 0, -tt.daysAgo)
			c.ServiceDate = &svc
			res := testEngine().Validate(c)
			if res.IsValid != tt.valid {
				t.Errorf("expected valid=%v, got %v", tt.valid, res.IsValid)
			}
			if tt.code != "" && !res.HasCode(tt.code) {
				t.Errorf("expected %s, got errors=%+v warnings=%+v", tt.code, res.Errors, res.Warnings)
			}
		})
	}
}

func TestValidate_PayerRules(t *testing.T) {
	cfg := DefaultValidationConfig()
	cfg.Now = func() time.Time { return testNow }
	cfg.PayerRules = map[string]PayerRule{
		"AETNA": {TimelyFilingDays: 90, PriorAuthCodes: []string{"70553"}},
	}
	engine := NewValidationEngine(cfg)

	c := cleanClaim(uuid.New())
	c.ServiceLines = append(c.ServiceLines, ServiceLine{ProcedureCode: "70553", Units: 1, Charge: decimal.NewFromInt(900)})
	c.TotalCharges = c.LineTotal()
	c.ProviderNPI = ""

	res := engine.Validate(c)
	if !res.HasCode(CodeMissingPriorAuth) {
		t.Errorf("expected %s, got %+v", CodeMissingPriorAuth, res.Errors)
	}
	if res.HasCode(CodeMissingProviderNPI) {
		t.Error("payer rule does not require an NPI")
	}

	c.PriorAuthNumber = "PA-778"
	if res := engine.Validate(c); !res.IsValid {
		t.Errorf("expected valid once authorized, got %+v", res.Errors)
	}

	other := cleanClaim(uuid.New())
	other.PrimaryInsurance.PayerID = "UNKNOWN"
	other.ProviderNPI = ""
	if res := engine.Validate(other); !res.HasCode(CodeMissingProviderNPI) {
		t.Error("unknown payers fall back to the default rule")
	}
}

func TestValidate_CustomWeights(t *testing.T) {
	cfg := DefaultValidationConfig()
	cfg.Now = func() time.Time { return testNow }
	cfg.Weights = ValidationWeights{Insurance: 1}
	c := cleanClaim(uuid.New())
	c.PrimaryInsurance.MemberNumber = ""
	c.Gender = ""
	res := NewValidationEngine(cfg).Validate(c)
	if !approx(res.ValidationScore, 0.7) {
		t.Errorf("expected only insurance to count, got %v", res.ValidationScore)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	c := cleanClaim(uuid.New())
	c.PrimaryInsurance.EligibilityStatus = ""
	c.DiagnosisCodes = append(c.DiagnosisCodes, "bad")
	engine := testEngine()
	first := engine.Validate(c)
	for i := 0; i < 5; i++ {
		if next := engine.Validate(c); !reflect.DeepEqual(first, next) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, next)
		}
	}
}

func TestValidNPI(t *testing.T) {
	tests := map[string]bool{
		"1234567893": true,
		"1234567890": false,
		"12345":      false,
		"12345678A3": false,
		"":           false,
	}
	for npi, want := range tests {
		if got := ValidNPI(npi); got != want {
			t.Errorf("ValidNPI(%q) = %v, want %v", npi, got, want)
		}
	}
}

func TestCheckPostingEligibility(t *testing.T) {
	archived := testNow
	tests := []struct {
		name   string
		mutate func(*Claim)
		amount int64
		ok     bool
	}{
		{"submitted claim", func(c *Claim) { c.Status = StatusSubmitted }, 100, true},
		{"exact balance", func(c *Claim) { c.Status = StatusPending }, 150, true},
		{"draft", func(c *Claim) { c.Status = StatusDraft }, 100, false},
		{"validating", func(c *Claim) { c.Status = StatusValidating }, 100, false},
		{"rejected", func(c *Claim) { c.Status = StatusRejected }, 100, false},
		{"archived", func(c *Claim) { c.Status = StatusDenied; c.ArchivedAt = &archived }, 100, false},
		{"zero amount", func(c *Claim) { c.Status = StatusSubmitted }, 0, false},
		{"over balance", func(c *Claim) { c.Status = StatusSubmitted }, 151, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cleanClaim(uuid.New())
			tt.mutate(c)
			err := CheckPostingEligibility(c, decimal.NewFromInt(tt.amount))
			if (err == nil) != tt.ok {
				t.Errorf("expected ok=%v, got %v", tt.ok, err)
			}
		})
	}
}
