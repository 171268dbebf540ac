package fraud

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func at(hour int) time.Time {
	return time.Date(2024, 5, 14, hour, 0, 0, 0, time.UTC)
}

func factor(d *Detection, name string) *RiskFactor {
	for i := range d.RiskFactors {
		if d.RiskFactors[i].Name == name {
			return &d.RiskFactors[i]
		}
	}
	return nil
}

func TestScore_LargeCardPaymentAt2AM(t *testing.T) {
	s := NewScorer(DefaultConfig())
	d := s.Score(Input{
		SubjectType:   SubjectPayment,
		SubjectID:     uuid.New(),
		Amount:        decimal.NewFromInt(6000),
		PaymentMethod: "credit_card",
		At:            at(2),
	})

	if d.RiskScore != 0.4 {
		t.Errorf("expected risk score 0.40, got %v", d.RiskScore)
	}
	if d.Status != StatusApproved {
		t.Errorf("expected approved, got %s", d.Status)
	}
	if len(d.RiskFactors) != 3 {
		t.Fatalf("expected 3 factors, got %d", len(d.RiskFactors))
	}
	if f := factor(d, FactorLargeAmount); f == nil || f.Severity != SeverityHigh || f.Score != 1 {
		t.Errorf("unexpected large_amount factor %+v", f)
	}
	if f := factor(d, FactorOffHours); f == nil || math.Abs(f.Contribution-0.08) > 1e-9 {
		t.Errorf("unexpected off_hours factor %+v", f)
	}
}

func TestScore_LargeAmountSeverityBands(t *testing.T) {
	s := NewScorer(DefaultConfig())
	tests := []struct {
		amount int64
		score  float64
		sev    Severity
	}{
		{500, 0.1, SeverityLow},
		{1000, 0.2, SeverityLow},
		{2500, 0.5, SeverityMedium},
		{5000, 1, SeverityMedium},
		{5001, 1, SeverityHigh},
	}
	for _, tt := range tests {
		d := s.Score(Input{Amount: decimal.NewFromInt(tt.amount), At: at(12)})
		f := factor(d, FactorLargeAmount)
		if f == nil {
			t.Fatalf("amount %d: missing large_amount factor", tt.amount)
		}
		if math.Abs(f.Score-tt.score) > 1e-9 || f.Severity != tt.sev {
			t.Errorf("amount %d: got score %v severity %s, want %v %s", tt.amount, f.Score, f.Severity, tt.score, tt.sev)
		}
	}
}

func TestScore_OffHoursBoundaries(t *testing.T) {
	s := NewScorer(DefaultConfig())
	for hour, want := range map[int]bool{0: true, 5: true, 6: false, 12: false, 22: false, 23: true} {
		d := s.Score(Input{Amount: decimal.NewFromInt(10), At: at(hour)})
		if got := factor(d, FactorOffHours) != nil; got != want {
			t.Errorf("hour %d: off_hours fired=%v, want %v", hour, got, want)
		}
	}
}

func TestScore_VelocityAndDuplicateTriggerReview(t *testing.T) {
	s := NewScorer(DefaultConfig())
	d := s.Score(Input{
		SubjectType:     SubjectPayment,
		Amount:          decimal.NewFromInt(6000),
		PaymentMethod:   "credit_card",
		At:              at(2),
		RecentCount:     5,
		DuplicateAmount: true,
	})

	// 0.40 + 0.25 + 0.25
	if d.RiskScore != 0.9 {
		t.Errorf("expected 0.9, got %v", d.RiskScore)
	}
	if !d.RequiresReview() || d.Status != StatusPendingReview {
		t.Errorf("expected pending_review, got %s", d.Status)
	}
}

func TestScore_ThresholdIsStrict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReviewThreshold = 0.4
	d := NewScorer(cfg).Score(Input{Amount: decimal.NewFromInt(6000), PaymentMethod: "credit_card", At: at(2)})
	if d.Status != StatusApproved {
		t.Errorf("score equal to threshold must not hold, got %s", d.Status)
	}
}

func TestScore_RangeAndContributionSum(t *testing.T) {
	s := NewScorer(DefaultConfig())
	inputs := []Input{
		{},
		{Amount: decimal.NewFromInt(1)},
		{Amount: decimal.NewFromInt(1_000_000), PaymentMethod: "credit_card", At: at(3), RecentCount: 50, DuplicateAmount: true},
		{Amount: decimal.NewFromInt(-50), At: at(23)},
	}
	for i, in := range inputs {
		d := s.Score(in)
		if d.RiskScore < 0 || d.RiskScore > 1 {
			t.Errorf("input %d: score %v outside [0,1]", i, d.RiskScore)
		}
		sum := 0.0
		for _, f := range d.RiskFactors {
			sum += f.Weight * f.Score
		}
		if math.Abs(sum-d.RiskScore) > 1e-6 {
			t.Errorf("input %d: factors sum to %v, score is %v", i, sum, d.RiskScore)
		}
	}
}

func TestScore_UsesConfiguredLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Location = time.FixedZone("EST", -5*3600)
	// 12:00 UTC is 07:00 EST, inside business hours.
	d := NewScorer(cfg).Score(Input{Amount: decimal.NewFromInt(10), At: at(12)})
	if factor(d, FactorOffHours) != nil {
		t.Error("expected business hours in configured location")
	}
	// 04:00 UTC is 23:00 EST the previous day.
	d = NewScorer(cfg).Score(Input{Amount: decimal.NewFromInt(10), At: at(4)})
	if factor(d, FactorOffHours) == nil {
		t.Error("expected 23:00 EST to be off hours")
	}
}
