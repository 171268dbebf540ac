package kpi

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestCompute(t *testing.T) {
	agg := Aggregates{
		ClaimCount:      40,
		ClaimsSubmitted: 40,
		ClaimsDenied:    3,
		GrossCharges:    dec("10000"),
		Payments:        dec("8550"),
		Adjustments:     dec("1000"),
		WriteOffs:       decimal.Zero,
		OutstandingAR:   dec("5000"),
	}
	date := time.Date(2024, 6, 30, 15, 4, 0, 0, time.UTC)
	s := Compute(uuid.New(), date, agg, 30, dec("5"))

	if !s.Date.Equal(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date not truncated: %v", s.Date)
	}
	if !s.NetCharges.Equal(dec("9000")) {
		t.Errorf("net charges %s", s.NetCharges)
	}
	checks := map[string]float64{
		DaysInAR:          15,
		CollectionRate:    95,
		NetCollectionRate: 95,
		DenialRate:        7.5,
		CostToCollect:     2.34,
	}
	for kpi, want := range checks {
		if got := s.Value(kpi); got != want {
			t.Errorf("%s: expected %v, got %v", kpi, want, got)
		}
	}
}

func TestCompute_WriteOffsLowerNetBase(t *testing.T) {
	agg := Aggregates{
		ClaimCount:   1,
		GrossCharges: dec("1000"),
		Payments:     dec("900"),
		WriteOffs:    dec("100"),
	}
	s := Compute(uuid.New(), time.Now(), agg, 30, decimal.Zero)
	if s.CollectionRate != 90 || s.NetCollectionRate != 100 {
		t.Errorf("expected 90/100, got %v/%v", s.CollectionRate, s.NetCollectionRate)
	}
}

func TestCompute_ZeroDenominators(t *testing.T) {
	s := Compute(uuid.New(), time.Now(), Aggregates{ClaimCount: 2}, 30, dec("5"))
	for _, kpi := range Tracked {
		if v := s.Value(kpi); v != 0 {
			t.Errorf("%s: expected 0, got %v", kpi, v)
		}
	}
}

func TestThreshold_Evaluate(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		kpi   string
		value float64
		want  Severity
		bound float64
	}{
		{DaysInAR, 30, "", 0},
		{DaysInAR, 35, "", 0},
		{DaysInAR, 40, SeverityWarning, 35},
		{DaysInAR, 50, SeverityCritical, 45},
		{CollectionRate, 95, "", 0},
		{CollectionRate, 90, SeverityWarning, 92},
		{CollectionRate, 85, SeverityCritical, 88},
		{DenialRate, 12.5, SeverityCritical, 12},
		{CostToCollect, 4.5, SeverityWarning, 4},
		{NetCollectionRate, 90, SeverityWarning, 95},
		{NetCollectionRate, 89.99, SeverityCritical, 90},
	}
	for _, tt := range tests {
		sev, bound, crossed := th[tt.kpi].Evaluate(tt.value)
		if sev != tt.want || bound != tt.bound || crossed != (tt.want != "") {
			t.Errorf("%s=%v: got (%q, %v, %v), want (%q, %v)", tt.kpi, tt.value, sev, bound, crossed, tt.want, tt.bound)
		}
	}
}
