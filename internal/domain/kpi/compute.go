package kpi

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregates are the raw revenue-cycle totals a snapshot is derived from.
type Aggregates struct {
	ClaimCount      int
	ClaimsSubmitted int
	ClaimsDenied    int
	GrossCharges    decimal.Decimal
	Payments        decimal.Decimal
	Adjustments     decimal.Decimal
	WriteOffs       decimal.Decimal
	// OutstandingAR is the open balance across all unresolved claims.
	OutstandingAR decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ratio returns num/den*100 rounded to two places, or 0 when den is zero.
func ratio(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	return num.Div(den).Mul(hundred).Round(2).InexactFloat64()
}

// Compute derives the KPI snapshot for a period of periodDays.
func Compute(orgID uuid.UUID, date time.Time, agg Aggregates, periodDays int, costPerClaim decimal.Decimal) *Snapshot {
	net := agg.GrossCharges.Sub(agg.Adjustments)
	s := &Snapshot{
		OrganizationID: orgID,
		Date:           time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		GrossCharges:   agg.GrossCharges,
		NetCharges:     net,
		Payments:       agg.Payments,
		Adjustments:    agg.Adjustments,
		WriteOffs:      agg.WriteOffs,
	}
	if periodDays > 0 && agg.GrossCharges.IsPositive() {
		perDay := agg.GrossCharges.Div(decimal.NewFromInt(int64(periodDays)))
		s.DaysInAR = agg.OutstandingAR.Div(perDay).Round(2).InexactFloat64()
	}
	s.CollectionRate = ratio(agg.Payments, net)
	s.NetCollectionRate = ratio(agg.Payments, net.Sub(agg.WriteOffs))
	if agg.ClaimsSubmitted > 0 {
		s.DenialRate = math.Round(float64(agg.ClaimsDenied)/float64(agg.ClaimsSubmitted)*10000) / 100
	}
	s.CostToCollect = ratio(costPerClaim.Mul(decimal.NewFromInt(int64(agg.ClaimCount))), agg.Payments)
	return s
}
