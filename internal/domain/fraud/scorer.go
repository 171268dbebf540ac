package fraud

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Weights are the per-factor multipliers. RiskScore is the sum of
// weight*score over the factors that fire.
type Weights struct {
	LargeAmount     float64
	OffHours        float64
	PaymentMethod   float64
	Velocity        float64
	DuplicateAmount float64
}

func DefaultWeights() Weights {
	return Weights{
		LargeAmount:     0.3,
		OffHours:        0.2,
		PaymentMethod:   0.1,
		Velocity:        0.25,
		DuplicateAmount: 0.25,
	}
}

type Config struct {
	Weights         Weights
	ReviewThreshold float64
	// LargeAmountCap is the amount at which the large_amount score saturates.
	LargeAmountCap decimal.Decimal
	// MediumAmount and HighAmount bound the large_amount severity bands.
	MediumAmount decimal.Decimal
	HighAmount   decimal.Decimal
	// Business hours are [OpenHour, CloseHour] in Location.
	OpenHour      int
	CloseHour     int
	Location      *time.Location
	OffHoursScore float64
	CardScore     float64
	// VelocityCap is the trailing-24h payment count at which velocity saturates.
	VelocityCap int
	Window      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		ReviewThreshold: 0.75,
		LargeAmountCap:  decimal.NewFromInt(5000),
		MediumAmount:    decimal.NewFromInt(1000),
		HighAmount:      decimal.NewFromInt(5000),
		OpenHour:        6,
		CloseHour:       22,
		Location:        time.UTC,
		OffHoursScore:   0.4,
		CardScore:       0.2,
		VelocityCap:     5,
		Window:          24 * time.Hour,
	}
}

// Input is everything the scorer looks at. RecentCount and DuplicateAmount
// describe the same patient's payments inside the trailing window.
type Input struct {
	OrganizationID  uuid.UUID
	SubjectType     SubjectType
	SubjectID       uuid.UUID
	PatientID       uuid.UUID
	Amount          decimal.Decimal
	PaymentMethod   string
	At              time.Time
	RecentCount     int
	DuplicateAmount bool
}

// Scorer computes detections. It is pure and safe for concurrent use.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() Config { return s.cfg }

func (s *Scorer) Score(in Input) *Detection {
	var factors []RiskFactor
	add := func(name string, weight, score float64, sev Severity, detail string) {
		if score <= 0 || weight <= 0 {
			return
		}
		factors = append(factors, RiskFactor{
			Name:         name,
			Weight:       weight,
			Score:        score,
			Contribution: weight * score,
			Severity:     sev,
			Detail:       detail,
		})
	}

	w := s.cfg.Weights
	if in.Amount.IsPositive() && s.cfg.LargeAmountCap.IsPositive() {
		score := math.Min(in.Amount.Div(s.cfg.LargeAmountCap).InexactFloat64(), 1)
		sev := SeverityLow
		switch {
		case in.Amount.GreaterThan(s.cfg.HighAmount):
			sev = SeverityHigh
		case in.Amount.GreaterThan(s.cfg.MediumAmount):
			sev = SeverityMedium
		}
		add(FactorLargeAmount, w.LargeAmount, score, sev, "amount "+in.Amount.StringFixed(2))
	}

	if !in.At.IsZero() {
		hour := in.At.In(s.cfg.Location).Hour()
		if hour < s.cfg.OpenHour || hour > s.cfg.CloseHour {
			add(FactorOffHours, w.OffHours, s.cfg.OffHoursScore, SeverityMedium, fmt.Sprintf("initiated at %02d:00", hour))
		}
	}

	if in.PaymentMethod == "credit_card" {
		add(FactorPaymentMethod, w.PaymentMethod, s.cfg.CardScore, SeverityLow, "credit card")
	}

	if in.RecentCount > 0 && s.cfg.VelocityCap > 0 {
		score := math.Min(float64(in.RecentCount)/float64(s.cfg.VelocityCap), 1)
		sev := SeverityLow
		switch {
		case in.RecentCount >= s.cfg.VelocityCap:
			sev = SeverityHigh
		case in.RecentCount >= (s.cfg.VelocityCap+1)/2:
			sev = SeverityMedium
		}
		add(FactorVelocity, w.Velocity, score, sev, fmt.Sprintf("%d payments in window", in.RecentCount))
	}

	if in.DuplicateAmount {
		add(FactorDuplicateAmount, w.DuplicateAmount, 1, SeverityHigh, "identical amount in window")
	}

	total := 0.0
	for _, f := range factors {
		total += f.Contribution
	}
	// Round away float noise so 0.3+0.08+0.02 reads as 0.4.
	total = math.Round(total*1e6) / 1e6

	status := StatusApproved
	if total > s.cfg.ReviewThreshold {
		status = StatusPendingReview
	}

	return &Detection{
		ID:             uuid.New(),
		OrganizationID: in.OrganizationID,
		SubjectType:    in.SubjectType,
		SubjectID:      in.SubjectID,
		RiskFactors:    factors,
		RiskScore:      total,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	}
}
