package kpi

// Threshold is a (warning, critical) pair. For KPIs where higher is better
// the alert fires when the value drops below the bound.
type Threshold struct {
	Warning        float64
	Critical       float64
	HigherIsBetter bool
}

type Thresholds map[string]Threshold

func DefaultThresholds() Thresholds {
	return Thresholds{
		DaysInAR:          {Warning: 35, Critical: 45},
		CollectionRate:    {Warning: 92, Critical: 88, HigherIsBetter: true},
		DenialRate:        {Warning: 8, Critical: 12},
		CostToCollect:     {Warning: 4, Critical: 6},
		NetCollectionRate: {Warning: 95, Critical: 90, HigherIsBetter: true},
	}
}

func (t Threshold) crossed(value, bound float64) bool {
	if t.HigherIsBetter {
		return value < bound
	}
	return value > bound
}

// Evaluate returns the most severe bound the value crosses, critical first.
func (t Threshold) Evaluate(value float64) (Severity, float64, bool) {
	if t.crossed(value, t.Critical) {
		return SeverityCritical, t.Critical, true
	}
	if t.crossed(value, t.Warning) {
		return SeverityWarning, t.Warning, true
	}
	return "", 0, false
}

var recommendedActions = map[string][]string{
	DaysInAR: {
		"Work the aged receivables list starting with the oldest high-balance claims",
		"Follow up on claims without payer acknowledgment",
		"Review patient statement cadence",
	},
	CollectionRate: {
		"Audit underpayments against contracted rates",
		"Collect patient responsibility at time of service",
	},
	DenialRate: {
		"Review the top denial categories and fix front-end edits",
		"Verify eligibility and authorization before service",
	},
	CostToCollect: {
		"Increase auto-submission and auto-posting coverage",
		"Reduce manual rework on rejected claims",
	},
	NetCollectionRate: {
		"Appeal recoverable denials before their deadlines",
		"Reconcile write-offs against adjustment policy",
	},
}
