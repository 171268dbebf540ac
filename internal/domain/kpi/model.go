package kpi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// KPI names, used as AffectedKPI on alerts and as trend keys.
const (
	DaysInAR          = "days_in_ar"
	CollectionRate    = "collection_rate"
	DenialRate        = "denial_rate"
	CostToCollect     = "cost_to_collect"
	NetCollectionRate = "net_collection_rate"
)

// Tracked lists the monitored KPIs in report order.
var Tracked = []string{DaysInAR, CollectionRate, DenialRate, CostToCollect, NetCollectionRate}

// Snapshot maps to the kpi_snapshot table, one row per organization and
// date. Rates are percentages.
type Snapshot struct {
	OrganizationID    uuid.UUID       `db:"organization_id" json:"organization_id"`
	Date              time.Time       `db:"date" json:"date"`
	DaysInAR          float64         `db:"days_in_ar" json:"days_in_ar"`
	CollectionRate    float64         `db:"collection_rate" json:"collection_rate"`
	DenialRate        float64         `db:"denial_rate" json:"denial_rate"`
	CostToCollect     float64         `db:"cost_to_collect" json:"cost_to_collect"`
	NetCollectionRate float64         `db:"net_collection_rate" json:"net_collection_rate"`
	GrossCharges      decimal.Decimal `db:"gross_charges" json:"gross_charges"`
	NetCharges        decimal.Decimal `db:"net_charges" json:"net_charges"`
	Payments          decimal.Decimal `db:"payments" json:"payments"`
	Adjustments       decimal.Decimal `db:"adjustments" json:"adjustments"`
	WriteOffs         decimal.Decimal `db:"write_offs" json:"write_offs"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// Value returns the named KPI. Unknown names read as zero.
func (s *Snapshot) Value(kpi string) float64 {
	switch kpi {
	case DaysInAR:
		return s.DaysInAR
	case CollectionRate:
		return s.CollectionRate
	case DenialRate:
		return s.DenialRate
	case CostToCollect:
		return s.CostToCollect
	case NetCollectionRate:
		return s.NetCollectionRate
	}
	return 0
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

const AlertThreshold = "kpi_threshold"

// Alert maps to the kpi_alert table.
type Alert struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	OrganizationID     uuid.UUID  `db:"organization_id" json:"organization_id"`
	AlertType          string     `db:"alert_type" json:"alert_type"`
	Severity           Severity   `db:"severity" json:"severity"`
	AffectedKPI        string     `db:"affected_kpi" json:"affected_kpi"`
	CurrentValue       float64    `db:"current_value" json:"current_value"`
	ThresholdValue     float64    `db:"threshold_value" json:"threshold_value"`
	RecommendedActions []string   `db:"recommended_actions" json:"recommended_actions"`
	IsResolved         bool       `db:"is_resolved" json:"is_resolved"`
	ResolvedAt         *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

type Direction string

const (
	Improving Direction = "improving"
	Declining Direction = "declining"
	Stable    Direction = "stable"
)

type Trend struct {
	KPI       string    `json:"kpi"`
	First     float64   `json:"first"`
	Last      float64   `json:"last"`
	Change    float64   `json:"change"`
	Direction Direction `json:"direction"`
}

type TrendReport struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	WindowDays     int       `json:"window_days"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Points         int       `json:"points"`
	Trends         []Trend   `json:"trends"`
	Overall        Direction `json:"overall"`
	Analysis       string    `json:"analysis"`
}
