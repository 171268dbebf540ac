package kpi

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

type Config struct {
	Thresholds   Thresholds
	PeriodDays   int
	CostPerClaim decimal.Decimal
	// TrendDelta is the change in points a KPI must move to count as
	// improving or declining.
	TrendDelta float64
}

func DefaultConfig() Config {
	return Config{
		Thresholds:   DefaultThresholds(),
		PeriodDays:   30,
		CostPerClaim: decimal.NewFromInt(5),
		TrendDelta:   2,
	}
}

// Monitor computes KPI snapshots, raises and resolves threshold alerts and
// reports trends.
type Monitor struct {
	source    Source
	snapshots SnapshotRepository
	alerts    AlertRepository
	publisher notification.Publisher
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewMonitor(
	source Source,
	snapshots SnapshotRepository,
	alerts AlertRepository,
	publisher notification.Publisher,
	cfg Config,
	logger zerolog.Logger,
) *Monitor {
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.PeriodDays <= 0 {
		cfg.PeriodDays = 30
	}
	if cfg.TrendDelta <= 0 {
		cfg.TrendDelta = 2
	}
	return &Monitor{
		source:    source,
		snapshots: snapshots,
		alerts:    alerts,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "kpi_monitor").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns at most one alert per KPI, critical taking precedence.
// The alerts are not persisted.
func (m *Monitor) Evaluate(s *Snapshot) []*Alert {
	var out []*Alert
	for _, kpi := range Tracked {
		t, ok := m.cfg.Thresholds[kpi]
		if !ok {
			continue
		}
		value := s.Value(kpi)
		sev, bound, crossed := t.Evaluate(value)
		if !crossed {
			continue
		}
		out = append(out, &Alert{
			OrganizationID:     s.OrganizationID,
			AlertType:          AlertThreshold,
			Severity:           sev,
			AffectedKPI:        kpi,
			CurrentValue:       value,
			ThresholdValue:     bound,
			RecommendedActions: recommendedActions[kpi],
		})
	}
	return out
}

// MonitorRealTime computes today's snapshot for orgID and reconciles the
// open alerts against it. It returns the alerts open after the check. An
// organization without claims in the period gets neither a snapshot nor
// alerts.
func (m *Monitor) MonitorRealTime(ctx context.Context, orgID uuid.UUID) ([]*Alert, error) {
	if orgID == uuid.Nil {
		return nil, failure.Malformed("kpi.monitor", "organization is required")
	}
	now := m.now()
	from := now.AddDate(0, 0, -m.cfg.PeriodDays)
	agg, err := m.source.Aggregates(ctx, orgID, from, now)
	if err != nil {
		return nil, failure.Persistence("kpi.aggregates", err)
	}
	if agg.ClaimCount == 0 {
		m.logger.Debug().Str("organization_id", orgID.String()).Msg("no claims in period, skipping")
		return nil, nil
	}

	snap := Compute(orgID, now, *agg, m.cfg.PeriodDays, m.cfg.CostPerClaim)
	snap.CreatedAt = now
	if err := m.snapshots.Save(ctx, snap); err != nil {
		return nil, failure.Persistence("kpi.snapshot", err)
	}

	open, err := m.alerts.ListOpen(ctx, orgID)
	if err != nil {
		return nil, failure.Persistence("kpi.alerts", err)
	}
	openByKPI := make(map[string]*Alert, len(open))
	for _, a := range open {
		openByKPI[a.AffectedKPI] = a
	}
	raised := make(map[string]*Alert)
	for _, a := range m.Evaluate(snap) {
		raised[a.AffectedKPI] = a
	}

	var active []*Alert
	for _, kpi := range Tracked {
		existing, candidate := openByKPI[kpi], raised[kpi]
		switch {
		case candidate == nil && existing == nil:
		case candidate == nil:
			existing.CurrentValue = snap.Value(kpi)
			if err := m.resolve(ctx, existing, now); err != nil {
				return nil, err
			}
		case existing != nil && existing.Severity == candidate.Severity:
			existing.CurrentValue = candidate.CurrentValue
			if err := m.alerts.Update(ctx, existing); err != nil {
				return nil, failure.Persistence("kpi.alert", err)
			}
			active = append(active, existing)
		default:
			if existing != nil {
				existing.CurrentValue = candidate.CurrentValue
				if err := m.resolve(ctx, existing, now); err != nil {
					return nil, err
				}
			}
			candidate.ID = uuid.New()
			candidate.CreatedAt = now
			if err := m.alerts.Create(ctx, candidate); err != nil {
				return nil, failure.Persistence("kpi.alert", err)
			}
			m.raise(ctx, candidate)
			active = append(active, candidate)
		}
	}

	m.logger.Info().
		Str("organization_id", orgID.String()).
		Float64("days_in_ar", snap.DaysInAR).
		Float64("collection_rate", snap.CollectionRate).
		Float64("denial_rate", snap.DenialRate).
		Int("open_alerts", len(active)).
		Msg("kpi check complete")
	return active, nil
}

// ResolveAlert closes an alert by hand. Resolving twice is a conflict.
func (m *Monitor) ResolveAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := m.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsResolved {
		return nil, failure.Conflict("kpi.resolve", "alert already resolved")
	}
	if err := m.resolve(ctx, a, m.now()); err != nil {
		return nil, err
	}
	return a, nil
}

func (m *Monitor) GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return m.alerts.GetByID(ctx, id)
}

func (m *Monitor) ListAlerts(ctx context.Context, orgID uuid.UUID, includeResolved bool, limit, offset int) ([]*Alert, int, error) {
	return m.alerts.List(ctx, orgID, includeResolved, limit, offset)
}

// Snapshots returns the stored snapshots for orgID in [from, to].
func (m *Monitor) Snapshots(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*Snapshot, error) {
	if to.Before(from) {
		return nil, failure.Malformed("kpi.snapshots", "period end precedes start")
	}
	return m.snapshots.ListRange(ctx, orgID, from, to)
}

// TrackTrends compares the first and last snapshot in the trailing window.
func (m *Monitor) TrackTrends(ctx context.Context, orgID uuid.UUID, windowDays int) (*TrendReport, error) {
	if orgID == uuid.Nil {
		return nil, failure.Malformed("kpi.trends", "organization is required")
	}
	if windowDays <= 0 {
		return nil, failure.Malformed("kpi.trends", "window must be at least one day")
	}
	to := m.now()
	from := to.AddDate(0, 0, -windowDays)
	snaps, err := m.snapshots.ListRange(ctx, orgID, from, to)
	if err != nil {
		return nil, failure.Persistence("kpi.trends", err)
	}
	report := &TrendReport{
		OrganizationID: orgID,
		WindowDays:     windowDays,
		From:           from,
		To:             to,
		Points:         len(snaps),
		Overall:        Stable,
	}
	counts := map[Direction]int{}
	for _, kpi := range Tracked {
		t := Trend{KPI: kpi, Direction: Stable}
		if len(snaps) > 0 {
			t.First = snaps[0].Value(kpi)
			t.Last = snaps[len(snaps)-1].Value(kpi)
			t.Change = math.Round((t.Last-t.First)*100) / 100
		}
		if len(snaps) >= 2 {
			t.Direction = m.direction(kpi, t.Change)
		}
		counts[t.Direction]++
		report.Trends = append(report.Trends, t)
	}
	report.Overall = majority(counts)
	report.Analysis = describe(report, counts)
	return report, nil
}

func (m *Monitor) direction(kpi string, change float64) Direction {
	if m.cfg.Thresholds[kpi].HigherIsBetter {
		change = -change
	}
	// change is now positive when the KPI got worse.
	switch {
	case change <= -m.cfg.TrendDelta:
		return Improving
	case change >= m.cfg.TrendDelta:
		return Declining
	}
	return Stable
}

// majority returns the direction with the strictly highest count. Ties
// are stable.
func majority(counts map[Direction]int) Direction {
	best, bestN, tied := Stable, -1, false
	for _, d := range []Direction{Improving, Declining, Stable} {
		switch n := counts[d]; {
		case n > bestN:
			best, bestN, tied = d, n, false
		case n == bestN:
			tied = true
		}
	}
	if tied {
		return Stable
	}
	return best
}

func describe(r *TrendReport, counts map[Direction]int) string {
	if r.Points < 2 {
		return fmt.Sprintf("%d snapshot(s) in the last %d days; at least two are needed to establish a trend", r.Points, r.WindowDays)
	}
	return fmt.Sprintf("over %d snapshots: %d improving, %d declining, %d stable; overall %s",
		r.Points, counts[Improving], counts[Declining], counts[Stable], r.Overall)
}

func (m *Monitor) resolve(ctx context.Context, a *Alert, now time.Time) error {
	a.IsResolved = true
	a.ResolvedAt = &now
	if err := m.alerts.Update(ctx, a); err != nil {
		return failure.Persistence("kpi.resolve", err)
	}
	evt := notification.NewEvent(notification.EventKPIAlertResolved, a.OrganizationID, a.ID, a)
	evt.Message = fmt.Sprintf("%s back within threshold (%.2f)", a.AffectedKPI, a.CurrentValue)
	m.publish(ctx, evt)
	return nil
}

func (m *Monitor) raise(ctx context.Context, a *Alert) {
	m.logger.Warn().
		Str("organization_id", a.OrganizationID.String()).
		Str("kpi", a.AffectedKPI).
		Str("severity", string(a.Severity)).
		Float64("value", a.CurrentValue).
		Float64("threshold", a.ThresholdValue).
		Msg("kpi threshold crossed")
	evt := notification.NewEvent(notification.EventKPIAlert, a.OrganizationID, a.ID, a)
	evt.Severity = notification.Severity(a.Severity)
	evt.Message = fmt.Sprintf("%s at %.2f crossed %s threshold %.2f", a.AffectedKPI, a.CurrentValue, a.Severity, a.ThresholdValue)
	m.publish(ctx, evt)
}

func (m *Monitor) publish(ctx context.Context, evt notification.Event) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, evt); err != nil {
		m.logger.Warn().Err(err).Str("event", string(evt.Type)).Msg("publish failed")
	}
}
