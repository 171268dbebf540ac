package kpi

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs MonitorRealTime for every organization on a ticker.
type Scheduler struct {
	monitor     *Monitor
	orgs        Source
	Interval    time.Duration
	Concurrency int
	logger      zerolog.Logger
}

func NewScheduler(monitor *Monitor, orgs Source, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		monitor:     monitor,
		orgs:        orgs,
		Interval:    interval,
		Concurrency: 4,
		logger:      logger.With().Str("component", "kpi_scheduler").Logger(),
	}
}

// Start runs a check immediately and then on every tick. It blocks until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce checks every organization and returns how many alerts are open
// afterwards. A failing organization is logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	orgs, err := s.orgs.Organizations(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list organizations")
		return 0
	}

	counts := make([]int, len(orgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)
	for i, org := range orgs {
		g.Go(func() error {
			counts[i] = s.check(gctx, org)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

func (s *Scheduler) check(ctx context.Context, org uuid.UUID) int {
	alerts, err := s.monitor.MonitorRealTime(ctx, org)
	if err != nil {
		s.logger.Error().Err(err).Str("organization_id", org.String()).Msg("kpi check failed")
		return 0
	}
	return len(alerts)
}
