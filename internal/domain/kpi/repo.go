package kpi

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SnapshotRepository stores snapshots append-only. Saving a second snapshot
// for the same organization and date keeps the first.
type SnapshotRepository interface {
	Save(ctx context.Context, s *Snapshot) error
	// ListRange returns snapshots dated in [from, to], oldest first. A nil
	// orgID lists every organization.
	ListRange(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*Snapshot, error)
}

type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	Update(ctx context.Context, a *Alert) error
	ListOpen(ctx context.Context, orgID uuid.UUID) ([]*Alert, error)
	List(ctx context.Context, orgID uuid.UUID, includeResolved bool, limit, offset int) ([]*Alert, int, error)
}

// Source reads the revenue-cycle aggregates a snapshot is computed from.
type Source interface {
	Aggregates(ctx context.Context, orgID uuid.UUID, from, to time.Time) (*Aggregates, error)
	Organizations(ctx context.Context) ([]uuid.UUID, error)
}
