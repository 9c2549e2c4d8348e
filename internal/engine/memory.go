package engine

import (
	"context"
	"time"

	"github.com/lazypower/amplifier/internal/store"
)

// SignalSource is the read side of a run.
type SignalSource interface {
	ListActiveSignals(ctx context.Context, since time.Time) ([]store.ActiveSignal, error)
}

// AmplificationStore receives the cross-tenant aggregates.
type AmplificationStore interface {
	UpsertEntityAmplification(ctx context.Context, a store.EntityAmplification) error
	DeleteAmplificationOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EntityMemory holds behavioral baselines.
type EntityMemory interface {
	GetTrackedEntity(ctx context.Context, tenantID, entityKey string) (*store.TrackedEntity, error)
	UpsertTrackedEntity(ctx context.Context, e store.TrackedEntity) error
}

// NarrativeMemory holds narrative timelines.
type NarrativeMemory interface {
	GetTrackedNarrative(ctx context.Context, tenantID, narrativeKey string) (*store.TrackedNarrative, error)
	UpsertTrackedNarrative(ctx context.Context, n store.TrackedNarrative) error
}

// SnapshotStore holds daily tenant rollups.
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context, tenantID string) (*store.IntelligenceSnapshot, error)
	UpsertSnapshot(ctx context.Context, s store.IntelligenceSnapshot) error
}

// withTimeout runs fn under a per-call deadline. A non-positive d means no
// deadline beyond ctx.
func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
