package store

import (
	"context"
	"time"
)

// Store is the persistence boundary of the engine. Lookups return (nil, nil)
// when the row does not exist. Every upsert is a single-row replace keyed on
// the record's natural key.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// Intake from the ingestion collaborator.
	UpsertTenant(ctx context.Context, t Tenant) error
	InsertSignal(ctx context.Context, s Signal) error
	ListActiveSignals(ctx context.Context, since time.Time) ([]ActiveSignal, error)

	UpsertEntityAmplification(ctx context.Context, a EntityAmplification) error
	DeleteAmplificationOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	GetAmplification(ctx context.Context, entityNormalized string) (*EntityAmplification, error)
	ListAmplifications(ctx context.Context, minScore, limit int) ([]EntityAmplification, error)

	GetTrackedEntity(ctx context.Context, tenantID, entityKey string) (*TrackedEntity, error)
	UpsertTrackedEntity(ctx context.Context, e TrackedEntity) error
	ListTrackedEntities(ctx context.Context, tenantID string) ([]TrackedEntity, error)

	GetTrackedNarrative(ctx context.Context, tenantID, narrativeKey string) (*TrackedNarrative, error)
	UpsertTrackedNarrative(ctx context.Context, n TrackedNarrative) error
	ListTrackedNarratives(ctx context.Context, tenantID string) ([]TrackedNarrative, error)

	UpsertSnapshot(ctx context.Context, s IntelligenceSnapshot) error
	ListSnapshots(ctx context.Context, tenantID string, from, to time.Time) ([]IntelligenceSnapshot, error)
	LatestSnapshot(ctx context.Context, tenantID string) (*IntelligenceSnapshot, error)
}
