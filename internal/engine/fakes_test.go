package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/amplifier/internal/classify"
	"github.com/lazypower/amplifier/internal/config"
	"github.com/lazypower/amplifier/internal/logging"
	"github.com/lazypower/amplifier/internal/store"
)

var errStoreDown = errors.New("store down")

// memory is an in-memory EntityMemory, NarrativeMemory and SnapshotStore.
type memory struct {
	entities   map[string]store.TrackedEntity
	narratives map[string]store.TrackedNarrative
	snapshots  map[string]store.IntelligenceSnapshot
	failWrites bool
	writes     int
}

func newMemory() *memory {
	return &memory{
		entities:   make(map[string]store.TrackedEntity),
		narratives: make(map[string]store.TrackedNarrative),
		snapshots:  make(map[string]store.IntelligenceSnapshot),
	}
}

func (m *memory) GetTrackedEntity(_ context.Context, tenantID, key string) (*store.TrackedEntity, error) {
	e, ok := m.entities[tenantID+"/"+key]
	if !ok {
		return nil, nil
	}
	e.UnusualBehaviors = append([]store.UnusualBehavior(nil), e.UnusualBehaviors...)
	return &e, nil
}

func (m *memory) UpsertTrackedEntity(_ context.Context, e store.TrackedEntity) error {
	if m.failWrites {
		return errStoreDown
	}
	m.writes++
	if prev, ok := m.entities[e.TenantID+"/"+e.EntityKey]; ok {
		e.TypicalBehavior = prev.TypicalBehavior
	}
	m.entities[e.TenantID+"/"+e.EntityKey] = e
	return nil
}

func (m *memory) GetTrackedNarrative(_ context.Context, tenantID, key string) (*store.TrackedNarrative, error) {
	n, ok := m.narratives[tenantID+"/"+key]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (m *memory) UpsertTrackedNarrative(_ context.Context, n store.TrackedNarrative) error {
	if m.failWrites {
		return errStoreDown
	}
	m.writes++
	m.narratives[n.TenantID+"/"+n.NarrativeKey] = n
	return nil
}

func (m *memory) LatestSnapshot(_ context.Context, tenantID string) (*store.IntelligenceSnapshot, error) {
	var latest *store.IntelligenceSnapshot
	for _, s := range m.snapshots {
		if s.TenantID != tenantID {
			continue
		}
		if latest == nil || s.SnapshotDate > latest.SnapshotDate {
			s := s
			latest = &s
		}
	}
	return latest, nil
}

func (m *memory) UpsertSnapshot(_ context.Context, s store.IntelligenceSnapshot) error {
	if m.failWrites {
		return errStoreDown
	}
	m.writes++
	m.snapshots[s.TenantID+"/"+s.SnapshotDate] = s
	return nil
}

// flakyStore wraps a real store and fails the selected operations.
type flakyStore struct {
	store.Store
	failAmplification bool
	failSignals       bool
}

func (f *flakyStore) UpsertEntityAmplification(ctx context.Context, a store.EntityAmplification) error {
	if f.failAmplification {
		return errStoreDown
	}
	return f.Store.UpsertEntityAmplification(ctx, a)
}

func (f *flakyStore) ListActiveSignals(ctx context.Context, since time.Time) ([]store.ActiveSignal, error) {
	if f.failSignals {
		return nil, errStoreDown
	}
	return f.Store.ListActiveSignals(ctx, since)
}

// slowStore blocks snapshot writes until their deadline.
type slowStore struct {
	store.Store
}

func (s *slowStore) UpsertSnapshot(ctx context.Context, _ store.IntelligenceSnapshot) error {
	<-ctx.Done()
	return ctx.Err()
}

// gateStore holds snapshot writes until release is closed.
type gateStore struct {
	store.Store
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	inflight atomic.Int32
}

func newGateStore(st store.Store) *gateStore {
	return &gateStore{Store: st, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateStore) UpsertSnapshot(ctx context.Context, snap store.IntelligenceSnapshot) error {
	g.inflight.Add(1)
	defer g.inflight.Add(-1)
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Store.UpsertSnapshot(ctx, snap)
}

// cancelStore cancels the run context once amplification writes begin.
type cancelStore struct {
	store.Store
	cancel context.CancelFunc
}

func (c *cancelStore) UpsertEntityAmplification(ctx context.Context, a store.EntityAmplification) error {
	c.cancel()
	return c.Store.UpsertEntityAmplification(ctx, a)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	cfg := config.Default().Engine
	cfg.StoreTimeout = time.Second
	e := New(st, cfg)
	e.Now = func() time.Time { return testNow }
	return e
}

func testLogger() *log.Logger { return logging.New("test") }

func v1() classify.Classifier { return classify.V1() }

func industry(s string) *string { return &s }

// signal builds an ActiveSignal for tenant at now minus age.
func signal(id, tenant string, age time.Duration, title, target string, ev store.Evidence) store.ActiveSignal {
	return store.ActiveSignal{
		Signal: store.Signal{
			ID:                id,
			TenantID:          tenant,
			Type:              store.SignalCompetitive,
			Title:             title,
			PrimaryTargetName: target,
			CreatedAt:         testNow.Add(-age),
			Evidence:          ev,
		},
		Tenant: store.Tenant{ID: tenant, Name: "Tenant " + tenant},
	}
}
