package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/amplifier/internal/classify"
	"github.com/lazypower/amplifier/internal/config"
	"github.com/lazypower/amplifier/internal/logging"
	"github.com/lazypower/amplifier/internal/store"
)

// HighAmplification is the score at which an entity counts as highly amplified.
const HighAmplification = 70

// Summary reports what a run did. Failure counts cover individual records
// that were skipped; Error is set only when the run aborted.
type Summary struct {
	RunID                  string  `json:"run_id"`
	LookbackDays           int     `json:"lookback_days"`
	SignalsAnalyzed        int     `json:"signals_analyzed"`
	EntitiesExtracted      int     `json:"entities_extracted"`
	EntitiesTracked        int     `json:"entities_tracked"`
	HighAmplificationCount int     `json:"high_amplification_count"`
	Surprises              int     `json:"surprises"`
	NarrativeShifts        int     `json:"narrative_shifts"`
	SnapshotsWritten       int     `json:"snapshots_written"`
	StaleRemoved           int64   `json:"stale_removed"`
	ReadFailures           int     `json:"read_failures"`
	WriteFailures          int     `json:"write_failures"`
	DurationSeconds        float64 `json:"duration_seconds"`
	Error                  string  `json:"error,omitempty"`
}

// Engine runs amplification and behavioral analysis over a store.
type Engine struct {
	Store      store.Store
	Classifier classify.Classifier
	Config     config.EngineConfig
	// Now is the run clock. Tests pin it.
	Now func() time.Time

	log      *log.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	sched    sync.WaitGroup
}

// New creates an Engine with the shipped keyword classifier.
func New(st store.Store, cfg config.EngineConfig) *Engine {
	return &Engine{
		Store:      st,
		Classifier: classify.V1(),
		Config:     cfg,
		Now:        time.Now,
		log:        logging.New("engine"),
		stopCh:     make(chan struct{}),
	}
}

// tenantResult is one tenant's contribution to the run.
type tenantResult struct {
	tracked       int
	surprises     int
	shifts        int
	snapshot      bool
	readFailures  int
	writeFailures int
}

// RunAnalysis loads every signal from the last lookbackDays and updates
// amplification, baselines, narratives and snapshots. A lookback of zero or
// less uses the configured default. Only a failure to load signals aborts
// the run; individual record failures are counted in the Summary.
// Concurrent calls are serialized.
func (e *Engine) RunAnalysis(ctx context.Context, lookbackDays int) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	if lookbackDays <= 0 {
		lookbackDays = e.Config.LookbackDays
	}
	now := e.Now().UTC()
	cutoff := now.AddDate(0, 0, -lookbackDays)
	sum := &Summary{RunID: uuid.NewString(), LookbackDays: lookbackDays}
	logger := e.log.With("run", sum.RunID)
	finish := func() *Summary {
		sum.DurationSeconds = time.Since(started).Seconds()
		return sum
	}

	signals, err := e.Store.ListActiveSignals(ctx, cutoff)
	if err != nil {
		sum.Error = err.Error()
		logger.Error("load signals failed", "err", err)
		return finish(), fmt.Errorf("load signals: %w", err)
	}
	sum.SignalsAnalyzed = len(signals)
	logger.Info("run started", "signals", len(signals), "lookback_days", lookbackDays)

	groups := CollectMentions(signals)
	sum.EntitiesExtracted = len(groups)

	rows, err := Aggregate(ctx, groups, now, e.Config.MinMentions)
	if err != nil {
		sum.Error = err.Error()
		return finish(), err
	}
	for _, r := range rows {
		if r.AmplificationScore >= HighAmplification {
			sum.HighAmplificationCount++
		}
	}
	amp := &Amplifier{Store: e.Store, Timeout: e.Config.StoreTimeout, Log: logger}
	sum.WriteFailures += amp.Write(ctx, rows)

	byTenant := make(map[string][]store.ActiveSignal)
	for _, s := range signals {
		byTenant[s.TenantID] = append(byTenant[s.TenantID], s)
	}
	tenantIDs := make([]string, 0, len(byTenant))
	for id := range byTenant {
		tenantIDs = append(tenantIDs, id)
	}
	sort.Strings(tenantIDs)

	results := make([]tenantResult, len(tenantIDs))
	var g errgroup.Group
	g.SetLimit(max(1, e.Config.TenantWorkers))
	for i, id := range tenantIDs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.runTenant(ctx, logger, id, byTenant[id], now, lookbackDays)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sum.Error = err.Error()
		return finish(), fmt.Errorf("tenant analysis: %w", err)
	}

	for _, r := range results {
		sum.EntitiesTracked += r.tracked
		sum.Surprises += r.surprises
		sum.NarrativeShifts += r.shifts
		sum.ReadFailures += r.readFailures
		sum.WriteFailures += r.writeFailures
		if r.snapshot {
			sum.SnapshotsWritten++
		}
	}

	removed, err := amp.Prune(ctx, cutoff)
	if err != nil {
		logger.Error("stale cleanup failed", "err", err)
		sum.WriteFailures++
	}
	sum.StaleRemoved = removed

	finish()
	logger.Info("run complete",
		"entities", sum.EntitiesExtracted,
		"amplified", len(rows),
		"high", sum.HighAmplificationCount,
		"tracked", sum.EntitiesTracked,
		"surprises", sum.Surprises,
		"shifts", sum.NarrativeShifts,
		"stale_removed", sum.StaleRemoved,
		"write_failures", sum.WriteFailures,
		"duration", time.Duration(sum.DurationSeconds*float64(time.Second)).Round(time.Millisecond),
	)
	return sum, nil
}

// runTenant runs the per-tenant trackers in order: baseline, narrative,
// then the snapshot that rolls both up.
func (e *Engine) runTenant(ctx context.Context, logger *log.Logger, tenantID string, signals []store.ActiveSignal, now time.Time, lookbackDays int) tenantResult {
	logger = logger.With("tenant", tenantID)
	var res tenantResult

	actions := DeriveActions(signals, e.Classifier)
	baseline := &BaselineTracker{
		Store:      e.Store,
		Classifier: e.Classifier,
		Cap:        e.Config.UnusualBehaviorCap,
		Timeout:    e.Config.StoreTimeout,
		Log:        logger,
	}
	b := baseline.Process(ctx, tenantID, actions)
	res.tracked = b.Tracked
	res.surprises = len(b.Surprises)
	res.readFailures += b.ReadFailures
	res.writeFailures += b.WriteFailures

	topics := DeriveTopics(signals, now, lookbackDays)
	narratives := &NarrativeTracker{Store: e.Store, Timeout: e.Config.StoreTimeout, Log: logger}
	n := narratives.Process(ctx, tenantID, topics, now)
	res.shifts = len(n.Shifts)
	res.readFailures += n.ReadFailures
	res.writeFailures += n.WriteFailures

	compiler := &SnapshotCompiler{
		Store:      e.Store,
		Classifier: e.Classifier,
		Timeout:    e.Config.StoreTimeout,
		Log:        logger,
	}
	snap, err := compiler.Write(ctx, SnapshotInput{
		TenantID:  tenantID,
		Now:       now,
		Actions:   actions,
		Topics:    topics,
		Surprises: b.Surprises,
		Shifts:    n.Shifts,
	})
	if err != nil {
		logger.Error("upsert snapshot failed", "err", err)
		res.writeFailures++
	} else {
		res.snapshot = true
	}
	logger.Debug("tenant done",
		"actions", len(actions),
		"topics", len(topics),
		"surprises", res.surprises,
		"tension", snap.TensionLevel,
		"opportunity", snap.OpportunityLevel,
		"sentiment", snap.OverallSentiment,
	)
	return res
}

// StartScheduler runs an analysis immediately and then every interval until
// Stop is called.
func (e *Engine) StartScheduler(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-e.stopCh
		cancel()
	}()

	run := func() {
		if _, err := e.RunAnalysis(ctx, 0); err != nil {
			e.log.Error("scheduled run failed", "err", err)
		}
	}

	e.sched.Add(1)
	go func() {
		defer e.sched.Done()
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the scheduler and waits for an in-flight run to return.
// It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.sched.Wait()
}
