package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/amplifier/internal/extract"
	"github.com/lazypower/amplifier/internal/store"
)

// Mention is one sighting of an entity in one tenant's signal.
type Mention struct {
	TenantID   string
	TenantName string
	Industry   string
	SignalID   string
	SignalType store.SignalType
	Timestamp  time.Time
}

// EntityMentions collects every mention of one normalized entity.
type EntityMentions struct {
	Key      string
	Name     string
	Type     store.EntityType
	Mentions []Mention
}

// CollectMentions extracts entities from every signal and groups the
// mentions by normalized key. Signals are visited oldest first so the
// display name and type come from the first mention.
func CollectMentions(signals []store.ActiveSignal) []EntityMentions {
	ordered := make([]store.ActiveSignal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	index := make(map[string]int)
	var groups []EntityMentions
	for _, sig := range ordered {
		for _, name := range extract.Entities(sig.Signal) {
			key := extract.Normalize(name)
			i, ok := index[key]
			if !ok {
				i = len(groups)
				index[key] = i
				groups = append(groups, EntityMentions{
					Key:  key,
					Name: name,
					Type: extract.InferType(name, sig.Type),
				})
			}
			groups[i].Mentions = append(groups[i].Mentions, Mention{
				TenantID:   sig.TenantID,
				TenantName: sig.Tenant.Name,
				Industry:   sig.Tenant.IndustryOrEmpty(),
				SignalID:   sig.ID,
				SignalType: sig.Type,
				Timestamp:  sig.CreatedAt,
			})
		}
	}
	return groups
}

// Score combines breadth and recency into a 0-100 amplification score.
func Score(tenants, industries, last7d int, recent bool) int {
	score := min(4, tenants)*25 + min(4, industries)*15 + min(30, last7d*5)
	if recent {
		score += 10
	}
	return min(100, score)
}

// Aggregate computes one EntityAmplification per entity mentioned at least
// minMentions times by at least two distinct tenants. Scoring is pure and
// fans out per entity; rows come back ordered by normalized key.
func Aggregate(ctx context.Context, groups []EntityMentions, now time.Time, minMentions int) ([]store.EntityAmplification, error) {
	var kept []EntityMentions
	for _, g := range groups {
		if len(g.Mentions) >= minMentions && distinctTenants(g.Mentions) >= 2 {
			kept = append(kept, g)
		}
	}

	rows := make([]store.EntityAmplification, len(kept))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range kept {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows[i] = amplify(kept[i], now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].EntityNormalized < rows[j].EntityNormalized })
	return rows, nil
}

func distinctTenants(mentions []Mention) int {
	seen := make(map[string]bool, len(mentions))
	for _, m := range mentions {
		seen[m.TenantID] = true
	}
	return len(seen)
}

func amplify(g EntityMentions, now time.Time) store.EntityAmplification {
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	tenantNames := make(map[string]string)
	var tenantOrder []string
	industrySet := make(map[string]bool)
	var last24h, last7d int
	first, latest := g.Mentions[0].Timestamp, g.Mentions[0].Timestamp

	for _, m := range g.Mentions {
		if _, ok := tenantNames[m.TenantID]; !ok {
			tenantNames[m.TenantID] = m.TenantName
			tenantOrder = append(tenantOrder, m.TenantID)
		}
		if m.Industry != "" {
			industrySet[m.Industry] = true
		}
		if !m.Timestamp.Before(dayAgo) {
			last24h++
		}
		if !m.Timestamp.Before(weekAgo) {
			last7d++
		}
		if m.Timestamp.Before(first) {
			first = m.Timestamp
		}
		if m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}

	tenantIDs := make([]string, 0, len(tenantNames))
	for id := range tenantNames {
		tenantIDs = append(tenantIDs, id)
	}
	sort.Strings(tenantIDs)
	industries := make([]string, 0, len(industrySet))
	for ind := range industrySet {
		industries = append(industries, ind)
	}
	sort.Strings(industries)

	a := store.EntityAmplification{
		EntityNormalized:   g.Key,
		EntityName:         g.Name,
		EntityType:         g.Type,
		TenantCount:        len(tenantIDs),
		TenantIDs:          tenantIDs,
		SignalCount:        len(g.Mentions),
		SignalsLast24h:     last24h,
		SignalsLast7d:      last7d,
		AmplificationScore: Score(len(tenantIDs), len(industries), last7d, last24h > 0),
		VelocityScore:      float64(last7d) / 7,
		Industries:         industries,
		FirstSignalAt:      first,
		LatestSignalAt:     latest,
		ComputedAt:         now,
	}

	names := make([]string, 0, len(tenantOrder))
	for _, id := range tenantOrder {
		names = append(names, tenantNames[id])
	}
	a.InsightSummary = insightSummary(g.Name, names, industries)
	return a
}

// insightSummary describes who is watching an entity. tenantNames is in
// first-mention order.
func insightSummary(entity string, tenantNames, industries []string) *string {
	var s string
	switch {
	case len(tenantNames) >= 3:
		if len(industries) == 0 {
			s = fmt.Sprintf("%s is being tracked by %d organizations", entity, len(tenantNames))
		} else {
			s = fmt.Sprintf("%s is being tracked by %d organizations across %s",
				entity, len(tenantNames), strings.Join(industries[:min(3, len(industries))], ", "))
		}
	case len(tenantNames) == 2:
		s = fmt.Sprintf("Both %s and %s are tracking %s", tenantNames[0], tenantNames[1], entity)
	default:
		return nil
	}
	return &s
}

// Amplifier persists aggregates and prunes rows that fell out of the window.
type Amplifier struct {
	Store   AmplificationStore
	Timeout time.Duration
	Log     *log.Logger
}

// Write upserts every row, each under its own deadline. A failed row is
// logged and skipped. Returns the number of failed writes.
func (a *Amplifier) Write(ctx context.Context, rows []store.EntityAmplification) int {
	failures := 0
	for _, row := range rows {
		err := withTimeout(ctx, a.Timeout, func(ctx context.Context) error {
			return a.Store.UpsertEntityAmplification(ctx, row)
		})
		if err != nil {
			a.Log.Error("upsert amplification failed", "entity", row.EntityNormalized, "err", err)
			failures++
		}
	}
	return failures
}

// Prune deletes aggregates whose latest signal is older than cutoff.
func (a *Amplifier) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := withTimeout(ctx, a.Timeout, func(ctx context.Context) error {
		n, err := a.Store.DeleteAmplificationOlderThan(ctx, cutoff)
		removed = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune amplification: %w", err)
	}
	return removed, nil
}
