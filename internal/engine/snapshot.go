package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/amplifier/internal/classify"
	"github.com/lazypower/amplifier/internal/extract"
	"github.com/lazypower/amplifier/internal/store"
)

const (
	baseTension     = 5
	baseOpportunity = 3
	maxLevel        = 10
	maxKeyEvents    = 10
	maxTopics       = 5
)

// SnapshotInput is everything one tenant's pass feeds the compiler.
type SnapshotInput struct {
	TenantID  string
	Now       time.Time
	Actions   []EntityAction
	Topics    []TopicObservation
	Surprises []store.Surprise
	Shifts    []store.NarrativeShift
}

// CompileSnapshot builds the tenant's snapshot for the date of in.Now.
// Action-based counts cover the 24 hours before in.Now.
func CompileSnapshot(in SnapshotInput, c classify.Classifier) store.IntelligenceSnapshot {
	dayAgo := in.Now.Add(-24 * time.Hour)

	var critical, aggressive, collaborative int
	var events, entities []string
	seenEvent := make(map[string]bool)
	seenEntity := make(map[string]bool)

	// Newest first so key events lead with the latest headlines.
	recent := make([]EntityAction, 0, len(in.Actions))
	for _, a := range in.Actions {
		if !a.Timestamp.Before(dayAgo) && !a.Timestamp.After(in.Now) {
			recent = append(recent, a)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Timestamp.After(recent[j].Timestamp) })

	for _, a := range recent {
		importance := strings.ToLower(a.Importance)
		if importance == "critical" {
			critical++
		}
		switch c.Classify(a.Action) {
		case classify.Aggressive:
			aggressive++
		case classify.Collaborative:
			collaborative++
		}
		if (importance == "critical" || importance == "high") && len(events) < maxKeyEvents && !seenEvent[a.Headline] {
			seenEvent[a.Headline] = true
			events = append(events, a.Headline)
		}
		if key := extract.Normalize(a.Entity); !seenEntity[key] {
			seenEntity[key] = true
			entities = append(entities, a.Entity)
		}
	}

	var acceleratingTopics int
	for _, t := range in.Topics {
		if t.Momentum == store.MomentumAccelerating {
			acceleratingTopics++
		}
	}

	tension := clamp(baseTension + 2*critical + aggressive)
	opportunity := clamp(baseOpportunity + collaborative + 2*acceleratingTopics)

	return store.IntelligenceSnapshot{
		TenantID:          in.TenantID,
		SnapshotDate:      in.Now.UTC().Format(store.DateLayout),
		KeyEvents:         events,
		ActiveEntities:    entities,
		DominantTopics:    dominantTopics(in.Topics),
		BehavioralChanges: in.Surprises,
		NarrativeShifts:   in.Shifts,
		SurpriseCount:     len(in.Surprises),
		BiggestSurprise:   biggestSurprise(in.Surprises),
		TensionLevel:      tension,
		OpportunityLevel:  opportunity,
		OverallSentiment:  Sentiment(tension, opportunity),
	}
}

// Sentiment resolves tension and opportunity into an overall tone. Tension
// is checked first, so both above 7 is negative.
func Sentiment(tension, opportunity int) store.Sentiment {
	diff := tension - opportunity
	switch {
	case tension > 7:
		return store.SentimentNegative
	case opportunity > 7:
		return store.SentimentPositive
	case diff > -2 && diff < 2:
		return store.SentimentMixed
	default:
		return store.SentimentNeutral
	}
}

func clamp(v int) int {
	return max(0, min(maxLevel, v))
}

func dominantTopics(topics []TopicObservation) []string {
	sorted := make([]TopicObservation, len(topics))
	copy(sorted, topics)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ArticleCount > sorted[j].ArticleCount })
	var out []string
	for _, t := range sorted[:min(maxTopics, len(sorted))] {
		out = append(out, t.Topic)
	}
	return out
}

var surpriseRank = map[store.SurpriseKind]int{
	store.SurpriseSilenceBreak: 3,
	store.SurpriseStanceShift:  2,
	store.SurpriseBurst:        1,
}

// biggestSurprise picks the highest-ranked kind, latest first on ties.
func biggestSurprise(surprises []store.Surprise) *store.Surprise {
	var best *store.Surprise
	for i := range surprises {
		s := &surprises[i]
		if best == nil || surpriseRank[s.Kind] > surpriseRank[best.Kind] ||
			(surpriseRank[s.Kind] == surpriseRank[best.Kind] && s.Date.After(best.Date)) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// SnapshotCompiler writes one snapshot per tenant per day.
type SnapshotCompiler struct {
	Store      SnapshotStore
	Classifier classify.Classifier
	Timeout    time.Duration
	Log        *log.Logger
}

// Write compiles and upserts the tenant's snapshot. Surprises and shifts
// already recorded in an earlier snapshot for the same day are carried
// over, so a re-run keeps what the first run found.
func (s *SnapshotCompiler) Write(ctx context.Context, in SnapshotInput) (store.IntelligenceSnapshot, error) {
	date := in.Now.UTC().Format(store.DateLayout)

	var prior *store.IntelligenceSnapshot
	err := withTimeout(ctx, s.Timeout, func(ctx context.Context) error {
		var err error
		prior, err = s.Store.LatestSnapshot(ctx, in.TenantID)
		return err
	})
	if err != nil {
		s.Log.Warn("load prior snapshot failed", "tenant", in.TenantID, "err", err)
	} else if prior != nil && prior.SnapshotDate == date {
		in.Surprises = mergeSurprises(prior.BehavioralChanges, in.Surprises)
		in.Shifts = mergeShifts(prior.NarrativeShifts, in.Shifts)
	}

	snap := CompileSnapshot(in, s.Classifier)
	err = withTimeout(ctx, s.Timeout, func(ctx context.Context) error {
		return s.Store.UpsertSnapshot(ctx, snap)
	})
	return snap, err
}

func mergeSurprises(prior, current []store.Surprise) []store.Surprise {
	type key struct {
		entity string
		kind   store.SurpriseKind
		date   int64
	}
	seen := make(map[key]bool)
	var out []store.Surprise
	for _, list := range [][]store.Surprise{prior, current} {
		for _, s := range list {
			k := key{extract.Normalize(s.Entity), s.Kind, s.Date.UnixMilli()}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeShifts(prior, current []store.NarrativeShift) []store.NarrativeShift {
	seen := make(map[store.NarrativeShift]bool)
	var out []store.NarrativeShift
	for _, list := range [][]store.NarrativeShift{prior, current} {
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
