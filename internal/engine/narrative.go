package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/amplifier/internal/extract"
	"github.com/lazypower/amplifier/internal/store"
)

const newNarrativeShift = "New narrative detected"

// NarrativeTracker keeps one timeline per (tenant, topic) and derives the
// topic's lifecycle phase from its recent momentum.
type NarrativeTracker struct {
	Store   NarrativeMemory
	Timeout time.Duration
	Log     *log.Logger
}

// NarrativeResult is what one tenant's pass produced.
type NarrativeResult struct {
	Shifts        []store.NarrativeShift
	Tracked       int
	ReadFailures  int
	WriteFailures int
}

// Process records each topic observation for the run date of now.
func (n *NarrativeTracker) Process(ctx context.Context, tenantID string, topics []TopicObservation, now time.Time) NarrativeResult {
	var res NarrativeResult
	date := now.UTC().Format(store.DateLayout)

	for _, obs := range topics {
		key := extract.Normalize(obs.Topic)
		if key == "" {
			continue
		}
		var existing *store.TrackedNarrative
		err := withTimeout(ctx, n.Timeout, func(ctx context.Context) error {
			var err error
			existing, err = n.Store.GetTrackedNarrative(ctx, tenantID, key)
			return err
		})
		if err != nil {
			n.Log.Error("load narrative failed", "tenant", tenantID, "topic", key, "err", err)
			res.ReadFailures++
			continue
		}

		entry := store.TimelineEntry{
			Date:         date,
			Momentum:     obs.Momentum,
			Headlines:    obs.Headlines,
			ArticleCount: obs.ArticleCount,
		}

		var row store.TrackedNarrative
		var shift *store.NarrativeShift
		if existing == nil {
			row = store.TrackedNarrative{
				TenantID:       tenantID,
				NarrativeKey:   key,
				NarrativeTitle: obs.Topic,
				NarrativeType:  obs.Category,
				OriginDate:     now,
				CurrentPhase:   store.PhaseEmerging,
				Timeline:       []store.TimelineEntry{entry},
				Status:         store.NarrativeActive,
			}
			if len(obs.Headlines) > 0 {
				row.OriginEvent = obs.Headlines[0]
			}
			shift = &store.NarrativeShift{Narrative: obs.Topic, Shift: newNarrativeShift, Significance: "medium"}
		} else {
			row = *existing
			row.NarrativeTitle = obs.Topic
			row.Timeline = appendEntry(existing.Timeline, entry)
			row.CurrentPhase = PhaseOf(row.Timeline)
			if row.CurrentPhase != existing.CurrentPhase {
				shift = &store.NarrativeShift{
					Narrative:    obs.Topic,
					Shift:        fmt.Sprintf("%s → %s", existing.CurrentPhase, row.CurrentPhase),
					Significance: shiftSignificance(row.CurrentPhase),
				}
			}
		}

		err = withTimeout(ctx, n.Timeout, func(ctx context.Context) error {
			return n.Store.UpsertTrackedNarrative(ctx, row)
		})
		if err != nil {
			n.Log.Error("upsert narrative failed", "tenant", tenantID, "topic", key, "err", err)
			res.WriteFailures++
			continue
		}
		res.Tracked++
		if shift != nil {
			res.Shifts = append(res.Shifts, *shift)
		}
	}
	return res
}

// appendEntry adds entry to a copy of timeline. An entry for the same date
// replaces the last one instead, so a second run on one day leaves a single
// entry for that day.
func appendEntry(timeline []store.TimelineEntry, entry store.TimelineEntry) []store.TimelineEntry {
	out := make([]store.TimelineEntry, len(timeline), len(timeline)+1)
	copy(out, timeline)
	if len(out) > 0 && out[len(out)-1].Date == entry.Date {
		out[len(out)-1] = entry
		return out
	}
	return append(out, entry)
}

// PhaseOf derives a narrative phase from the last three timeline entries.
// Fewer than two entries is always emerging.
func PhaseOf(timeline []store.TimelineEntry) store.Phase {
	if len(timeline) < 2 {
		return store.PhaseEmerging
	}
	recent := timeline[max(0, len(timeline)-3):]

	accelerating, steady := 0, 0
	for _, e := range recent {
		switch e.Momentum {
		case store.MomentumAccelerating:
			accelerating++
		case store.MomentumSteady, "":
			steady++
		}
	}
	switch {
	case accelerating == len(recent):
		return store.PhasePeak
	case steady == len(recent):
		return store.PhaseDeclining
	case recent[len(recent)-1].Momentum == store.MomentumAccelerating:
		return store.PhaseAccelerating
	default:
		return store.PhaseActive
	}
}

func shiftSignificance(to store.Phase) string {
	if to == store.PhasePeak || to == store.PhaseDeclining {
		return "high"
	}
	return "medium"
}
