package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/lazypower/amplifier/internal/classify"
	"github.com/lazypower/amplifier/internal/extract"
	"github.com/lazypower/amplifier/internal/store"
)

// EntityAction is one thing an entity was observed doing.
type EntityAction struct {
	Entity     string
	EntityType store.EntityType
	Action     string
	Headline   string
	Importance string
	Timestamp  time.Time
	SignalID   string
}

// TopicObservation is a run's view of one topic for one tenant.
type TopicObservation struct {
	Topic        string
	Momentum     string
	Headlines    []string
	ArticleCount int
	Category     string
}

// DeriveActions turns a tenant's signals into entity actions, oldest first.
// The entity is the signal's primary target. The action is the evidence
// action, or failing that the first action keyword in the title. Signals
// with no target or no recognizable action are skipped.
func DeriveActions(signals []store.ActiveSignal, c classify.Classifier) []EntityAction {
	var out []EntityAction
	for _, sig := range signals {
		entity := strings.TrimSpace(sig.PrimaryTargetName)
		if extract.Normalize(entity) == "" {
			continue
		}
		action := sig.Evidence.Action
		if action == "" {
			action = c.FindAction(sig.Title)
		}
		if action == "" {
			continue
		}
		out = append(out, EntityAction{
			Entity:     entity,
			EntityType: extract.InferType(entity, sig.Type),
			Action:     action,
			Headline:   sig.Title,
			Importance: sig.Evidence.Importance,
			Timestamp:  sig.CreatedAt,
			SignalID:   sig.ID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].SignalID < out[j].SignalID
	})
	return out
}

const maxTopicHeadlines = 5

// DeriveTopics groups a tenant's signals into topic observations. Signals
// are grouped by evidence topic; narrative signals without one use their
// title. Momentum comes from the newest signal's evidence when present,
// otherwise it is "accelerating" when the last week out-paces the weekly
// average of the rest of the window.
func DeriveTopics(signals []store.ActiveSignal, now time.Time, lookbackDays int) []TopicObservation {
	type group struct {
		topic   string
		signals []store.ActiveSignal
	}
	index := make(map[string]int)
	var groups []group
	for _, sig := range signals {
		topic := sig.Evidence.Topic
		if topic == "" && sig.Type == store.SignalNarrative {
			topic = strings.TrimSpace(sig.Title)
		}
		key := extract.Normalize(topic)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{topic: topic})
		}
		groups[i].signals = append(groups[i].signals, sig)
	}

	weekAgo := now.Add(-7 * 24 * time.Hour)
	olderWeeks := float64(lookbackDays-7) / 7
	if olderWeeks < 1 {
		olderWeeks = 1
	}

	out := make([]TopicObservation, 0, len(groups))
	for _, g := range groups {
		sigs := g.signals
		sort.SliceStable(sigs, func(i, j int) bool { return sigs[i].CreatedAt.After(sigs[j].CreatedAt) })
		newest := sigs[0]

		obs := TopicObservation{
			Topic:        g.topic,
			ArticleCount: len(sigs),
			Category:     newest.Evidence.Category,
		}
		if obs.Category == "" {
			obs.Category = string(newest.Type)
		}
		for _, s := range sigs[:min(maxTopicHeadlines, len(sigs))] {
			obs.Headlines = append(obs.Headlines, s.Title)
		}

		switch newest.Evidence.Momentum {
		case store.MomentumSteady, store.MomentumAccelerating:
			obs.Momentum = newest.Evidence.Momentum
		default:
			var recent int
			for _, s := range sigs {
				if !s.CreatedAt.Before(weekAgo) {
					recent++
				}
			}
			older := len(sigs) - recent
			obs.Momentum = store.MomentumSteady
			if float64(recent) > float64(older)/olderWeeks {
				obs.Momentum = store.MomentumAccelerating
			}
		}
		out = append(out, obs)
	}

	sort.Slice(out, func(i, j int) bool { return extract.Normalize(out[i].Topic) < extract.Normalize(out[j].Topic) })
	return out
}
