package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/amplifier/internal/classify"
	"github.com/lazypower/amplifier/internal/extract"
	"github.com/lazypower/amplifier/internal/store"
)

const (
	silenceThreshold = 30 * 24 * time.Hour
	burstThreshold   = 24 * time.Hour
)

// BaselineTracker keeps one behavioral baseline per (tenant, entity) and
// flags actions that deviate from it.
type BaselineTracker struct {
	Store      EntityMemory
	Classifier classify.Classifier
	// Cap bounds unusual_behaviors to the newest Cap entries. 0 keeps all.
	Cap     int
	Timeout time.Duration
	Log     *log.Logger
}

// BaselineResult is what one tenant's pass produced.
type BaselineResult struct {
	Surprises     []store.Surprise
	Tracked       int
	ReadFailures  int
	WriteFailures int
}

// Process applies a tenant's actions in order. Actions for the same entity
// see the state left by the previous one. Rows are written once per entity
// after all actions are applied.
func (b *BaselineTracker) Process(ctx context.Context, tenantID string, actions []EntityAction) BaselineResult {
	var res BaselineResult
	rows := make(map[string]*store.TrackedEntity)
	failed := make(map[string]bool)
	var order []string

	for _, act := range actions {
		key := extract.Normalize(act.Entity)
		if key == "" || failed[key] {
			continue
		}
		row, ok := rows[key]
		if !ok {
			err := withTimeout(ctx, b.Timeout, func(ctx context.Context) error {
				var err error
				row, err = b.Store.GetTrackedEntity(ctx, tenantID, key)
				return err
			})
			if err != nil {
				b.Log.Error("load tracked entity failed", "tenant", tenantID, "entity", key, "err", err)
				failed[key] = true
				res.ReadFailures++
				continue
			}
			rows[key] = row
			order = append(order, key)
		}

		if row == nil {
			rows[key] = &store.TrackedEntity{
				TenantID:              tenantID,
				EntityKey:             key,
				EntityName:            act.Entity,
				EntityType:            act.EntityType,
				LastSeen:              act.Timestamp,
				LastSignificantAction: act.Action,
				LastSignificantDate:   act.Timestamp,
				LastSignalID:          act.SignalID,
				TypicalBehavior:       act.Action,
			}
			continue
		}

		// Already observed on an earlier run.
		if !afterWatermark(act, row) {
			continue
		}

		if s := b.evaluate(row, act); s != nil {
			res.Surprises = append(res.Surprises, *s)
			row.UnusualBehaviors = append(row.UnusualBehaviors, store.UnusualBehavior{
				Date:    act.Timestamp,
				Action:  act.Action,
				Context: act.Headline,
			})
			if b.Cap > 0 && len(row.UnusualBehaviors) > b.Cap {
				row.UnusualBehaviors = row.UnusualBehaviors[len(row.UnusualBehaviors)-b.Cap:]
			}
		}
		row.EntityName = act.Entity
		row.LastSeen = act.Timestamp
		row.LastSignificantAction = act.Action
		row.LastSignificantDate = act.Timestamp
		row.LastSignalID = act.SignalID
	}

	for _, key := range order {
		row := rows[key]
		if row == nil {
			continue
		}
		err := withTimeout(ctx, b.Timeout, func(ctx context.Context) error {
			return b.Store.UpsertTrackedEntity(ctx, *row)
		})
		if err != nil {
			b.Log.Error("upsert tracked entity failed", "tenant", tenantID, "entity", key, "err", err)
			res.WriteFailures++
			continue
		}
		res.Tracked++
	}
	return res
}

// afterWatermark reports whether act sorts after the newest action already
// applied to row. Actions are ordered by (timestamp, signal id), the order
// DeriveActions emits, so two signals at the same instant are both applied.
func afterWatermark(act EntityAction, row *store.TrackedEntity) bool {
	if !act.Timestamp.Equal(row.LastSignificantDate) {
		return act.Timestamp.After(row.LastSignificantDate)
	}
	return act.SignalID > row.LastSignalID
}

// evaluate returns the first matching surprise for act against row's
// previous state: silence break, then burst, then stance shift.
func (b *BaselineTracker) evaluate(row *store.TrackedEntity, act EntityAction) *store.Surprise {
	s := &store.Surprise{
		Entity:   row.EntityName,
		Expected: row.TypicalBehavior,
		Actual:   act.Action,
		Date:     act.Timestamp,
	}
	gap := act.Timestamp.Sub(row.LastSignificantDate)

	switch {
	case gap > silenceThreshold:
		s.Kind = store.SurpriseSilenceBreak
		s.WhySurprising = fmt.Sprintf("%s broke silence after %d days", row.EntityName, int(gap.Hours()/24))
	case gap < burstThreshold:
		s.Kind = store.SurpriseBurst
		s.WhySurprising = fmt.Sprintf("%s taking multiple actions in rapid succession", row.EntityName)
	default:
		was := b.Classifier.Classify(row.TypicalBehavior)
		now := b.Classifier.Classify(act.Action)
		if !was.Opposes(now) {
			return nil
		}
		s.Kind = store.SurpriseStanceShift
		s.WhySurprising = fmt.Sprintf("%s usually %s (%s) but %s (%s)",
			row.EntityName, row.TypicalBehavior, was, act.Action, now)
	}
	return s
}
