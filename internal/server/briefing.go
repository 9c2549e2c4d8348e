package server

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/amplifier/internal/store"
)

const (
	maxBriefingItems  = 10
	maxBriefingShared = 5
)

func (s *Server) handleBriefing(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	md, err := s.buildBriefing(r.Context(), tenantID)
	if err != nil {
		s.log.Error("build briefing failed", "tenant", tenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "build briefing failed")
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]string{
			"tenant_id": tenantID,
			"briefing":  md,
		})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(md))
}

// buildBriefing renders a tenant's latest snapshot, recent unusual behavior
// and the cross-organization attention on entities it tracks as markdown.
// Other tenants appear only as counts.
func (s *Server) buildBriefing(ctx context.Context, tenantID string) (string, error) {
	var b strings.Builder

	snap, err := s.store.LatestSnapshot(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("latest snapshot: %w", err)
	}

	if snap == nil {
		b.WriteString("## Intelligence Briefing\n\nNo snapshot has been compiled yet.\n")
	} else {
		fmt.Fprintf(&b, "## Intelligence Briefing: %s\n", snap.SnapshotDate)
		fmt.Fprintf(&b, "\nTension %d/10, opportunity %d/10, sentiment %s.\n",
			snap.TensionLevel, snap.OpportunityLevel, snap.OverallSentiment)

		if snap.BiggestSurprise != nil {
			fmt.Fprintf(&b, "\n**Biggest surprise:** %s\n", snap.BiggestSurprise.WhySurprising)
		}
		writeList(&b, "Key Events", snap.KeyEvents)
		writeList(&b, "Dominant Topics", snap.DominantTopics)

		if len(snap.NarrativeShifts) > 0 {
			b.WriteString("\n### Narrative Shifts\n")
			for _, sh := range snap.NarrativeShifts {
				fmt.Fprintf(&b, "- %s: %s (%s)\n", sh.Narrative, sh.Shift, sh.Significance)
			}
		}
	}

	entities, err := s.store.ListTrackedEntities(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("list entities: %w", err)
	}

	// Rank every logged surprise by recency and cap the section.
	type rankedItem struct {
		entity string
		ub     store.UnusualBehavior
	}
	var items []rankedItem
	for _, e := range entities {
		for _, ub := range e.UnusualBehaviors {
			items = append(items, rankedItem{e.EntityName, ub})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ub.Date.After(items[j].ub.Date)
	})
	if len(items) > maxBriefingItems {
		items = items[:maxBriefingItems]
	}
	if len(items) > 0 {
		b.WriteString("\n### Unusual Behavior\n")
		for _, it := range items {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", it.ub.Date.Format(store.DateLayout), it.entity, it.ub.Context)
		}
	}

	amplified, err := s.store.ListAmplifications(ctx, 0, maxListLimit)
	if err != nil {
		return "", fmt.Errorf("list amplification: %w", err)
	}
	var shared []store.EntityAmplification
	for _, a := range amplified {
		if slices.Contains(a.TenantIDs, tenantID) {
			shared = append(shared, a)
		}
		if len(shared) == maxBriefingShared {
			break
		}
	}
	if len(shared) > 0 {
		b.WriteString("\n### Also Watched Elsewhere\n")
		for _, a := range shared {
			others := a.TenantCount - 1
			noun := "organizations"
			if others == 1 {
				noun = "organization"
			}
			fmt.Fprintf(&b, "- %s: %d other %s, score %d, last signal %s\n",
				a.EntityName, others, noun, a.AmplificationScore, relativeAge(a.LatestSignalAt))
		}
	}

	return b.String(), nil
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func relativeAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Hour:
		return "within the hour"
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
