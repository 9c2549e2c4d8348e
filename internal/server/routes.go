package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/amplifier/internal/extract"
	"github.com/lazypower/amplifier/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// --- Analysis ---

func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis engine not configured")
		return
	}
	var req struct {
		LookbackDays int `json:"lookback_days"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.LookbackDays < 0 {
		writeError(w, http.StatusBadRequest, "lookback_days must not be negative")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "analysis run rate limit exceeded")
		return
	}

	sum, err := s.engine.RunAnalysis(r.Context(), req.LookbackDays)
	if err != nil {
		s.log.Error("analysis run failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, sum)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// --- Amplification ---

func (s *Server) handleListAmplification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	minScore, err := intParam(q, "min_score", 0)
	if err != nil || minScore < 0 || minScore > 100 {
		writeError(w, http.StatusBadRequest, "min_score must be an integer between 0 and 100")
		return
	}
	limit, err := intParam(q, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxListLimit)

	rows, err := s.store.ListAmplifications(r.Context(), minScore, limit)
	if err != nil {
		s.log.Error("list amplification failed", "err", err)
		writeError(w, http.StatusInternalServerError, "list amplification failed")
		return
	}
	if rows == nil {
		rows = []store.EntityAmplification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": rows,
		"count":    len(rows),
	})
}

func (s *Server) handleGetAmplification(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "entity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity")
		return
	}
	key := extract.Normalize(raw)
	if key == "" {
		writeError(w, http.StatusBadRequest, "invalid entity")
		return
	}

	row, err := s.store.GetAmplification(r.Context(), key)
	if err != nil {
		s.log.Error("get amplification failed", "entity", key, "err", err)
		writeError(w, http.StatusInternalServerError, "get amplification failed")
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "entity not amplified")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// --- Tenants ---

func (s *Server) handleUpsertTenant(w http.ResponseWriter, r *http.Request) {
	var t store.Tenant
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if t.ID == "" || t.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	if err := s.store.UpsertTenant(r.Context(), t); err != nil {
		s.log.Error("upsert tenant failed", "tenant", t.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "upsert tenant failed")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	q := r.URL.Query()

	from, err := dateParam(q, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := dateParam(q, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}

	snaps, err := s.store.ListSnapshots(r.Context(), tenantID, from, to)
	if err != nil {
		s.log.Error("list snapshots failed", "tenant", tenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "list snapshots failed")
		return
	}
	if snaps == nil {
		snaps = []store.IntelligenceSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"snapshots": snaps,
	})
}

// entityView is the API shape of a tracked entity.
type entityView struct {
	Entity                string                  `json:"entity"`
	Key                   string                  `json:"key"`
	Type                  store.EntityType        `json:"type"`
	LastSeen              time.Time               `json:"last_seen"`
	TypicalBehavior       string                  `json:"typical_behavior"`
	LastSignificantAction string                  `json:"last_significant_action"`
	LastSignificantDate   time.Time               `json:"last_significant_date"`
	UnusualBehaviors      []store.UnusualBehavior `json:"unusual_behaviors"`
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	entities, err := s.store.ListTrackedEntities(r.Context(), tenantID)
	if err != nil {
		s.log.Error("list entities failed", "tenant", tenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "list entities failed")
		return
	}

	out := make([]entityView, 0, len(entities))
	for _, e := range entities {
		unusual := e.UnusualBehaviors
		if unusual == nil {
			unusual = []store.UnusualBehavior{}
		}
		out = append(out, entityView{
			Entity:                e.EntityName,
			Key:                   e.EntityKey,
			Type:                  e.EntityType,
			LastSeen:              e.LastSeen,
			TypicalBehavior:       e.TypicalBehavior,
			LastSignificantAction: e.LastSignificantAction,
			LastSignificantDate:   e.LastSignificantDate,
			UnusualBehaviors:      unusual,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"entities":  out,
	})
}

// narrativeView is the API shape of a tracked narrative.
type narrativeView struct {
	Title       string                `json:"title"`
	Key         string                `json:"key"`
	Type        string                `json:"type,omitempty"`
	OriginDate  time.Time             `json:"origin_date"`
	OriginEvent string                `json:"origin_event"`
	Phase       store.Phase           `json:"phase"`
	Status      store.NarrativeStatus `json:"status"`
	Timeline    []store.TimelineEntry `json:"timeline"`
}

func (s *Server) handleListNarratives(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	narratives, err := s.store.ListTrackedNarratives(r.Context(), tenantID)
	if err != nil {
		s.log.Error("list narratives failed", "tenant", tenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "list narratives failed")
		return
	}

	out := make([]narrativeView, 0, len(narratives))
	for _, n := range narratives {
		out = append(out, narrativeView{
			Title:       n.NarrativeTitle,
			Key:         n.NarrativeKey,
			Type:        n.NarrativeType,
			OriginDate:  n.OriginDate,
			OriginEvent: n.OriginEvent,
			Phase:       n.CurrentPhase,
			Status:      n.Status,
			Timeline:    n.Timeline,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":  tenantID,
		"narratives": out,
	})
}

// --- Signals ---

func (s *Server) handleInsertSignal(w http.ResponseWriter, r *http.Request) {
	var sig store.Signal
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if sig.ID == "" || sig.TenantID == "" || sig.Title == "" {
		writeError(w, http.StatusBadRequest, "id, tenant_id and title are required")
		return
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	sig.Type = store.ParseSignalType(string(sig.Type))

	if err := s.store.InsertSignal(r.Context(), sig); err != nil {
		s.log.Error("insert signal failed", "signal", sig.ID, "tenant", sig.TenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "insert signal failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     sig.ID,
		"status": "stored",
	})
}

// --- Helpers ---

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// dateParam parses a YYYY-MM-DD query parameter. An absent value is the
// zero time, which the store treats as unbounded.
func dateParam(q url.Values, name string) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(store.DateLayout, v)
}
