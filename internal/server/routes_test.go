package server

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/amplifier/internal/engine"
	"github.com/lazypower/amplifier/internal/store"
)

func TestRunAnalysis(t *testing.T) {
	srv, db := testServer(t)
	seedShared(t, db)

	w := do(t, srv, "POST", "/api/analysis/run", `{"lookback_days":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var sum engine.Summary
	decode(t, w, &sum)
	if sum.LookbackDays != 7 {
		t.Errorf("LookbackDays = %d, want 7", sum.LookbackDays)
	}
	if sum.SignalsAnalyzed != 2 {
		t.Errorf("SignalsAnalyzed = %d, want 2", sum.SignalsAnalyzed)
	}
	if sum.SnapshotsWritten != 2 {
		t.Errorf("SnapshotsWritten = %d, want 2", sum.SnapshotsWritten)
	}
}

func TestRunAnalysisEmptyBody(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, "POST", "/api/analysis/run", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var sum engine.Summary
	decode(t, w, &sum)
	if sum.LookbackDays != 30 {
		t.Errorf("LookbackDays = %d, want default 30", sum.LookbackDays)
	}
}

func TestRunAnalysisBadRequest(t *testing.T) {
	srv, _ := testServer(t)

	for _, body := range []string{`{not json`, `{"lookback_days":-1}`} {
		if w := do(t, srv, "POST", "/api/analysis/run", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestRunAnalysisRateLimited(t *testing.T) {
	srv, _ := testServerWith(t, Options{RunEvery: time.Hour, RunBurst: 1})

	if w := do(t, srv, "POST", "/api/analysis/run", ""); w.Code != http.StatusOK {
		t.Fatalf("first run: status = %d", w.Code)
	}
	w := do(t, srv, "POST", "/api/analysis/run", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second run: status = %d, want 429", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestRunAnalysisBadRequestKeepsToken(t *testing.T) {
	srv, _ := testServerWith(t, Options{RunEvery: time.Hour, RunBurst: 1})

	if w := do(t, srv, "POST", "/api/analysis/run", `{"lookback_days":-1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid run: status = %d, want 400", w.Code)
	}
	if w := do(t, srv, "POST", "/api/analysis/run", `{"lookback_days":7}`); w.Code != http.StatusOK {
		t.Fatalf("valid run after rejected body: status = %d, want 200", w.Code)
	}
}

func TestRunAnalysisWithoutEngine(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	srv := New(db, nil, "test-version", Options{})

	if w := do(t, srv, "POST", "/api/analysis/run", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAmplificationEndpoints(t *testing.T) {
	srv, db := testServer(t)
	seedShared(t, db)
	if w := do(t, srv, "POST", "/api/analysis/run", ""); w.Code != http.StatusOK {
		t.Fatalf("run: status = %d", w.Code)
	}

	w := do(t, srv, "GET", "/api/amplification", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	var list struct {
		Entities []store.EntityAmplification `json:"entities"`
		Count    int                         `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 || list.Entities[0].EntityNormalized != "globex" {
		t.Fatalf("list = %+v, want only globex", list)
	}

	w = do(t, srv, "GET", "/api/amplification?min_score=101", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("min_score=101: status = %d, want 400", w.Code)
	}
	w = do(t, srv, "GET", "/api/amplification?limit=zero", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("limit=zero: status = %d, want 400", w.Code)
	}

	// Lookup normalizes the path segment.
	w = do(t, srv, "GET", "/api/amplification/GLOBEX", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	var row store.EntityAmplification
	decode(t, w, &row)
	if row.TenantCount != 2 {
		t.Errorf("TenantCount = %d, want 2", row.TenantCount)
	}
	if row.InsightSummary == nil || *row.InsightSummary != "Both Acme and Soylent are tracking Globex" {
		t.Errorf("InsightSummary = %v", row.InsightSummary)
	}

	if w := do(t, srv, "GET", "/api/amplification/Hooli", ""); w.Code != http.StatusNotFound {
		t.Errorf("hooli: status = %d, want 404", w.Code)
	}
}

func TestTenantMemoryEndpoints(t *testing.T) {
	srv, db := testServer(t)
	seedShared(t, db)
	if w := do(t, srv, "POST", "/api/analysis/run", ""); w.Code != http.StatusOK {
		t.Fatalf("run: status = %d", w.Code)
	}

	w := do(t, srv, "GET", "/api/tenants/t1/snapshots", "")
	if w.Code != http.StatusOK {
		t.Fatalf("snapshots: status = %d", w.Code)
	}
	var snaps struct {
		Snapshots []store.IntelligenceSnapshot `json:"snapshots"`
	}
	decode(t, w, &snaps)
	if len(snaps.Snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps.Snapshots))
	}
	if snaps.Snapshots[0].TensionLevel != 8 {
		t.Errorf("TensionLevel = %d, want 8", snaps.Snapshots[0].TensionLevel)
	}

	w = do(t, srv, "GET", "/api/tenants/t1/snapshots?from=2000-01-01&to=2000-01-02", "")
	decode(t, w, &snaps)
	if len(snaps.Snapshots) != 0 {
		t.Errorf("out of range snapshots = %d, want 0", len(snaps.Snapshots))
	}
	if w := do(t, srv, "GET", "/api/tenants/t1/snapshots?from=yesterday", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad from: status = %d, want 400", w.Code)
	}

	w = do(t, srv, "GET", "/api/tenants/t1/entities", "")
	var entities struct {
		Entities []entityView `json:"entities"`
	}
	decode(t, w, &entities)
	if len(entities.Entities) != 1 || entities.Entities[0].Key != "globex" {
		t.Errorf("entities = %+v, want globex", entities.Entities)
	}

	w = do(t, srv, "GET", "/api/tenants/t1/narratives", "")
	var narratives struct {
		Narratives []narrativeView `json:"narratives"`
	}
	decode(t, w, &narratives)
	if len(narratives.Narratives) != 1 || narratives.Narratives[0].Phase != store.PhaseEmerging {
		t.Errorf("narratives = %+v, want one emerging", narratives.Narratives)
	}

	w = do(t, srv, "GET", "/api/tenants/t1/briefing", "")
	if w.Code != http.StatusOK {
		t.Fatalf("briefing: status = %d", w.Code)
	}
	md := w.Body.String()
	for _, want := range []string{"Tension 8/10", "Globex sues Initech", "Globex: 1 other organization"} {
		if !strings.Contains(md, want) {
			t.Errorf("briefing missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "Soylent") {
		t.Errorf("briefing leaks another tenant's name:\n%s", md)
	}
}

func TestBriefingWithoutSnapshot(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, "GET", "/api/tenants/nobody/briefing?format=json", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if !strings.Contains(body["briefing"], "No snapshot") {
		t.Errorf("briefing = %q", body["briefing"])
	}
}

func TestIntakeEndpoints(t *testing.T) {
	srv, db := testServer(t)
	ctx := context.Background()

	if w := do(t, srv, "POST", "/api/tenants", `{"name":"Acme"}`); w.Code != http.StatusBadRequest {
		t.Errorf("tenant without id: status = %d, want 400", w.Code)
	}
	if w := do(t, srv, "POST", "/api/tenants", `{"id":"t1","name":"Acme","industry":"fintech"}`); w.Code != http.StatusCreated {
		t.Fatalf("tenant: status = %d; body: %s", w.Code, w.Body.String())
	}

	body := `{"id":"s1","tenant_id":"t1","signal_type":"Regulatory","title":"SEC opens probe",
		"evidence":{"entities_mentioned":["Globex"],"importance":7}}`
	if w := do(t, srv, "POST", "/api/signals", body); w.Code != http.StatusCreated {
		t.Fatalf("signal: status = %d; body: %s", w.Code, w.Body.String())
	}
	if w := do(t, srv, "POST", "/api/signals", `{"id":"s2"}`); w.Code != http.StatusBadRequest {
		t.Errorf("signal without tenant: status = %d, want 400", w.Code)
	}

	signals, err := db.ListActiveSignals(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListActiveSignals: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(signals))
	}
	got := signals[0]
	if got.Type != store.SignalRegulatory {
		t.Errorf("Type = %q, want regulatory", got.Type)
	}
	if got.Tenant.IndustryOrEmpty() != "fintech" {
		t.Errorf("industry = %q, want fintech", got.Tenant.IndustryOrEmpty())
	}
	if got.Evidence.Importance != "" || len(got.Evidence.EntitiesMentioned) != 1 {
		t.Errorf("evidence = %+v, want malformed importance dropped", got.Evidence)
	}
}
