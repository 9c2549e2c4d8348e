package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	var gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/analysis/run" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		json.NewEncoder(w).Encode(map[string]any{"run_id": "r1", "lookback_days": 7, "signals_analyzed": 3})
	}))
	defer ts.Close()

	c := New(ts.URL, 0)
	sum, err := c.Run(context.Background(), 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotBody != `{"lookback_days":7}` {
		t.Errorf("body = %s", gotBody)
	}
	if sum.RunID != "r1" || sum.SignalsAnalyzed != 3 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunFailureKeepsSummary(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"run_id": "r2", "error": "load signals: boom"})
	}))
	defer ts.Close()

	sum, err := New(ts.URL, 0).Run(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if sum == nil || sum.Error != "load signals: boom" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunRateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"analysis run rate limit exceeded"}`))
	}))
	defer ts.Close()

	sum, err := New(ts.URL, 0).Run(context.Background(), 0)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429", err)
	}
	if sum != nil {
		t.Errorf("summary = %+v, want nil", sum)
	}
}

func TestAmplified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("min_score"); got != "70" {
			t.Errorf("min_score = %q", got)
		}
		w.Write([]byte(`{"entities":[{"entity_normalized":"globex","tenant_count":3}],"count":1}`))
	}))
	defer ts.Close()

	rows, err := New(ts.URL, 0).Amplified(context.Background(), 70, 10)
	if err != nil {
		t.Fatalf("Amplified: %v", err)
	}
	if len(rows) != 1 || rows[0].EntityNormalized != "globex" || rows[0].TenantCount != 3 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestHealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	url := ts.URL
	c := New(url+"/", 0)
	if !c.Healthy(context.Background()) {
		t.Error("Healthy = false, want true")
	}
	ts.Close()
	if c.Healthy(context.Background()) {
		t.Error("Healthy = true after server closed")
	}
}

func TestNewFallsBackToEnv(t *testing.T) {
	t.Setenv("AMPLIFIER_URL", "http://example.invalid:1")
	if c := New("", 0); c.serverURL != "http://example.invalid:1" {
		t.Errorf("serverURL = %q", c.serverURL)
	}
	t.Setenv("AMPLIFIER_URL", "")
	if c := New("", 0); c.serverURL != defaultServerURL {
		t.Errorf("serverURL = %q, want default", c.serverURL)
	}
}
