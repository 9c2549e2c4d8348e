package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lazypower/amplifier/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

const sample = `{"kind":"tenant","id":"t1","name":"Acme","industry":"fintech"}
{"kind":"tenant","id":"t2","name":"Soylent"}

{"kind":"signal","id":"s1","tenant_id":"t1","signal_type":"Competitive","title":"Globex sues Initech","primary_target_name":"Globex","created_at":"2026-10-18T10:00:00Z","evidence":{"action":"sued","importance":"Critical"}}
not json at all
{"kind":"signal","id":"s2","tenant_id":"t2","title":"Globex partners with Hooli","created_at":"2026-10-18T11:00:00Z","evidence":"garbage"}
{"kind":"signal","id":"s3","tenant_id":"t9","title":"Orphan","created_at":"2026-10-18T11:00:00Z"}
{"kind":"signal","id":"s4","tenant_id":"t1","title":"No timestamp"}
{"kind":"widget","id":"w1"}
{"kind":"tenant","name":"Nameless"}
`

func TestImport(t *testing.T) {
	db := testDB(t)
	im := NewImporter(db)

	res, err := im.Import(context.Background(), strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	want := Result{Tenants: 2, Signals: 2, Skipped: 4, Failed: 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}

	signals, err := db.ListActiveSignals(context.Background(), time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListActiveSignals: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("signals = %d, want 2", len(signals))
	}
	s1 := signals[0]
	if s1.ID != "s1" {
		s1 = signals[1]
	}
	if s1.Type != store.SignalCompetitive {
		t.Errorf("Type = %q, want competitive", s1.Type)
	}
	if s1.Evidence.Importance != "critical" || s1.Evidence.Action != "sued" {
		t.Errorf("Evidence = %+v", s1.Evidence)
	}
	if s1.Tenant.Name != "Acme" {
		t.Errorf("Tenant = %+v", s1.Tenant)
	}
}

func TestImportIsRepeatable(t *testing.T) {
	db := testDB(t)
	im := NewImporter(db)
	ctx := context.Background()

	if _, err := im.Import(ctx, strings.NewReader(sample)); err != nil {
		t.Fatalf("first Import: %v", err)
	}
	if _, err := im.Import(ctx, strings.NewReader(sample)); err != nil {
		t.Fatalf("second Import: %v", err)
	}
	signals, _ := db.ListActiveSignals(ctx, time.Time{})
	if len(signals) != 2 {
		t.Errorf("signals after re-import = %d, want 2", len(signals))
	}
}

func TestImportFile(t *testing.T) {
	db := testDB(t)
	path := filepath.Join(t.TempDir(), "intake.jsonl")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := NewImporter(db).ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.Signals != 2 {
		t.Errorf("Signals = %d, want 2", res.Signals)
	}

	if _, err := NewImporter(db).ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewImporter(testDB(t)).Import(ctx, strings.NewReader(sample)); err == nil {
		t.Error("expected context error")
	}
}
