package store

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{
		"schema_versions", "tenants", "signals", "entity_amplification",
		"tracked_entities", "tracked_narratives", "intelligence_snapshots",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestNarrativeConstraints(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO tracked_narratives (tenant_id, narrative_key, narrative_title, origin_date, current_phase, created_at, updated_at)
		VALUES ('t1', 'ai', 'AI', 1000, 'emerging', 1000, 1000)
	`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO tracked_narratives (tenant_id, narrative_key, narrative_title, origin_date, current_phase, created_at, updated_at)
		VALUES ('t1', 'ev', 'EV', 1000, 'exploding', 1000, 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid phase, got nil")
	}
}

func TestSnapshotConstraints(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO intelligence_snapshots (tenant_id, snapshot_date, tension_level, opportunity_level, overall_sentiment, created_at)
		VALUES ('t1', '2026-01-01', 11, 3, 'neutral', 1000)
	`)
	if err == nil {
		t.Error("expected error for tension_level out of range, got nil")
	}

	_, err = db.Exec(`
		INSERT INTO intelligence_snapshots (tenant_id, snapshot_date, tension_level, opportunity_level, overall_sentiment, created_at)
		VALUES ('t1', '2026-01-01', 5, 3, 'ecstatic', 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid sentiment, got nil")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion after re-migrate = %d, want %d", v, len(migrations))
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	db := testDB(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}
