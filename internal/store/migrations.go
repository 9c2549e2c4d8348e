package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "tenants and signals: ingestion collaborator's records",
		SQL: `
CREATE TABLE tenants (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    industry   TEXT
);

CREATE TABLE signals (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL,
    signal_type         TEXT NOT NULL CHECK (signal_type IN ('competitive', 'regulatory', 'narrative', 'stakeholder', 'other')),
    title               TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    primary_target_name TEXT NOT NULL DEFAULT '',
    evidence            TEXT,
    created_at          INTEGER NOT NULL,

    FOREIGN KEY (tenant_id) REFERENCES tenants(id)
);

CREATE INDEX idx_signals_created ON signals(created_at DESC);
CREATE INDEX idx_signals_tenant  ON signals(tenant_id);
`,
	},
	{
		Version:     2,
		Description: "entity_amplification: cross-tenant entity aggregates",
		SQL: `
CREATE TABLE entity_amplification (
    entity_normalized   TEXT PRIMARY KEY,
    entity_name         TEXT NOT NULL,
    entity_type         TEXT NOT NULL CHECK (entity_type IN ('company', 'person', 'regulator')),
    tenant_count        INTEGER NOT NULL,
    tenant_ids          TEXT NOT NULL,
    signal_count        INTEGER NOT NULL,
    signals_last_24h    INTEGER NOT NULL,
    signals_last_7d     INTEGER NOT NULL,
    amplification_score INTEGER NOT NULL CHECK (amplification_score BETWEEN 0 AND 100),
    velocity_score      REAL NOT NULL,
    industries          TEXT NOT NULL,
    first_signal_at     INTEGER NOT NULL,
    latest_signal_at    INTEGER NOT NULL,
    insight_summary     TEXT,
    computed_at         INTEGER NOT NULL
);

CREATE INDEX idx_amp_score  ON entity_amplification(amplification_score DESC);
CREATE INDEX idx_amp_latest ON entity_amplification(latest_signal_at);
`,
	},
	{
		Version:     3,
		Description: "tracked_entities: per-tenant behavioral baselines",
		SQL: `
CREATE TABLE tracked_entities (
    id                      INTEGER PRIMARY KEY,
    tenant_id               TEXT NOT NULL,
    entity_key              TEXT NOT NULL,
    entity_name             TEXT NOT NULL,
    entity_type             TEXT NOT NULL,
    last_seen               INTEGER NOT NULL,
    last_significant_action TEXT NOT NULL DEFAULT '',
    last_significant_date   INTEGER NOT NULL,
    typical_behavior        TEXT NOT NULL DEFAULT '',
    unusual_behaviors       TEXT NOT NULL DEFAULT '[]',
    created_at              INTEGER NOT NULL,
    updated_at              INTEGER NOT NULL,

    UNIQUE (tenant_id, entity_key)
);

CREATE INDEX idx_tracked_entities_tenant ON tracked_entities(tenant_id);
`,
	},
	{
		Version:     4,
		Description: "tracked_narratives: per-tenant topic timelines",
		SQL: `
CREATE TABLE tracked_narratives (
    id              INTEGER PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    narrative_key   TEXT NOT NULL,
    narrative_title TEXT NOT NULL,
    narrative_type  TEXT NOT NULL DEFAULT '',
    origin_date     INTEGER NOT NULL,
    origin_event    TEXT NOT NULL DEFAULT '',
    current_phase   TEXT NOT NULL CHECK (current_phase IN ('emerging', 'accelerating', 'active', 'peak', 'declining')),
    timeline        TEXT NOT NULL DEFAULT '[]',
    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed')),
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,

    UNIQUE (tenant_id, narrative_key)
);

CREATE INDEX idx_tracked_narratives_tenant ON tracked_narratives(tenant_id, status);
`,
	},
	{
		Version:     5,
		Description: "intelligence_snapshots: daily per-tenant rollups",
		SQL: `
CREATE TABLE intelligence_snapshots (
    id                 INTEGER PRIMARY KEY,
    tenant_id          TEXT NOT NULL,
    snapshot_date      TEXT NOT NULL,
    key_events         TEXT NOT NULL DEFAULT '[]',
    active_entities    TEXT NOT NULL DEFAULT '[]',
    dominant_topics    TEXT NOT NULL DEFAULT '[]',
    behavioral_changes TEXT NOT NULL DEFAULT '[]',
    narrative_shifts   TEXT NOT NULL DEFAULT '[]',
    surprise_count     INTEGER NOT NULL DEFAULT 0,
    biggest_surprise   TEXT,
    tension_level      INTEGER NOT NULL CHECK (tension_level BETWEEN 0 AND 10),
    opportunity_level  INTEGER NOT NULL CHECK (opportunity_level BETWEEN 0 AND 10),
    overall_sentiment  TEXT NOT NULL CHECK (overall_sentiment IN ('positive', 'negative', 'neutral', 'mixed')),
    created_at         INTEGER NOT NULL,

    UNIQUE (tenant_id, snapshot_date)
);

CREATE INDEX idx_snapshots_tenant_date ON intelligence_snapshots(tenant_id, snapshot_date DESC);
`,
	},
	{
		Version:     6,
		Description: "tracked_entities: signal id half of the action watermark",
		SQL: `
ALTER TABLE tracked_entities ADD COLUMN last_signal_id TEXT NOT NULL DEFAULT '';
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
