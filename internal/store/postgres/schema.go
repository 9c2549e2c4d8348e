package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates every table and index. All statements use IF NOT
// EXISTS, so running it against an existing database is a no-op.
func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS tenants (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL DEFAULT '',
    industry TEXT
);

CREATE TABLE IF NOT EXISTS signals (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL REFERENCES tenants(id),
    signal_type         TEXT NOT NULL DEFAULT 'other'
        CHECK (signal_type IN ('competitive','regulatory','narrative','stakeholder','other')),
    title               TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    primary_target_name TEXT NOT NULL DEFAULT '',
    evidence            JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_amplification (
    entity_normalized   TEXT PRIMARY KEY,
    entity_name         TEXT NOT NULL,
    entity_type         TEXT NOT NULL,
    tenant_count        INTEGER NOT NULL DEFAULT 0,
    tenant_ids          TEXT[] NOT NULL DEFAULT '{}',
    signal_count        INTEGER NOT NULL DEFAULT 0,
    signals_last_24h    INTEGER NOT NULL DEFAULT 0,
    signals_last_7d     INTEGER NOT NULL DEFAULT 0,
    amplification_score INTEGER NOT NULL DEFAULT 0
        CHECK (amplification_score BETWEEN 0 AND 100),
    velocity_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    industries          TEXT[] NOT NULL DEFAULT '{}',
    first_signal_at     TIMESTAMPTZ NOT NULL,
    latest_signal_at    TIMESTAMPTZ NOT NULL,
    insight_summary     TEXT,
    computed_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tracked_entities (
    tenant_id               TEXT NOT NULL,
    entity_key              TEXT NOT NULL,
    entity_name             TEXT NOT NULL,
    entity_type             TEXT NOT NULL,
    last_seen               TIMESTAMPTZ NOT NULL,
    last_significant_action TEXT NOT NULL DEFAULT '',
    last_significant_date   TIMESTAMPTZ NOT NULL,
    typical_behavior        TEXT NOT NULL DEFAULT '',
    unusual_behaviors       JSONB NOT NULL DEFAULT '[]',
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_signal_id          TEXT NOT NULL DEFAULT '',
    CONSTRAINT uq_tracked_entity UNIQUE (tenant_id, entity_key)
);

CREATE TABLE IF NOT EXISTS tracked_narratives (
    tenant_id       TEXT NOT NULL,
    narrative_key   TEXT NOT NULL,
    narrative_title TEXT NOT NULL,
    narrative_type  TEXT NOT NULL DEFAULT '',
    origin_date     TIMESTAMPTZ NOT NULL,
    origin_event    TEXT NOT NULL DEFAULT '',
    current_phase   TEXT NOT NULL DEFAULT 'emerging'
        CHECK (current_phase IN ('emerging','accelerating','active','peak','declining')),
    timeline        JSONB NOT NULL DEFAULT '[]',
    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','closed')),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_tracked_narrative UNIQUE (tenant_id, narrative_key)
);

CREATE TABLE IF NOT EXISTS intelligence_snapshots (
    tenant_id          TEXT NOT NULL,
    snapshot_date      TEXT NOT NULL,
    key_events         JSONB NOT NULL DEFAULT '[]',
    active_entities    JSONB NOT NULL DEFAULT '[]',
    dominant_topics    JSONB NOT NULL DEFAULT '[]',
    behavioral_changes JSONB NOT NULL DEFAULT '[]',
    narrative_shifts   JSONB NOT NULL DEFAULT '[]',
    surprise_count     INTEGER NOT NULL DEFAULT 0,
    biggest_surprise   JSONB,
    tension_level      INTEGER NOT NULL CHECK (tension_level BETWEEN 0 AND 10),
    opportunity_level  INTEGER NOT NULL CHECK (opportunity_level BETWEEN 0 AND 10),
    overall_sentiment  TEXT NOT NULL
        CHECK (overall_sentiment IN ('positive','negative','neutral','mixed')),
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_snapshot_day UNIQUE (tenant_id, snapshot_date)
);

CREATE INDEX IF NOT EXISTS idx_signals_created ON signals (created_at);
CREATE INDEX IF NOT EXISTS idx_signals_tenant ON signals (tenant_id);
CREATE INDEX IF NOT EXISTS idx_amplification_score ON entity_amplification (amplification_score DESC);
CREATE INDEX IF NOT EXISTS idx_amplification_latest ON entity_amplification (latest_signal_at);
ALTER TABLE tracked_entities ADD COLUMN IF NOT EXISTS last_signal_id TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_tracked_entities_tenant ON tracked_entities (tenant_id);
CREATE INDEX IF NOT EXISTS idx_tracked_narratives_tenant ON tracked_narratives (tenant_id, status);
`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
