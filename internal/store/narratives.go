package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const trackedNarrativeColumns = `tenant_id, narrative_key, narrative_title, narrative_type,
	origin_date, origin_event, current_phase, timeline, status, created_at, updated_at`

// GetTrackedNarrative returns the narrative for (tenant, narrative key), or nil.
func (db *DB) GetTrackedNarrative(ctx context.Context, tenantID, narrativeKey string) (*TrackedNarrative, error) {
	row := db.QueryRowContext(ctx, `SELECT `+trackedNarrativeColumns+`
		FROM tracked_narratives WHERE tenant_id = ? AND narrative_key = ?`, tenantID, narrativeKey)
	n, err := scanTrackedNarrative(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked narrative: %w", err)
	}
	return n, nil
}

// UpsertTrackedNarrative writes the full narrative row. Origin fields keep
// their first stored values on conflict.
func (db *DB) UpsertTrackedNarrative(ctx context.Context, n TrackedNarrative) error {
	timeline, err := encodeJSON(n.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	status := n.Status
	if status == "" {
		status = NarrativeActive
	}
	now := time.Now()
	created := n.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO tracked_narratives (`+trackedNarrativeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, narrative_key) DO UPDATE SET
			narrative_title = excluded.narrative_title,
			narrative_type = excluded.narrative_type,
			current_phase = excluded.current_phase,
			timeline = excluded.timeline,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, n.TenantID, n.NarrativeKey, n.NarrativeTitle, n.NarrativeType, millis(n.OriginDate),
		n.OriginEvent, string(n.CurrentPhase), timeline, string(status),
		millis(created), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert tracked narrative %s/%s: %w", n.TenantID, n.NarrativeKey, err)
	}
	return nil
}

// ListTrackedNarratives returns a tenant's active narratives, most recently updated first.
func (db *DB) ListTrackedNarratives(ctx context.Context, tenantID string) ([]TrackedNarrative, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+trackedNarrativeColumns+`
		FROM tracked_narratives WHERE tenant_id = ? AND status = 'active'
		ORDER BY updated_at DESC, narrative_key`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tracked narratives: %w", err)
	}
	defer rows.Close()

	var out []TrackedNarrative
	for rows.Next() {
		n, err := scanTrackedNarrative(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked narrative: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func scanTrackedNarrative(s scanner) (*TrackedNarrative, error) {
	var n TrackedNarrative
	var phase, timeline, status string
	var origin, created, updated int64
	if err := s.Scan(&n.TenantID, &n.NarrativeKey, &n.NarrativeTitle, &n.NarrativeType,
		&origin, &n.OriginEvent, &phase, &timeline, &status, &created, &updated); err != nil {
		return nil, err
	}
	n.CurrentPhase = Phase(phase)
	n.Status = NarrativeStatus(status)
	if err := json.Unmarshal([]byte(timeline), &n.Timeline); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	n.OriginDate = fromMillis(origin)
	n.CreatedAt = fromMillis(created)
	n.UpdatedAt = fromMillis(updated)
	return &n, nil
}
