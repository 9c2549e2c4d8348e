package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const trackedEntityColumns = `tenant_id, entity_key, entity_name, entity_type, last_seen,
	last_significant_action, last_significant_date, typical_behavior, unusual_behaviors,
	created_at, updated_at, last_signal_id`

// GetTrackedEntity returns the baseline row for (tenant, entity key), or nil.
func (db *DB) GetTrackedEntity(ctx context.Context, tenantID, entityKey string) (*TrackedEntity, error) {
	row := db.QueryRowContext(ctx, `SELECT `+trackedEntityColumns+`
		FROM tracked_entities WHERE tenant_id = ? AND entity_key = ?`, tenantID, entityKey)
	e, err := scanTrackedEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked entity: %w", err)
	}
	return e, nil
}

// UpsertTrackedEntity writes the full baseline row. typical_behavior and
// created_at keep their first stored values on conflict.
func (db *DB) UpsertTrackedEntity(ctx context.Context, e TrackedEntity) error {
	unusual, err := encodeJSON(e.UnusualBehaviors)
	if err != nil {
		return fmt.Errorf("encode unusual behaviors: %w", err)
	}
	now := time.Now()
	created := e.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO tracked_entities (`+trackedEntityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity_key) DO UPDATE SET
			entity_name = excluded.entity_name,
			entity_type = excluded.entity_type,
			last_seen = excluded.last_seen,
			last_significant_action = excluded.last_significant_action,
			last_significant_date = excluded.last_significant_date,
			last_signal_id = excluded.last_signal_id,
			unusual_behaviors = excluded.unusual_behaviors,
			updated_at = excluded.updated_at
	`, e.TenantID, e.EntityKey, e.EntityName, string(e.EntityType), millis(e.LastSeen),
		e.LastSignificantAction, millis(e.LastSignificantDate), e.TypicalBehavior, unusual,
		millis(created), now.UnixMilli(), e.LastSignalID)
	if err != nil {
		return fmt.Errorf("upsert tracked entity %s/%s: %w", e.TenantID, e.EntityKey, err)
	}
	return nil
}

// ListTrackedEntities returns a tenant's tracked entities, most recently seen first.
func (db *DB) ListTrackedEntities(ctx context.Context, tenantID string) ([]TrackedEntity, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+trackedEntityColumns+`
		FROM tracked_entities WHERE tenant_id = ?
		ORDER BY last_seen DESC, entity_key`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tracked entities: %w", err)
	}
	defer rows.Close()

	var out []TrackedEntity
	for rows.Next() {
		e, err := scanTrackedEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanTrackedEntity(s scanner) (*TrackedEntity, error) {
	var e TrackedEntity
	var entityType, unusual string
	var lastSeen, lastDate, created, updated int64
	if err := s.Scan(&e.TenantID, &e.EntityKey, &e.EntityName, &entityType, &lastSeen,
		&e.LastSignificantAction, &lastDate, &e.TypicalBehavior, &unusual,
		&created, &updated, &e.LastSignalID); err != nil {
		return nil, err
	}
	e.EntityType = EntityType(entityType)
	if err := json.Unmarshal([]byte(unusual), &e.UnusualBehaviors); err != nil {
		return nil, fmt.Errorf("decode unusual behaviors: %w", err)
	}
	e.LastSeen = fromMillis(lastSeen)
	e.LastSignificantDate = fromMillis(lastDate)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}
