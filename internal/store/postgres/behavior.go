package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lazypower/amplifier/internal/store"
)

const trackedEntityColumns = `tenant_id, entity_key, entity_name, entity_type, last_seen,
    last_significant_action, last_significant_date, typical_behavior, unusual_behaviors,
    created_at, updated_at, last_signal_id`

func (c *Client) GetTrackedEntity(ctx context.Context, tenantID, entityKey string) (*store.TrackedEntity, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+trackedEntityColumns+`
FROM tracked_entities WHERE tenant_id = $1 AND entity_key = $2`, tenantID, entityKey)
	e, err := scanTrackedEntity(row)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting tracked entity: %w", err)
	}
	return e, nil
}

func (c *Client) UpsertTrackedEntity(ctx context.Context, e store.TrackedEntity) error {
	unusual, err := json.Marshal(e.UnusualBehaviors)
	if err != nil {
		return fmt.Errorf("marshaling unusual behaviors: %w", err)
	}
	if e.UnusualBehaviors == nil {
		unusual = []byte("[]")
	}
	now := time.Now()
	created := e.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = c.pool.Exec(ctx, `
INSERT INTO tracked_entities (`+trackedEntityColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (tenant_id, entity_key) DO UPDATE SET
    entity_name = EXCLUDED.entity_name,
    entity_type = EXCLUDED.entity_type,
    last_seen = EXCLUDED.last_seen,
    last_significant_action = EXCLUDED.last_significant_action,
    last_significant_date = EXCLUDED.last_significant_date,
    last_signal_id = EXCLUDED.last_signal_id,
    unusual_behaviors = EXCLUDED.unusual_behaviors,
    updated_at = EXCLUDED.updated_at
`, e.TenantID, e.EntityKey, e.EntityName, string(e.EntityType), e.LastSeen,
		e.LastSignificantAction, e.LastSignificantDate, e.TypicalBehavior, unusual, created, now, e.LastSignalID)
	if err != nil {
		return fmt.Errorf("upserting tracked entity %s/%s: %w", e.TenantID, e.EntityKey, err)
	}
	return nil
}

func (c *Client) ListTrackedEntities(ctx context.Context, tenantID string) ([]store.TrackedEntity, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+trackedEntityColumns+`
FROM tracked_entities WHERE tenant_id = $1
ORDER BY last_seen DESC, entity_key`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing tracked entities: %w", err)
	}
	defer rows.Close()

	var out []store.TrackedEntity
	for rows.Next() {
		e, err := scanTrackedEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tracked entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanTrackedEntity(row pgx.Row) (*store.TrackedEntity, error) {
	var e store.TrackedEntity
	var entityType string
	var unusual []byte
	if err := row.Scan(&e.TenantID, &e.EntityKey, &e.EntityName, &entityType, &e.LastSeen,
		&e.LastSignificantAction, &e.LastSignificantDate, &e.TypicalBehavior, &unusual,
		&e.CreatedAt, &e.UpdatedAt, &e.LastSignalID); err != nil {
		return nil, err
	}
	e.EntityType = store.EntityType(entityType)
	if err := json.Unmarshal(unusual, &e.UnusualBehaviors); err != nil {
		return nil, fmt.Errorf("decoding unusual behaviors: %w", err)
	}
	e.LastSeen = e.LastSeen.UTC()
	e.LastSignificantDate = e.LastSignificantDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

const trackedNarrativeColumns = `tenant_id, narrative_key, narrative_title, narrative_type,
    origin_date, origin_event, current_phase, timeline, status, created_at, updated_at`

func (c *Client) GetTrackedNarrative(ctx context.Context, tenantID, narrativeKey string) (*store.TrackedNarrative, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+trackedNarrativeColumns+`
FROM tracked_narratives WHERE tenant_id = $1 AND narrative_key = $2`, tenantID, narrativeKey)
	n, err := scanTrackedNarrative(row)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting tracked narrative: %w", err)
	}
	return n, nil
}

func (c *Client) UpsertTrackedNarrative(ctx context.Context, n store.TrackedNarrative) error {
	timeline, err := json.Marshal(n.Timeline)
	if err != nil {
		return fmt.Errorf("marshaling timeline: %w", err)
	}
	if n.Timeline == nil {
		timeline = []byte("[]")
	}
	status := n.Status
	if status == "" {
		status = store.NarrativeActive
	}
	now := time.Now()
	created := n.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = c.pool.Exec(ctx, `
INSERT INTO tracked_narratives (`+trackedNarrativeColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (tenant_id, narrative_key) DO UPDATE SET
    narrative_title = EXCLUDED.narrative_title,
    narrative_type = EXCLUDED.narrative_type,
    current_phase = EXCLUDED.current_phase,
    timeline = EXCLUDED.timeline,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
`, n.TenantID, n.NarrativeKey, n.NarrativeTitle, n.NarrativeType, n.OriginDate,
		n.OriginEvent, string(n.CurrentPhase), timeline, string(status), created, now)
	if err != nil {
		return fmt.Errorf("upserting tracked narrative %s/%s: %w", n.TenantID, n.NarrativeKey, err)
	}
	return nil
}

func (c *Client) ListTrackedNarratives(ctx context.Context, tenantID string) ([]store.TrackedNarrative, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+trackedNarrativeColumns+`
FROM tracked_narratives WHERE tenant_id = $1 AND status = 'active'
ORDER BY updated_at DESC, narrative_key`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing tracked narratives: %w", err)
	}
	defer rows.Close()

	var out []store.TrackedNarrative
	for rows.Next() {
		n, err := scanTrackedNarrative(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tracked narrative: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func scanTrackedNarrative(row pgx.Row) (*store.TrackedNarrative, error) {
	var n store.TrackedNarrative
	var phase, status string
	var timeline []byte
	if err := row.Scan(&n.TenantID, &n.NarrativeKey, &n.NarrativeTitle, &n.NarrativeType,
		&n.OriginDate, &n.OriginEvent, &phase, &timeline, &status, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.CurrentPhase = store.Phase(phase)
	n.Status = store.NarrativeStatus(status)
	if err := json.Unmarshal(timeline, &n.Timeline); err != nil {
		return nil, fmt.Errorf("decoding timeline: %w", err)
	}
	n.OriginDate = n.OriginDate.UTC()
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}
