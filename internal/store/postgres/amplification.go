package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lazypower/amplifier/internal/store"
)

const amplificationColumns = `entity_normalized, entity_name, entity_type, tenant_count, tenant_ids,
    signal_count, signals_last_24h, signals_last_7d, amplification_score, velocity_score,
    industries, first_signal_at, latest_signal_at, insight_summary, computed_at`

func (c *Client) UpsertEntityAmplification(ctx context.Context, a store.EntityAmplification) error {
	_, err := c.pool.Exec(ctx, `
INSERT INTO entity_amplification (`+amplificationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (entity_normalized) DO UPDATE SET
    entity_name = EXCLUDED.entity_name,
    entity_type = EXCLUDED.entity_type,
    tenant_count = EXCLUDED.tenant_count,
    tenant_ids = EXCLUDED.tenant_ids,
    signal_count = EXCLUDED.signal_count,
    signals_last_24h = EXCLUDED.signals_last_24h,
    signals_last_7d = EXCLUDED.signals_last_7d,
    amplification_score = EXCLUDED.amplification_score,
    velocity_score = EXCLUDED.velocity_score,
    industries = EXCLUDED.industries,
    first_signal_at = EXCLUDED.first_signal_at,
    latest_signal_at = EXCLUDED.latest_signal_at,
    insight_summary = EXCLUDED.insight_summary,
    computed_at = EXCLUDED.computed_at
`, a.EntityNormalized, a.EntityName, string(a.EntityType), a.TenantCount, nonNil(a.TenantIDs),
		a.SignalCount, a.SignalsLast24h, a.SignalsLast7d, a.AmplificationScore, a.VelocityScore,
		nonNil(a.Industries), a.FirstSignalAt, a.LatestSignalAt, a.InsightSummary, a.ComputedAt)
	if err != nil {
		return fmt.Errorf("upserting amplification %q: %w", a.EntityNormalized, err)
	}
	return nil
}

func (c *Client) DeleteAmplificationOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM entity_amplification WHERE latest_signal_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting stale amplification: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (c *Client) GetAmplification(ctx context.Context, entityNormalized string) (*store.EntityAmplification, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+amplificationColumns+`
FROM entity_amplification WHERE entity_normalized = $1`, entityNormalized)
	a, err := scanAmplification(row)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting amplification: %w", err)
	}
	return a, nil
}

func (c *Client) ListAmplifications(ctx context.Context, minScore, limit int) ([]store.EntityAmplification, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := c.pool.Query(ctx, `SELECT `+amplificationColumns+`
FROM entity_amplification
WHERE amplification_score >= $1
ORDER BY amplification_score DESC, tenant_count DESC, entity_normalized
LIMIT $2`, minScore, lim)
	if err != nil {
		return nil, fmt.Errorf("listing amplifications: %w", err)
	}
	defer rows.Close()

	var out []store.EntityAmplification
	for rows.Next() {
		a, err := scanAmplification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning amplification: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAmplification(row pgx.Row) (*store.EntityAmplification, error) {
	var a store.EntityAmplification
	var entityType string
	if err := row.Scan(&a.EntityNormalized, &a.EntityName, &entityType, &a.TenantCount, &a.TenantIDs,
		&a.SignalCount, &a.SignalsLast24h, &a.SignalsLast7d, &a.AmplificationScore, &a.VelocityScore,
		&a.Industries, &a.FirstSignalAt, &a.LatestSignalAt, &a.InsightSummary, &a.ComputedAt); err != nil {
		return nil, err
	}
	a.EntityType = store.EntityType(entityType)
	a.FirstSignalAt = a.FirstSignalAt.UTC()
	a.LatestSignalAt = a.LatestSignalAt.UTC()
	a.ComputedAt = a.ComputedAt.UTC()
	return &a, nil
}
