package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const amplificationColumns = `entity_normalized, entity_name, entity_type, tenant_count, tenant_ids,
	signal_count, signals_last_24h, signals_last_7d, amplification_score, velocity_score,
	industries, first_signal_at, latest_signal_at, insight_summary, computed_at`

// UpsertEntityAmplification replaces the aggregate row for a normalized entity.
// The row is recomputed from the full window each run, so conflicts replace
// every column rather than merging.
func (db *DB) UpsertEntityAmplification(ctx context.Context, a EntityAmplification) error {
	tenantIDs, err := encodeJSON(a.TenantIDs)
	if err != nil {
		return fmt.Errorf("encode tenant ids: %w", err)
	}
	industries, err := encodeJSON(a.Industries)
	if err != nil {
		return fmt.Errorf("encode industries: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO entity_amplification (`+amplificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_normalized) DO UPDATE SET
			entity_name = excluded.entity_name,
			entity_type = excluded.entity_type,
			tenant_count = excluded.tenant_count,
			tenant_ids = excluded.tenant_ids,
			signal_count = excluded.signal_count,
			signals_last_24h = excluded.signals_last_24h,
			signals_last_7d = excluded.signals_last_7d,
			amplification_score = excluded.amplification_score,
			velocity_score = excluded.velocity_score,
			industries = excluded.industries,
			first_signal_at = excluded.first_signal_at,
			latest_signal_at = excluded.latest_signal_at,
			insight_summary = excluded.insight_summary,
			computed_at = excluded.computed_at
	`, a.EntityNormalized, a.EntityName, string(a.EntityType), a.TenantCount, tenantIDs,
		a.SignalCount, a.SignalsLast24h, a.SignalsLast7d, a.AmplificationScore, a.VelocityScore,
		industries, millis(a.FirstSignalAt), millis(a.LatestSignalAt), nullString(a.InsightSummary),
		millis(a.ComputedAt))
	if err != nil {
		return fmt.Errorf("upsert amplification %q: %w", a.EntityNormalized, err)
	}
	return nil
}

// DeleteAmplificationOlderThan removes aggregates whose latest signal is
// before cutoff. Returns the number of rows removed.
func (db *DB) DeleteAmplificationOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM entity_amplification WHERE latest_signal_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete stale amplification: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// GetAmplification returns the aggregate for a normalized entity, or nil.
func (db *DB) GetAmplification(ctx context.Context, entityNormalized string) (*EntityAmplification, error) {
	row := db.QueryRowContext(ctx, `SELECT `+amplificationColumns+`
		FROM entity_amplification WHERE entity_normalized = ?`, entityNormalized)
	a, err := scanAmplification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get amplification: %w", err)
	}
	return a, nil
}

// ListAmplifications returns aggregates scoring at least minScore, highest first.
// A limit <= 0 returns every match.
func (db *DB) ListAmplifications(ctx context.Context, minScore, limit int) ([]EntityAmplification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `SELECT `+amplificationColumns+`
		FROM entity_amplification
		WHERE amplification_score >= ?
		ORDER BY amplification_score DESC, tenant_count DESC, entity_normalized
		LIMIT ?`, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("list amplifications: %w", err)
	}
	defer rows.Close()

	var out []EntityAmplification
	for rows.Next() {
		a, err := scanAmplification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan amplification: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAmplification(s scanner) (*EntityAmplification, error) {
	var a EntityAmplification
	var entityType, tenantIDs, industries string
	var firstAt, latestAt, computedAt int64
	var summary sql.NullString
	if err := s.Scan(&a.EntityNormalized, &a.EntityName, &entityType, &a.TenantCount, &tenantIDs,
		&a.SignalCount, &a.SignalsLast24h, &a.SignalsLast7d, &a.AmplificationScore, &a.VelocityScore,
		&industries, &firstAt, &latestAt, &summary, &computedAt); err != nil {
		return nil, err
	}
	a.EntityType = EntityType(entityType)
	if err := json.Unmarshal([]byte(tenantIDs), &a.TenantIDs); err != nil {
		return nil, fmt.Errorf("decode tenant ids: %w", err)
	}
	if err := json.Unmarshal([]byte(industries), &a.Industries); err != nil {
		return nil, fmt.Errorf("decode industries: %w", err)
	}
	a.FirstSignalAt = fromMillis(firstAt)
	a.LatestSignalAt = fromMillis(latestAt)
	a.ComputedAt = fromMillis(computedAt)
	a.InsightSummary = fromNullString(summary)
	return &a, nil
}
