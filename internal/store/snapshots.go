package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const snapshotColumns = `tenant_id, snapshot_date, key_events, active_entities, dominant_topics,
	behavioral_changes, narrative_shifts, surprise_count, biggest_surprise, tension_level,
	opportunity_level, overall_sentiment, created_at`

// UpsertSnapshot writes the snapshot for (tenant, date), replacing any
// snapshot already stored for that day.
func (db *DB) UpsertSnapshot(ctx context.Context, s IntelligenceSnapshot) error {
	cols := make([]string, 0, 5)
	for _, v := range []any{s.KeyEvents, s.ActiveEntities, s.DominantTopics, s.BehavioralChanges, s.NarrativeShifts} {
		enc, err := encodeJSON(v)
		if err != nil {
			return fmt.Errorf("encode snapshot field: %w", err)
		}
		cols = append(cols, enc)
	}
	var biggest sql.NullString
	if s.BiggestSurprise != nil {
		data, err := json.Marshal(s.BiggestSurprise)
		if err != nil {
			return fmt.Errorf("encode biggest surprise: %w", err)
		}
		biggest = sql.NullString{String: string(data), Valid: true}
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO intelligence_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, snapshot_date) DO UPDATE SET
			key_events = excluded.key_events,
			active_entities = excluded.active_entities,
			dominant_topics = excluded.dominant_topics,
			behavioral_changes = excluded.behavioral_changes,
			narrative_shifts = excluded.narrative_shifts,
			surprise_count = excluded.surprise_count,
			biggest_surprise = excluded.biggest_surprise,
			tension_level = excluded.tension_level,
			opportunity_level = excluded.opportunity_level,
			overall_sentiment = excluded.overall_sentiment,
			created_at = excluded.created_at
	`, s.TenantID, s.SnapshotDate, cols[0], cols[1], cols[2], cols[3], cols[4],
		s.SurpriseCount, biggest, s.TensionLevel, s.OpportunityLevel, string(s.OverallSentiment),
		created.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert snapshot %s/%s: %w", s.TenantID, s.SnapshotDate, err)
	}
	return nil
}

// ListSnapshots returns a tenant's snapshots with dates in [from, to], newest first.
// Zero bounds are open.
func (db *DB) ListSnapshots(ctx context.Context, tenantID string, from, to time.Time) ([]IntelligenceSnapshot, error) {
	fromDate, toDate := "0000-01-01", "9999-12-31"
	if !from.IsZero() {
		fromDate = from.Format(DateLayout)
	}
	if !to.IsZero() {
		toDate = to.Format(DateLayout)
	}

	rows, err := db.QueryContext(ctx, `SELECT `+snapshotColumns+`
		FROM intelligence_snapshots
		WHERE tenant_id = ? AND snapshot_date BETWEEN ? AND ?
		ORDER BY snapshot_date DESC`, tenantID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []IntelligenceSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the tenant's most recent snapshot, or nil.
func (db *DB) LatestSnapshot(ctx context.Context, tenantID string) (*IntelligenceSnapshot, error) {
	row := db.QueryRowContext(ctx, `SELECT `+snapshotColumns+`
		FROM intelligence_snapshots WHERE tenant_id = ?
		ORDER BY snapshot_date DESC LIMIT 1`, tenantID)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return s, nil
}

func scanSnapshot(sc scanner) (*IntelligenceSnapshot, error) {
	var s IntelligenceSnapshot
	var keyEvents, activeEntities, topics, changes, shifts, sentiment string
	var biggest sql.NullString
	var created int64
	if err := sc.Scan(&s.TenantID, &s.SnapshotDate, &keyEvents, &activeEntities, &topics,
		&changes, &shifts, &s.SurpriseCount, &biggest, &s.TensionLevel,
		&s.OpportunityLevel, &sentiment, &created); err != nil {
		return nil, err
	}
	s.OverallSentiment = Sentiment(sentiment)
	s.CreatedAt = fromMillis(created)

	decode := []struct {
		raw string
		dst any
	}{
		{keyEvents, &s.KeyEvents},
		{activeEntities, &s.ActiveEntities},
		{topics, &s.DominantTopics},
		{changes, &s.BehavioralChanges},
		{shifts, &s.NarrativeShifts},
	}
	for _, d := range decode {
		if err := json.Unmarshal([]byte(d.raw), d.dst); err != nil {
			return nil, fmt.Errorf("decode snapshot field: %w", err)
		}
	}
	if biggest.Valid {
		var b Surprise
		if err := json.Unmarshal([]byte(biggest.String), &b); err != nil {
			return nil, fmt.Errorf("decode biggest surprise: %w", err)
		}
		s.BiggestSurprise = &b
	}
	return &s, nil
}
