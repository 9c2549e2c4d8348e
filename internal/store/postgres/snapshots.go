package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lazypower/amplifier/internal/store"
)

const snapshotColumns = `tenant_id, snapshot_date, key_events, active_entities, dominant_topics,
    behavioral_changes, narrative_shifts, surprise_count, biggest_surprise, tension_level,
    opportunity_level, overall_sentiment, created_at`

func jsonList(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte("[]"), nil
	}
	return data, nil
}

func (c *Client) UpsertSnapshot(ctx context.Context, s store.IntelligenceSnapshot) error {
	lists := make([][]byte, 0, 5)
	for _, v := range []any{s.KeyEvents, s.ActiveEntities, s.DominantTopics, s.BehavioralChanges, s.NarrativeShifts} {
		enc, err := jsonList(v)
		if err != nil {
			return fmt.Errorf("marshaling snapshot field: %w", err)
		}
		lists = append(lists, enc)
	}
	var biggest []byte
	if s.BiggestSurprise != nil {
		data, err := json.Marshal(s.BiggestSurprise)
		if err != nil {
			return fmt.Errorf("marshaling biggest surprise: %w", err)
		}
		biggest = data
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := c.pool.Exec(ctx, `
INSERT INTO intelligence_snapshots (`+snapshotColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (tenant_id, snapshot_date) DO UPDATE SET
    key_events = EXCLUDED.key_events,
    active_entities = EXCLUDED.active_entities,
    dominant_topics = EXCLUDED.dominant_topics,
    behavioral_changes = EXCLUDED.behavioral_changes,
    narrative_shifts = EXCLUDED.narrative_shifts,
    surprise_count = EXCLUDED.surprise_count,
    biggest_surprise = EXCLUDED.biggest_surprise,
    tension_level = EXCLUDED.tension_level,
    opportunity_level = EXCLUDED.opportunity_level,
    overall_sentiment = EXCLUDED.overall_sentiment,
    created_at = EXCLUDED.created_at
`, s.TenantID, s.SnapshotDate, lists[0], lists[1], lists[2], lists[3], lists[4],
		s.SurpriseCount, biggest, s.TensionLevel, s.OpportunityLevel, string(s.OverallSentiment), created)
	if err != nil {
		return fmt.Errorf("upserting snapshot %s/%s: %w", s.TenantID, s.SnapshotDate, err)
	}
	return nil
}

func (c *Client) ListSnapshots(ctx context.Context, tenantID string, from, to time.Time) ([]store.IntelligenceSnapshot, error) {
	fromDate, toDate := "0000-01-01", "9999-12-31"
	if !from.IsZero() {
		fromDate = from.Format(store.DateLayout)
	}
	if !to.IsZero() {
		toDate = to.Format(store.DateLayout)
	}

	rows, err := c.pool.Query(ctx, `SELECT `+snapshotColumns+`
FROM intelligence_snapshots
WHERE tenant_id = $1 AND snapshot_date BETWEEN $2 AND $3
ORDER BY snapshot_date DESC`, tenantID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []store.IntelligenceSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (c *Client) LatestSnapshot(ctx context.Context, tenantID string) (*store.IntelligenceSnapshot, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+snapshotColumns+`
FROM intelligence_snapshots WHERE tenant_id = $1
ORDER BY snapshot_date DESC LIMIT 1`, tenantID)
	s, err := scanSnapshot(row)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return s, nil
}

func scanSnapshot(row pgx.Row) (*store.IntelligenceSnapshot, error) {
	var s store.IntelligenceSnapshot
	var keyEvents, activeEntities, topics, changes, shifts, biggest []byte
	var sentiment string
	if err := row.Scan(&s.TenantID, &s.SnapshotDate, &keyEvents, &activeEntities, &topics,
		&changes, &shifts, &s.SurpriseCount, &biggest, &s.TensionLevel,
		&s.OpportunityLevel, &sentiment, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.OverallSentiment = store.Sentiment(sentiment)
	s.CreatedAt = s.CreatedAt.UTC()

	decode := []struct {
		raw []byte
		dst any
	}{
		{keyEvents, &s.KeyEvents},
		{activeEntities, &s.ActiveEntities},
		{topics, &s.DominantTopics},
		{changes, &s.BehavioralChanges},
		{shifts, &s.NarrativeShifts},
	}
	for _, d := range decode {
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("decoding snapshot field: %w", err)
		}
	}
	if len(biggest) > 0 {
		var b store.Surprise
		if err := json.Unmarshal(biggest, &b); err != nil {
			return nil, fmt.Errorf("decoding biggest surprise: %w", err)
		}
		s.BiggestSurprise = &b
	}
	return &s, nil
}
