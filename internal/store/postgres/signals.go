package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/amplifier/internal/store"
)

func (c *Client) UpsertTenant(ctx context.Context, t store.Tenant) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("upserting tenant: id required")
	}
	var industry *string
	if t.Industry != nil && *t.Industry != "" {
		industry = t.Industry
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO tenants (id, name, industry) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, industry = EXCLUDED.industry
`, t.ID, t.Name, industry)
	if err != nil {
		return fmt.Errorf("upserting tenant: %w", err)
	}
	return nil
}

func (c *Client) InsertSignal(ctx context.Context, s store.Signal) error {
	if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.TenantID) == "" {
		return fmt.Errorf("inserting signal: id and tenant_id required")
	}
	evidence, err := json.Marshal(s.Evidence)
	if err != nil {
		return fmt.Errorf("marshaling evidence: %w", err)
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = c.pool.Exec(ctx, `
INSERT INTO signals (id, tenant_id, signal_type, title, description, primary_target_name, evidence, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING
`, s.ID, s.TenantID, string(store.ParseSignalType(string(s.Type))), s.Title, s.Description,
		s.PrimaryTargetName, evidence, createdAt)
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	return nil
}

func (c *Client) ListActiveSignals(ctx context.Context, since time.Time) ([]store.ActiveSignal, error) {
	rows, err := c.pool.Query(ctx, `
SELECT s.id, s.tenant_id, s.signal_type, s.title, s.description, s.primary_target_name,
       s.evidence, s.created_at, t.name, t.industry
FROM signals s
JOIN tenants t ON t.id = s.tenant_id
WHERE s.created_at >= $1
ORDER BY s.created_at, s.id
`, since)
	if err != nil {
		return nil, fmt.Errorf("listing active signals: %w", err)
	}
	defer rows.Close()

	var out []store.ActiveSignal
	for rows.Next() {
		var a store.ActiveSignal
		var signalType string
		var evidence []byte
		var industry *string
		if err := rows.Scan(&a.ID, &a.TenantID, &signalType, &a.Title, &a.Description,
			&a.PrimaryTargetName, &evidence, &a.CreatedAt, &a.Tenant.Name, &industry); err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		a.Type = store.ParseSignalType(signalType)
		a.CreatedAt = a.CreatedAt.UTC()
		a.Evidence = store.ParseEvidence(evidence)
		a.Tenant.ID = a.TenantID
		if industry != nil && *industry != "" {
			a.Tenant.Industry = industry
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
