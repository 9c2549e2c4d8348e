package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UpsertTenant inserts or renames a tenant.
func (db *DB) UpsertTenant(ctx context.Context, t Tenant) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("upsert tenant: id required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, industry) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, industry = excluded.industry
	`, t.ID, t.Name, nullString(t.Industry))
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

// InsertSignal stores a signal. Signals are immutable, so inserting an id
// that already exists is a no-op.
func (db *DB) InsertSignal(ctx context.Context, s Signal) error {
	if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.TenantID) == "" {
		return fmt.Errorf("insert signal: id and tenant_id required")
	}
	evidence, err := json.Marshal(s.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO signals (id, tenant_id, signal_type, title, description, primary_target_name, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, s.ID, s.TenantID, string(ParseSignalType(string(s.Type))), s.Title, s.Description,
		s.PrimaryTargetName, string(evidence), createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// ListActiveSignals returns every signal created at or after since, joined
// with its tenant, oldest first.
func (db *DB) ListActiveSignals(ctx context.Context, since time.Time) ([]ActiveSignal, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.tenant_id, s.signal_type, s.title, s.description, s.primary_target_name,
			s.evidence, s.created_at, t.name, t.industry
		FROM signals s
		JOIN tenants t ON t.id = s.tenant_id
		WHERE s.created_at >= ?
		ORDER BY s.created_at, s.id
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list active signals: %w", err)
	}
	defer rows.Close()

	var out []ActiveSignal
	for rows.Next() {
		var a ActiveSignal
		var signalType string
		var evidence, industry sql.NullString
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.TenantID, &signalType, &a.Title, &a.Description,
			&a.PrimaryTargetName, &evidence, &createdAt, &a.Tenant.Name, &industry); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		a.Type = ParseSignalType(signalType)
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		a.Evidence = ParseEvidence([]byte(evidence.String))
		a.Tenant.ID = a.TenantID
		if industry.Valid && industry.String != "" {
			ind := industry.String
			a.Tenant.Industry = &ind
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// encodeJSON marshals v for a TEXT column. Nil slices encode as "[]".
func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
