package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/lazypower/amplifier/internal/logging"
	"github.com/lazypower/amplifier/internal/store"
)

// Record kinds accepted on each line.
const (
	KindTenant = "tenant"
	KindSignal = "signal"
)

const maxLineBytes = 1024 * 1024

// Result counts what an import did. Skipped lines were malformed or
// incomplete; Failed lines parsed but could not be stored.
type Result struct {
	Tenants int `json:"tenants"`
	Signals int `json:"signals"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Importer loads JSONL intake files into a store. Each line is an object
// with a "kind" of "tenant" or "signal" alongside the record's own fields.
// Tenants must precede the signals that reference them.
type Importer struct {
	Store store.Store
	Log   *log.Logger
}

// NewImporter creates an Importer over st.
func NewImporter(st store.Store) *Importer {
	return &Importer{Store: st, Log: logging.New("ingest")}
}

// ImportFile imports the JSONL file at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads JSONL records from r. Malformed lines are skipped and
// counted; only a read error or a cancelled context stops the import.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			res.Skipped++
			im.Log.Debug("skip line", "line", lineNo, "err", err)
			continue
		}

		switch v := rec.(type) {
		case store.Tenant:
			if err := im.Store.UpsertTenant(ctx, v); err != nil {
				res.Failed++
				im.Log.Warn("store tenant failed", "line", lineNo, "tenant", v.ID, "err", err)
				continue
			}
			res.Tenants++
		case store.Signal:
			if err := im.Store.InsertSignal(ctx, v); err != nil {
				res.Failed++
				im.Log.Warn("store signal failed", "line", lineNo, "signal", v.ID, "err", err)
				continue
			}
			res.Signals++
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("scan import file: %w", err)
	}

	im.Log.Info("import complete",
		"tenants", res.Tenants, "signals", res.Signals,
		"skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// parseLine returns a store.Tenant or store.Signal.
func parseLine(line []byte) (any, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, err
	}

	switch head.Kind {
	case KindTenant:
		var t store.Tenant
		if err := json.Unmarshal(line, &t); err != nil {
			return nil, err
		}
		if t.ID == "" || t.Name == "" {
			return nil, fmt.Errorf("tenant requires id and name")
		}
		return t, nil
	case KindSignal:
		var s store.Signal
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, err
		}
		if s.ID == "" || s.TenantID == "" || s.Title == "" {
			return nil, fmt.Errorf("signal requires id, tenant_id and title")
		}
		if s.CreatedAt.IsZero() {
			return nil, fmt.Errorf("signal %s has no created_at", s.ID)
		}
		s.Type = store.ParseSignalType(string(s.Type))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", head.Kind)
	}
}
