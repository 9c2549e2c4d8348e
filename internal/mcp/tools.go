package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lazypower/amplifier/internal/extract"
	"github.com/lazypower/amplifier/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

type ListAmplifiedInput struct {
	MinScore int `json:"min_score,omitempty" jsonschema:"minimum amplification score, 0 to 100"`
	Limit    int `json:"limit,omitempty" jsonschema:"maximum number of entities to return"`
}

type GetAmplificationInput struct {
	Entity string `json:"entity" jsonschema:"entity name, matched after normalization"`
}

type GetSnapshotsInput struct {
	TenantID string `json:"tenant_id" jsonschema:"tenant id"`
	From     string `json:"from,omitempty" jsonschema:"first day to include, YYYY-MM-DD"`
	To       string `json:"to,omitempty" jsonschema:"last day to include, YYYY-MM-DD"`
}

type GetEntityMemoryInput struct {
	TenantID string `json:"tenant_id" jsonschema:"tenant id"`
	Entity   string `json:"entity,omitempty" jsonschema:"entity name; omit to list every tracked entity"`
}

type AmplificationOutput struct {
	Entity         string   `json:"entity"`
	Key            string   `json:"key"`
	Type           string   `json:"type"`
	TenantCount    int      `json:"tenant_count"`
	SignalCount    int      `json:"signal_count"`
	SignalsLast24h int      `json:"signals_last_24h"`
	SignalsLast7d  int      `json:"signals_last_7d"`
	Score          int      `json:"amplification_score"`
	Velocity       float64  `json:"velocity_score"`
	Industries     []string `json:"industries"`
	FirstSignalAt  string   `json:"first_signal_at"`
	LatestSignalAt string   `json:"latest_signal_at"`
	Insight        string   `json:"insight,omitempty"`
}

type ListAmplifiedOutput struct {
	Entities []AmplificationOutput `json:"entities"`
}

type SurpriseOutput struct {
	Entity        string `json:"entity"`
	Kind          string `json:"kind"`
	Expected      string `json:"expected"`
	Actual        string `json:"actual"`
	WhySurprising string `json:"why_surprising"`
	Date          string `json:"date"`
}

type ShiftOutput struct {
	Narrative    string `json:"narrative"`
	Shift        string `json:"shift"`
	Significance string `json:"significance"`
}

type SnapshotOutput struct {
	Date              string           `json:"date"`
	KeyEvents         []string         `json:"key_events"`
	ActiveEntities    []string         `json:"active_entities"`
	DominantTopics    []string         `json:"dominant_topics"`
	BehavioralChanges []SurpriseOutput `json:"behavioral_changes"`
	NarrativeShifts   []ShiftOutput    `json:"narrative_shifts"`
	SurpriseCount     int              `json:"surprise_count"`
	BiggestSurprise   *SurpriseOutput  `json:"biggest_surprise,omitempty"`
	TensionLevel      int              `json:"tension_level"`
	OpportunityLevel  int              `json:"opportunity_level"`
	Sentiment         string           `json:"overall_sentiment"`
}

type GetSnapshotsOutput struct {
	TenantID  string           `json:"tenant_id"`
	Snapshots []SnapshotOutput `json:"snapshots"`
}

type UnusualOutput struct {
	Date    string `json:"date"`
	Action  string `json:"action"`
	Context string `json:"context"`
}

type EntityMemoryOutput struct {
	Entity                string          `json:"entity"`
	Key                   string          `json:"key"`
	Type                  string          `json:"type"`
	LastSeen              string          `json:"last_seen"`
	TypicalBehavior       string          `json:"typical_behavior"`
	LastSignificantAction string          `json:"last_significant_action"`
	LastSignificantDate   string          `json:"last_significant_date"`
	UnusualBehaviors      []UnusualOutput `json:"unusual_behaviors"`
}

type GetEntityMemoryOutput struct {
	TenantID string               `json:"tenant_id"`
	Entities []EntityMemoryOutput `json:"entities"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_amplified_entities",
		Description: "List entities tracked by several organizations, highest amplification first",
	}, s.handleListAmplified)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_amplification",
		Description: "Return the cross-organization aggregate for one entity",
	}, s.handleGetAmplification)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_snapshots",
		Description: "Return a tenant's daily intelligence snapshots, newest first",
	}, s.handleGetSnapshots)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_entity_memory",
		Description: "Return a tenant's behavioral baselines and unusual behavior log",
	}, s.handleGetEntityMemory)
}

func (s *Server) handleListAmplified(ctx context.Context, req *sdk.CallToolRequest, input ListAmplifiedInput) (*sdk.CallToolResult, ListAmplifiedOutput, error) {
	if input.MinScore < 0 || input.MinScore > 100 {
		return nil, ListAmplifiedOutput{}, fmt.Errorf("min_score must be between 0 and 100")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := s.db.ListAmplifications(ctx, input.MinScore, limit)
	if err != nil {
		return nil, ListAmplifiedOutput{}, err
	}
	out := make([]AmplificationOutput, 0, len(rows))
	for _, r := range rows {
		out = append(out, amplificationOutput(r))
	}
	return nil, ListAmplifiedOutput{Entities: out}, nil
}

func (s *Server) handleGetAmplification(ctx context.Context, req *sdk.CallToolRequest, input GetAmplificationInput) (*sdk.CallToolResult, AmplificationOutput, error) {
	key := extract.Normalize(input.Entity)
	if key == "" {
		return nil, AmplificationOutput{}, fmt.Errorf("entity is required")
	}
	row, err := s.db.GetAmplification(ctx, key)
	if err != nil {
		return nil, AmplificationOutput{}, err
	}
	if row == nil {
		return nil, AmplificationOutput{}, fmt.Errorf("entity %q is not amplified", input.Entity)
	}
	return nil, amplificationOutput(*row), nil
}

func (s *Server) handleGetSnapshots(ctx context.Context, req *sdk.CallToolRequest, input GetSnapshotsInput) (*sdk.CallToolResult, GetSnapshotsOutput, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return nil, GetSnapshotsOutput{}, fmt.Errorf("tenant_id is required")
	}
	from, err := parseDate(input.From)
	if err != nil {
		return nil, GetSnapshotsOutput{}, fmt.Errorf("from: %w", err)
	}
	to, err := parseDate(input.To)
	if err != nil {
		return nil, GetSnapshotsOutput{}, fmt.Errorf("to: %w", err)
	}

	snaps, err := s.db.ListSnapshots(ctx, input.TenantID, from, to)
	if err != nil {
		return nil, GetSnapshotsOutput{}, err
	}
	out := make([]SnapshotOutput, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, snapshotOutput(sn))
	}
	return nil, GetSnapshotsOutput{TenantID: input.TenantID, Snapshots: out}, nil
}

func (s *Server) handleGetEntityMemory(ctx context.Context, req *sdk.CallToolRequest, input GetEntityMemoryInput) (*sdk.CallToolResult, GetEntityMemoryOutput, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return nil, GetEntityMemoryOutput{}, fmt.Errorf("tenant_id is required")
	}

	var entities []store.TrackedEntity
	if input.Entity != "" {
		key := extract.Normalize(input.Entity)
		e, err := s.db.GetTrackedEntity(ctx, input.TenantID, key)
		if err != nil {
			return nil, GetEntityMemoryOutput{}, err
		}
		if e == nil {
			return nil, GetEntityMemoryOutput{}, fmt.Errorf("entity %q is not tracked for tenant %s", input.Entity, input.TenantID)
		}
		entities = append(entities, *e)
	} else {
		var err error
		entities, err = s.db.ListTrackedEntities(ctx, input.TenantID)
		if err != nil {
			return nil, GetEntityMemoryOutput{}, err
		}
	}

	out := make([]EntityMemoryOutput, 0, len(entities))
	for _, e := range entities {
		out = append(out, entityMemoryOutput(e))
	}
	s.log.Debug("entity memory served", "tenant", input.TenantID, "entities", len(out))
	return nil, GetEntityMemoryOutput{TenantID: input.TenantID, Entities: out}, nil
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(store.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", v)
	}
	return t, nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func amplificationOutput(a store.EntityAmplification) AmplificationOutput {
	out := AmplificationOutput{
		Entity:         a.EntityName,
		Key:            a.EntityNormalized,
		Type:           string(a.EntityType),
		TenantCount:    a.TenantCount,
		SignalCount:    a.SignalCount,
		SignalsLast24h: a.SignalsLast24h,
		SignalsLast7d:  a.SignalsLast7d,
		Score:          a.AmplificationScore,
		Velocity:       a.VelocityScore,
		Industries:     nonNil(a.Industries),
		FirstSignalAt:  stamp(a.FirstSignalAt),
		LatestSignalAt: stamp(a.LatestSignalAt),
	}
	if a.InsightSummary != nil {
		out.Insight = *a.InsightSummary
	}
	return out
}

func surpriseOutput(s store.Surprise) SurpriseOutput {
	return SurpriseOutput{
		Entity:        s.Entity,
		Kind:          string(s.Kind),
		Expected:      s.Expected,
		Actual:        s.Actual,
		WhySurprising: s.WhySurprising,
		Date:          stamp(s.Date),
	}
}

func snapshotOutput(sn store.IntelligenceSnapshot) SnapshotOutput {
	out := SnapshotOutput{
		Date:              sn.SnapshotDate,
		KeyEvents:         nonNil(sn.KeyEvents),
		ActiveEntities:    nonNil(sn.ActiveEntities),
		DominantTopics:    nonNil(sn.DominantTopics),
		BehavioralChanges: make([]SurpriseOutput, 0, len(sn.BehavioralChanges)),
		NarrativeShifts:   make([]ShiftOutput, 0, len(sn.NarrativeShifts)),
		SurpriseCount:     sn.SurpriseCount,
		TensionLevel:      sn.TensionLevel,
		OpportunityLevel:  sn.OpportunityLevel,
		Sentiment:         string(sn.OverallSentiment),
	}
	for _, s := range sn.BehavioralChanges {
		out.BehavioralChanges = append(out.BehavioralChanges, surpriseOutput(s))
	}
	for _, sh := range sn.NarrativeShifts {
		out.NarrativeShifts = append(out.NarrativeShifts, ShiftOutput(sh))
	}
	if sn.BiggestSurprise != nil {
		b := surpriseOutput(*sn.BiggestSurprise)
		out.BiggestSurprise = &b
	}
	return out
}

func entityMemoryOutput(e store.TrackedEntity) EntityMemoryOutput {
	out := EntityMemoryOutput{
		Entity:                e.EntityName,
		Key:                   e.EntityKey,
		Type:                  string(e.EntityType),
		LastSeen:              stamp(e.LastSeen),
		TypicalBehavior:       e.TypicalBehavior,
		LastSignificantAction: e.LastSignificantAction,
		LastSignificantDate:   stamp(e.LastSignificantDate),
		UnusualBehaviors:      make([]UnusualOutput, 0, len(e.UnusualBehaviors)),
	}
	for _, ub := range e.UnusualBehaviors {
		out.UnusualBehaviors = append(out.UnusualBehaviors, UnusualOutput{
			Date:    stamp(ub.Date),
			Action:  ub.Action,
			Context: ub.Context,
		})
	}
	return out
}
