package store

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseEvidence(t *testing.T) {
	raw := `{
		"entities_mentioned": ["Acme Corp", 42, "", "Globex"],
		"relationships": [{"entity": "Acme Corp", "related_entity": "Initech"}, "junk", {"other": 1}],
		"data_points": ["Revenue up at Hooli Labs"],
		"action": " sued ",
		"importance": "CRITICAL",
		"momentum": "Accelerating"
	}`
	got := ParseEvidence([]byte(raw))
	want := Evidence{
		EntitiesMentioned: []string{"Acme Corp", "Globex"},
		Relationships:     []Relationship{{Entity: "Acme Corp", RelatedEntity: "Initech"}},
		DataPoints:        []string{"Revenue up at Hooli Labs"},
		Action:            "sued",
		Importance:        "critical",
		Momentum:          "accelerating",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseEvidence mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEvidenceMalformed(t *testing.T) {
	inputs := []string{
		``,
		`null`,
		`"just a string"`,
		`[1,2,3]`,
		`{"entities_mentioned": "Acme", "relationships": {"entity": "x"}, "data_points": 7}`,
		`{not json`,
	}
	for _, in := range inputs {
		ev := ParseEvidence([]byte(in))
		if !ev.IsEmpty() {
			t.Errorf("ParseEvidence(%q) = %+v, want empty", in, ev)
		}
	}
}

func TestSignalJSONLenientEvidence(t *testing.T) {
	raw := `{"id":"s1","tenant_id":"t1","signal_type":"regulatory","title":"x",
		"created_at":"2026-10-01T00:00:00Z","evidence":"garbage"}`
	var s Signal
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !s.Evidence.IsEmpty() {
		t.Errorf("Evidence = %+v, want empty", s.Evidence)
	}
	if s.Type != SignalRegulatory {
		t.Errorf("Type = %q, want regulatory", s.Type)
	}
}

func TestParseSignalType(t *testing.T) {
	tests := map[string]SignalType{
		"competitive": SignalCompetitive,
		" Regulatory": SignalRegulatory,
		"narrative":   SignalNarrative,
		"stakeholder": SignalStakeholder,
		"rumor":       SignalOther,
		"":            SignalOther,
	}
	for in, want := range tests {
		if got := ParseSignalType(in); got != want {
			t.Errorf("ParseSignalType(%q) = %q, want %q", in, got, want)
		}
	}
}
