package store

import (
	"encoding/json"
	"strings"
	"time"
)

// SignalType classifies what kind of observation a signal records.
type SignalType string

const (
	SignalCompetitive SignalType = "competitive"
	SignalRegulatory  SignalType = "regulatory"
	SignalNarrative   SignalType = "narrative"
	SignalStakeholder SignalType = "stakeholder"
	SignalOther       SignalType = "other"
)

// ParseSignalType maps free text onto a SignalType. Unknown values become "other".
func ParseSignalType(s string) SignalType {
	switch t := SignalType(strings.ToLower(strings.TrimSpace(s))); t {
	case SignalCompetitive, SignalRegulatory, SignalNarrative, SignalStakeholder:
		return t
	default:
		return SignalOther
	}
}

// EntityType is the display classification of an extracted entity.
type EntityType string

const (
	EntityCompany   EntityType = "company"
	EntityPerson    EntityType = "person"
	EntityRegulator EntityType = "regulator"
)

// Relationship links two entity names mentioned together in evidence.
type Relationship struct {
	Entity        string `json:"entity"`
	RelatedEntity string `json:"related_entity"`
}

// Evidence is the loosely shaped bag attached to a signal. Every field is
// optional; a nil slice or empty string means the field was absent or
// unusable in the source document.
type Evidence struct {
	EntitiesMentioned []string       `json:"entities_mentioned,omitempty"`
	Relationships     []Relationship `json:"relationships,omitempty"`
	DataPoints        []string       `json:"data_points,omitempty"`

	Action     string `json:"action,omitempty"`
	Importance string `json:"importance,omitempty"` // critical, high, medium, low
	Topic      string `json:"topic,omitempty"`
	Momentum   string `json:"momentum,omitempty"` // steady, accelerating
	Category   string `json:"category,omitempty"`
}

// ParseEvidence decodes raw evidence JSON. It never fails: a document that is
// not an object yields empty Evidence, and each field that has an unexpected
// shape is treated as absent.
func ParseEvidence(raw []byte) Evidence {
	var ev Evidence
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil {
		return ev
	}

	ev.EntitiesMentioned = stringList(fields["entities_mentioned"])
	ev.DataPoints = stringList(fields["data_points"])
	ev.Relationships = relationshipList(fields["relationships"])
	ev.Action = stringField(fields["action"])
	ev.Importance = strings.ToLower(stringField(fields["importance"]))
	ev.Topic = stringField(fields["topic"])
	ev.Momentum = strings.ToLower(stringField(fields["momentum"]))
	ev.Category = stringField(fields["category"])
	return ev
}

// UnmarshalJSON applies the lenient ParseEvidence rules.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	*e = ParseEvidence(data)
	return nil
}

// IsEmpty reports whether no evidence field carries data.
func (e Evidence) IsEmpty() bool {
	return len(e.EntitiesMentioned) == 0 && len(e.Relationships) == 0 && len(e.DataPoints) == 0 &&
		e.Action == "" && e.Importance == "" && e.Topic == "" && e.Momentum == "" && e.Category == ""
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := stringField(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func relationshipList(raw json.RawMessage) []Relationship {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []Relationship
	for _, item := range items {
		var fields map[string]json.RawMessage
		if json.Unmarshal(item, &fields) != nil {
			continue
		}
		rel := Relationship{
			Entity:        stringField(fields["entity"]),
			RelatedEntity: stringField(fields["related_entity"]),
		}
		if rel.Entity == "" && rel.RelatedEntity == "" {
			continue
		}
		out = append(out, rel)
	}
	return out
}

// Signal is an immutable observed event scoped to one tenant.
type Signal struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	Type              SignalType `json:"signal_type"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	PrimaryTargetName string     `json:"primary_target_name,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	Evidence          Evidence   `json:"evidence"`
}

// Tenant is an organization using the platform.
type Tenant struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Industry *string `json:"industry,omitempty"`
}

// IndustryOrEmpty returns the tenant's industry, or "" when unset.
func (t Tenant) IndustryOrEmpty() string {
	if t.Industry == nil {
		return ""
	}
	return *t.Industry
}

// ActiveSignal is a signal joined with its owning tenant.
type ActiveSignal struct {
	Signal
	Tenant Tenant
}

// UnusualBehavior is one entry of a tracked entity's surprise log.
type UnusualBehavior struct {
	Date    time.Time `json:"date"`
	Action  string    `json:"action"`
	Context string    `json:"context"`
}

// TrackedEntity is the behavioral baseline for one (tenant, entity) pair.
// EntityKey is the normalized entity name and, with TenantID, the row key.
type TrackedEntity struct {
	TenantID              string
	EntityKey             string
	EntityName            string
	EntityType            EntityType
	LastSeen              time.Time
	LastSignificantAction string
	LastSignificantDate   time.Time
	// LastSignalID with LastSignificantDate marks the newest applied action.
	LastSignalID     string
	TypicalBehavior  string
	UnusualBehaviors []UnusualBehavior
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Phase is the lifecycle stage of a tracked narrative.
type Phase string

const (
	PhaseEmerging     Phase = "emerging"
	PhaseAccelerating Phase = "accelerating"
	PhaseActive       Phase = "active"
	PhasePeak         Phase = "peak"
	PhaseDeclining    Phase = "declining"
)

// NarrativeStatus marks whether a narrative is still tracked.
type NarrativeStatus string

const (
	NarrativeActive NarrativeStatus = "active"
	NarrativeClosed NarrativeStatus = "closed"
)

// Momentum values carried by topic observations.
const (
	MomentumSteady       = "steady"
	MomentumAccelerating = "accelerating"
)

// TimelineEntry is one run's observation of a narrative. Date is YYYY-MM-DD.
type TimelineEntry struct {
	Date         string   `json:"date"`
	Momentum     string   `json:"momentum"`
	Headlines    []string `json:"headlines"`
	ArticleCount int      `json:"article_count"`
}

// TrackedNarrative is the timeline of one (tenant, topic) pair.
// NarrativeKey is the normalized title and, with TenantID, the row key.
type TrackedNarrative struct {
	TenantID       string
	NarrativeKey   string
	NarrativeTitle string
	NarrativeType  string
	OriginDate     time.Time
	OriginEvent    string
	CurrentPhase   Phase
	Timeline       []TimelineEntry
	Status         NarrativeStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntityAmplification is the cross-tenant aggregate for one normalized entity.
// It carries counts and tenant ids only, never tenant content.
type EntityAmplification struct {
	EntityNormalized   string     `json:"entity_normalized"`
	EntityName         string     `json:"entity_name"`
	EntityType         EntityType `json:"entity_type"`
	TenantCount        int        `json:"tenant_count"`
	TenantIDs          []string   `json:"tenant_ids"`
	SignalCount        int        `json:"signal_count"`
	SignalsLast24h     int        `json:"signals_last_24h"`
	SignalsLast7d      int        `json:"signals_last_7d"`
	AmplificationScore int        `json:"amplification_score"`
	VelocityScore      float64    `json:"velocity_score"`
	Industries         []string   `json:"industries"`
	FirstSignalAt      time.Time  `json:"first_signal_at"`
	LatestSignalAt     time.Time  `json:"latest_signal_at"`
	InsightSummary     *string    `json:"insight_summary,omitempty"`
	ComputedAt         time.Time  `json:"computed_at"`
}

// SurpriseKind names which rule flagged a surprise.
type SurpriseKind string

const (
	SurpriseSilenceBreak SurpriseKind = "silence_break"
	SurpriseBurst        SurpriseKind = "burst"
	SurpriseStanceShift  SurpriseKind = "stance_shift"
)

// Surprise is a deviation between an entity's baseline and a new action.
type Surprise struct {
	Entity        string       `json:"entity"`
	Kind          SurpriseKind `json:"kind"`
	Expected      string       `json:"expected"`
	Actual        string       `json:"actual"`
	WhySurprising string       `json:"why_surprising"`
	Date          time.Time    `json:"date"`
}

// NarrativeShift records a phase transition or a newly detected narrative.
type NarrativeShift struct {
	Narrative    string `json:"narrative"`
	Shift        string `json:"shift"`
	Significance string `json:"significance"`
}

// Sentiment is the overall tone of a tenant's snapshot.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// IntelligenceSnapshot is one tenant's daily rollup. SnapshotDate is YYYY-MM-DD.
type IntelligenceSnapshot struct {
	TenantID          string           `json:"tenant_id"`
	SnapshotDate      string           `json:"snapshot_date"`
	KeyEvents         []string         `json:"key_events"`
	ActiveEntities    []string         `json:"active_entities"`
	DominantTopics    []string         `json:"dominant_topics"`
	BehavioralChanges []Surprise       `json:"behavioral_changes"`
	NarrativeShifts   []NarrativeShift `json:"narrative_shifts"`
	SurpriseCount     int              `json:"surprise_count"`
	BiggestSurprise   *Surprise        `json:"biggest_surprise,omitempty"`
	TensionLevel      int              `json:"tension_level"`
	OpportunityLevel  int              `json:"opportunity_level"`
	OverallSentiment  Sentiment        `json:"overall_sentiment"`
	CreatedAt         time.Time        `json:"created_at"`
}

// DateLayout is the layout of snapshot and timeline dates.
const DateLayout = "2006-01-02"
