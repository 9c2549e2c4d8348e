package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lazypower/amplifier/internal/store"
)

func TestSentiment(t *testing.T) {
	tests := []struct {
		tension, opportunity int
		want                 store.Sentiment
	}{
		{8, 8, store.SentimentNegative},
		{9, 2, store.SentimentNegative},
		{5, 8, store.SentimentPositive},
		{5, 4, store.SentimentMixed},
		{5, 6, store.SentimentMixed},
		{5, 3, store.SentimentNeutral},
		{2, 7, store.SentimentNeutral},
	}
	for _, tt := range tests {
		if got := Sentiment(tt.tension, tt.opportunity); got != tt.want {
			t.Errorf("Sentiment(%d, %d) = %q, want %q", tt.tension, tt.opportunity, got, tt.want)
		}
	}
}

func TestCompileSnapshotLevels(t *testing.T) {
	hour := time.Hour
	in := SnapshotInput{
		TenantID: "t1",
		Now:      testNow,
		Actions: []EntityAction{
			{Entity: "Globex", Action: "sued", Headline: "Globex sues", Importance: "critical", Timestamp: testNow.Add(-hour)},
			{Entity: "Initech", Action: "criticized", Headline: "Initech criticized", Importance: "high", Timestamp: testNow.Add(-2 * hour)},
			{Entity: "Hooli", Action: "partnered", Headline: "Hooli partners", Timestamp: testNow.Add(-3 * hour)},
			{Entity: "Stale Co", Action: "sued", Headline: "Old lawsuit", Importance: "critical", Timestamp: testNow.Add(-48 * hour)},
		},
		Topics: []TopicObservation{
			{Topic: "Chips", Momentum: store.MomentumAccelerating, ArticleCount: 3},
			{Topic: "Rates", Momentum: store.MomentumSteady, ArticleCount: 7},
		},
	}

	got := CompileSnapshot(in, v1())
	// tension 5 + 2*1 critical + 2 aggressive; opportunity 3 + 1 collaborative + 2*1 accelerating.
	if got.TensionLevel != 9 || got.OpportunityLevel != 6 {
		t.Errorf("levels = %d/%d, want 9/6", got.TensionLevel, got.OpportunityLevel)
	}
	if got.OverallSentiment != store.SentimentNegative {
		t.Errorf("sentiment = %q, want negative", got.OverallSentiment)
	}
	if got.SnapshotDate != "2026-10-19" {
		t.Errorf("SnapshotDate = %q", got.SnapshotDate)
	}
	if diff := cmp.Diff([]string{"Globex sues", "Initech criticized"}, got.KeyEvents); diff != "" {
		t.Errorf("KeyEvents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Globex", "Initech", "Hooli"}, got.ActiveEntities); diff != "" {
		t.Errorf("ActiveEntities mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Rates", "Chips"}, got.DominantTopics); diff != "" {
		t.Errorf("DominantTopics mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileSnapshotClamps(t *testing.T) {
	var actions []EntityAction
	for i := 0; i < 10; i++ {
		actions = append(actions, EntityAction{Entity: "Globex", Action: "sued", Importance: "critical", Timestamp: testNow})
	}
	got := CompileSnapshot(SnapshotInput{TenantID: "t1", Now: testNow, Actions: actions}, v1())
	if got.TensionLevel != 10 {
		t.Errorf("TensionLevel = %d, want clamp at 10", got.TensionLevel)
	}
	empty := CompileSnapshot(SnapshotInput{TenantID: "t1", Now: testNow}, v1())
	if empty.TensionLevel != 5 || empty.OpportunityLevel != 3 || empty.OverallSentiment != store.SentimentNeutral {
		t.Errorf("empty snapshot = %d/%d/%s, want 5/3/neutral", empty.TensionLevel, empty.OpportunityLevel, empty.OverallSentiment)
	}
}

func TestBiggestSurprise(t *testing.T) {
	surprises := []store.Surprise{
		{Entity: "A", Kind: store.SurpriseBurst, Date: testNow},
		{Entity: "B", Kind: store.SurpriseStanceShift, Date: testNow.Add(-time.Hour)},
		{Entity: "C", Kind: store.SurpriseSilenceBreak, Date: testNow.Add(-2 * time.Hour)},
		{Entity: "D", Kind: store.SurpriseSilenceBreak, Date: testNow.Add(-3 * time.Hour)},
	}
	got := biggestSurprise(surprises)
	if got == nil || got.Entity != "C" {
		t.Errorf("biggest = %+v, want C", got)
	}
	if biggestSurprise(nil) != nil {
		t.Error("biggest of none should be nil")
	}
}

func TestSnapshotCompilerCarriesSameDayFindings(t *testing.T) {
	m := newMemory()
	c := &SnapshotCompiler{Store: m, Classifier: v1(), Timeout: time.Second, Log: testLogger()}
	ctx := context.Background()
	surprise := store.Surprise{Entity: "Globex", Kind: store.SurpriseBurst, Date: testNow}
	shift := store.NarrativeShift{Narrative: "Rates", Shift: "New narrative detected", Significance: "medium"}

	if _, err := c.Write(ctx, SnapshotInput{TenantID: "t1", Now: testNow, Surprises: []store.Surprise{surprise}, Shifts: []store.NarrativeShift{shift}}); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	snap, err := c.Write(ctx, SnapshotInput{TenantID: "t1", Now: testNow.Add(time.Hour)})
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if len(m.snapshots) != 1 {
		t.Errorf("snapshots stored = %d, want 1", len(m.snapshots))
	}
	if snap.SurpriseCount != 1 || len(snap.NarrativeShifts) != 1 {
		t.Errorf("re-run snapshot lost findings: %+v", snap)
	}

	next, err := c.Write(ctx, SnapshotInput{TenantID: "t1", Now: testNow.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("next-day Write: %v", err)
	}
	if next.SurpriseCount != 0 || len(m.snapshots) != 2 {
		t.Errorf("next day carried %d surprises across %d snapshots", next.SurpriseCount, len(m.snapshots))
	}
}
