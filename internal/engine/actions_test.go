package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lazypower/amplifier/internal/store"
)

func TestDeriveActions(t *testing.T) {
	signals := []store.ActiveSignal{
		signal("s3", "t1", time.Hour, "Globex partners with Hooli", "Globex", store.Evidence{}),
		signal("s1", "t1", 3*time.Hour, "Filing", "Globex", store.Evidence{Action: "sued", Importance: "critical"}),
		signal("s2", "t1", 2*time.Hour, "Quiet quarter", "Initech", store.Evidence{}),
		signal("s4", "t1", 30*time.Minute, "Hooli announced layoffs", "", store.Evidence{}),
	}

	got := DeriveActions(signals, v1())
	want := []EntityAction{
		{Entity: "Globex", EntityType: store.EntityCompany, Action: "sued", Headline: "Filing",
			Importance: "critical", Timestamp: testNow.Add(-3 * time.Hour), SignalID: "s1"},
		{Entity: "Globex", EntityType: store.EntityCompany, Action: "partners", Headline: "Globex partners with Hooli",
			Timestamp: testNow.Add(-time.Hour), SignalID: "s3"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DeriveActions mismatch (-want +got):\n%s", diff)
	}
}

func TestDeriveTopics(t *testing.T) {
	day := 24 * time.Hour
	narrative := signal("n1", "t1", 2*day, "AI Regulation Debate", "", store.Evidence{})
	narrative.Type = store.SignalNarrative

	signals := []store.ActiveSignal{
		signal("a1", "t1", 20*day, "Old chip news", "", store.Evidence{Topic: "Chip Shortage"}),
		signal("a2", "t1", 3*day, "Fabs idle", "", store.Evidence{Topic: "chip shortage"}),
		signal("a3", "t1", day, "Automakers cut output", "", store.Evidence{Topic: "Chip Shortage", Category: "supply"}),
		signal("b1", "t1", day, "Rates hold", "", store.Evidence{Topic: "Rates", Momentum: "steady"}),
		narrative,
		signal("x1", "t1", day, "No topic here", "", store.Evidence{}),
	}

	got := DeriveTopics(signals, testNow, 30)
	want := []TopicObservation{
		{Topic: "AI Regulation Debate", Momentum: store.MomentumAccelerating,
			Headlines: []string{"AI Regulation Debate"}, ArticleCount: 1, Category: "narrative"},
		{Topic: "Chip Shortage", Momentum: store.MomentumAccelerating,
			Headlines: []string{"Automakers cut output", "Fabs idle", "Old chip news"}, ArticleCount: 3, Category: "supply"},
		{Topic: "Rates", Momentum: store.MomentumSteady,
			Headlines: []string{"Rates hold"}, ArticleCount: 1, Category: "competitive"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DeriveTopics mismatch (-want +got):\n%s", diff)
	}
}

func TestDeriveTopicsSteadyWhenOlderWindowBusier(t *testing.T) {
	day := 24 * time.Hour
	var signals []store.ActiveSignal
	for i := 0; i < 12; i++ {
		signals = append(signals, signal("old", "t1", time.Duration(10+i)*day, "x", "", store.Evidence{Topic: "Energy"}))
	}
	signals = append(signals, signal("new", "t1", day, "y", "", store.Evidence{Topic: "Energy"}))

	got := DeriveTopics(signals, testNow, 30)
	if len(got) != 1 || got[0].Momentum != store.MomentumSteady {
		t.Errorf("topics = %+v, want one steady topic", got)
	}
	if len(got[0].Headlines) != maxTopicHeadlines {
		t.Errorf("headlines = %d, want %d", len(got[0].Headlines), maxTopicHeadlines)
	}
}
