package classify

import "testing"

func TestClassify(t *testing.T) {
	c := V1()
	tests := []struct {
		action string
		want   Stance
	}{
		{"sued", Aggressive},
		{"Sued a rival", Aggressive},
		{"publicly criticized the merger", Aggressive},
		{"partnered", Collaborative},
		{"joined the consortium", Collaborative},
		{"endorsed", Collaborative},
		{"announced", Neutral},
		{"", Neutral},
		{"partnered after being sued", Aggressive},
		{"unsupported", Neutral},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.action); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.action, got, tt.want)
		}
	}
}

func TestOpposes(t *testing.T) {
	tests := []struct {
		from, to Stance
		want     bool
	}{
		{Aggressive, Collaborative, true},
		{Collaborative, Aggressive, true},
		{Aggressive, Aggressive, false},
		{Neutral, Aggressive, false},
		{Collaborative, Neutral, false},
	}
	for _, tt := range tests {
		if got := tt.from.Opposes(tt.to); got != tt.want {
			t.Errorf("%v.Opposes(%v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestFindAction(t *testing.T) {
	c := V1()
	tests := []struct {
		title, want string
	}{
		{"Globex sues Initech over patents", "sues"},
		{"Acme Corp announced a new fund, partners with Hooli", "announced"},
		{"Quarterly numbers look flat", ""},
	}
	for _, tt := range tests {
		if got := c.FindAction(tt.title); got != tt.want {
			t.Errorf("FindAction(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestVersion(t *testing.T) {
	if got := V1().Version(); got != "keywords/v1" {
		t.Errorf("Version = %q", got)
	}
	custom := NewKeywords("test/v9", []string{"Blocked"}, nil, nil)
	if custom.Classify("blocked") != Aggressive {
		t.Error("custom keywords should match case-insensitively")
	}
	if custom.Version() != "test/v9" {
		t.Errorf("custom Version = %q", custom.Version())
	}
}
