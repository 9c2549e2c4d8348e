// Package classify buckets short action phrases into stances. Bucket
// definitions are versioned so stored baselines can be traced back to the
// keyword set that produced them.
package classify

import (
	"strings"
	"unicode"
)

// Stance is the bucket an action falls into.
type Stance int

const (
	Neutral Stance = iota
	Aggressive
	Collaborative
)

func (s Stance) String() string {
	switch s {
	case Aggressive:
		return "aggressive"
	case Collaborative:
		return "collaborative"
	default:
		return "neutral"
	}
}

// Opposes reports whether a move from s to other crosses between the
// aggressive and collaborative buckets. Neutral opposes nothing.
func (s Stance) Opposes(other Stance) bool {
	return (s == Aggressive && other == Collaborative) || (s == Collaborative && other == Aggressive)
}

// Classifier maps action text to a Stance.
type Classifier interface {
	// Version identifies the bucket definitions, e.g. "keywords/v1".
	Version() string
	// Classify returns the stance of an action phrase.
	Classify(action string) Stance
	// FindAction returns the first known action keyword in text, or "".
	FindAction(text string) string
}

// Keywords is a Classifier backed by static word lists. Aggressive words are
// checked before collaborative ones, so a phrase containing both is aggressive.
type Keywords struct {
	version       string
	aggressive    map[string]bool
	collaborative map[string]bool
	neutral       map[string]bool
}

// NewKeywords builds a keyword classifier. neutral words carry no stance but
// are still recognized by FindAction.
func NewKeywords(version string, aggressive, collaborative, neutral []string) *Keywords {
	return &Keywords{
		version:       version,
		aggressive:    wordSet(aggressive),
		collaborative: wordSet(collaborative),
		neutral:       wordSet(neutral),
	}
}

// V1 is the keyword set the engine ships with.
func V1() *Keywords {
	return NewKeywords("keywords/v1",
		[]string{"sued", "sues", "sue", "attacked", "attacks", "criticized", "criticizes",
			"opposed", "opposes", "lawsuit", "challenged", "blocked", "fined", "condemned"},
		[]string{"partnered", "partners", "joined", "joins", "supported", "supports",
			"endorsed", "endorses", "collaborated", "allied"},
		[]string{"announced", "announces", "launched", "launches", "acquired", "acquires",
			"released", "hired", "expanded", "filed", "reported", "invested", "appointed"},
	)
}

func (k *Keywords) Version() string { return k.version }

func (k *Keywords) Classify(action string) Stance {
	words := tokenize(action)
	for _, w := range words {
		if k.aggressive[w] {
			return Aggressive
		}
	}
	for _, w := range words {
		if k.collaborative[w] {
			return Collaborative
		}
	}
	return Neutral
}

func (k *Keywords) FindAction(text string) string {
	for _, w := range tokenize(text) {
		if k.aggressive[w] || k.collaborative[w] || k.neutral[w] {
			return w
		}
	}
	return ""
}

func wordSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = true
	}
	return m
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
