// Package extract pulls entity mentions out of signals and reduces them to
// canonical keys. Extraction is heuristic and never fails.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/lazypower/amplifier/internal/store"
)

// Entities returns the distinct entity display names mentioned by sig, in
// source order: primary target, evidence mentions, relationship endpoints,
// capitalized phrases in data points, then organization-like phrases in the
// title. The first display form of each normalized key wins.
func Entities(sig store.Signal) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		key := Normalize(name)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, name)
	}

	add(sig.PrimaryTargetName)
	for _, name := range sig.Evidence.EntitiesMentioned {
		add(name)
	}
	for _, rel := range sig.Evidence.Relationships {
		add(rel.Entity)
		add(rel.RelatedEntity)
	}
	for _, dp := range sig.Evidence.DataPoints {
		for _, phrase := range CapitalizedPhrases(dp) {
			add(phrase)
		}
	}
	for _, phrase := range CapitalizedPhrases(sig.Title) {
		if LikelyOrganization(phrase) {
			add(phrase)
		}
	}
	return out
}

// Normalize lowercases s, strips every rune that is not a letter, digit,
// underscore or space, and collapses whitespace. Normalize is idempotent.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var capitalizedRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9&'-]*(?:\s+[A-Z][A-Za-z0-9&'-]*)*`)

var stopWords = wordSet(
	"the", "a", "an", "and", "or", "of", "in", "on", "at", "for", "to", "by", "with",
	"this", "that", "new", "after", "before", "as", "is", "it", "its", "our", "we",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
	"inc", "corp", "ltd", "llc", "company", "group", "ceo", "cfo", "q1", "q2", "q3", "q4",
)

// CapitalizedPhrases returns runs of Title-Case tokens in text. Leading
// stop words are dropped, phrases made only of stop words are discarded, and
// the result must be longer than two characters.
func CapitalizedPhrases(text string) []string {
	var out []string
	for _, m := range capitalizedRe.FindAllString(text, -1) {
		words := strings.Fields(m)
		for len(words) > 0 && stopWords[strings.ToLower(words[0])] {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		phrase := strings.Join(words, " ")
		if len(phrase) <= 2 {
			continue
		}
		out = append(out, phrase)
	}
	return out
}

var (
	legalSuffixRe   = regexp.MustCompile(`(?i)\b(inc|corp|corporation|ltd|llc|plc|group|holdings|co|gmbh|ag|sa)\b`)
	sectorKeywordRe = regexp.MustCompile(`(?i)\b(technologies|technology|labs|capital|partners|systems|solutions|bank|energy|ventures|networks|software|analytics|pharma|therapeutics)\b`)
)

// LikelyOrganization reports whether a title phrase looks like an
// organization name: it carries a legal suffix or sector keyword, or it is
// short enough (three words or fewer) to be a bare name.
func LikelyOrganization(phrase string) bool {
	if legalSuffixRe.MatchString(phrase) || sectorKeywordRe.MatchString(phrase) {
		return true
	}
	return len(strings.Fields(phrase)) <= 3
}

var regulatorRe = regexp.MustCompile(`\b(?:SEC|FTC|FDA|FCC|EPA|CFPB|DOJ|FINRA|OCC|ESMA|FCA)\b|(?i:\b(?:commission|authority|agency|department|regulator|ministry|bureau)\b)`)

var personRe = regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+$`)

// InferType classifies an entity name for display. Regulator keywords win,
// then a "First Last" shape, then the context of a regulatory signal.
// Everything else is a company.
func InferType(name string, st store.SignalType) store.EntityType {
	name = strings.TrimSpace(name)
	switch {
	case regulatorRe.MatchString(name):
		return store.EntityRegulator
	case personRe.MatchString(name) && !legalSuffixRe.MatchString(name) && !sectorKeywordRe.MatchString(name):
		return store.EntityPerson
	case st == store.SignalRegulatory:
		return store.EntityRegulator
	default:
		return store.EntityCompany
	}
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
