// Package ruleengine evaluates an ordered rule list against a transaction
// description. It is pure: no I/O, no state.
//
// Evaluation is first-match-wins. Rules are tried in the order given (the
// rule store returns tenant rules before global ones, each in creation
// order); the first rule whose side admits the transaction and whose pattern
// matches the normalized description decides the result.
package ruleengine

import (
	"strings"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/rules"
)

// DefaultConfidence is reported for a match when the rule carries none.
const DefaultConfidence = 0.9

// NormalizeDescription lowercases s, keeps letters, digits, spaces and the
// punctuation common in bank narrations (/ - . & @ # : _ *), and collapses
// whitespace.
func NormalizeDescription(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("/-.&@#:_*", r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Categorize classifies a movement against rules. When nothing matches it
// returns domain.Unclassified().
func Categorize(description string, credit, debit float64, rs []rules.Compiled) domain.ClassificationResult {
	side := domain.SideOf(credit, debit)
	desc := NormalizeDescription(description)

	for _, r := range rs {
		if r.Side != domain.SideAny && r.Side != "" && r.Side != side {
			continue
		}
		if r.Matcher == nil || !r.Matcher.MatchString(desc) {
			continue
		}
		return resultFor(r.Rule)
	}
	return domain.Unclassified()
}

func resultFor(r domain.Rule) domain.ClassificationResult {
	res := domain.ClassificationResult{
		Category:    r.Category,
		SubCategory: r.SubCategory,
		Reason:      r.Reason,
		Confidence:  DefaultConfidence,
		TaggedBy:    r.TaggedBy,
	}
	if r.Confidence != nil {
		res.Confidence = *r.Confidence
	}
	if res.Reason == "" {
		res.Reason = "matched rule " + r.Pattern.String()
	}
	if res.TaggedBy == "" {
		res.TaggedBy = domain.TaggedByRuleEngine
	}
	return res
}
