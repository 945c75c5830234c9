package search

import (
	"strings"
	"unicode"
)

// termSet is a lowercased query split into word tokens, kept with the raw
// text so multi-word or punctuated keywords can match as substrings.
type termSet struct {
	text   string
	tokens map[string]bool
}

func newTermSet(text string) termSet {
	lower := strings.ToLower(text)
	ts := termSet{text: lower, tokens: make(map[string]bool)}
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		ts.tokens[tok] = true
	}
	return ts
}

// has matches single words against whole tokens and anything else as a substring,
// so "ui" does not fire on "build" while "event log" and "t.38" still match.
func (ts termSet) has(keyword string) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return false
	}
	if isWord(kw) {
		return ts.tokens[kw]
	}
	return strings.Contains(ts.text, kw)
}

func (ts termSet) hasAny(keywords []string) bool {
	for _, kw := range keywords {
		if ts.has(kw) {
			return true
		}
	}
	return false
}

func (ts termSet) count(keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if ts.has(kw) {
			n++
		}
	}
	return n
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// ClassifyIntent returns the first intent whose keywords appear in the
// question, or the default intent.
func (r *ScoringRules) ClassifyIntent(question string) string {
	ts := newTermSet(question)
	for _, rule := range r.scoring.Intents {
		if ts.hasAny(rule.Keywords) {
			return rule.Name
		}
	}
	return r.scoring.DefaultIntent
}
