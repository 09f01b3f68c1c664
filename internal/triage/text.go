package triage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// fold lowercases s with Spanish casing rules. A Caser keeps state, so one
// is built per call.
func fold(s string) string {
	return cases.Lower(language.Spanish).String(s)
}

// containsAny reports whether text contains any of the markers. Matching is
// plain substring search: no tokenization or stemming, so a marker embedded in
// an unrelated word still matches.
func containsAny(text string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// join concatenates the non-empty parts with a single space and folds the
// result.
func join(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return fold(strings.Join(kept, " "))
}
