package automation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks so "não" and "nao" compare equal.
// Trigger content is Portuguese; operators type keywords with and without
// accents interchangeably.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize prepares message text and triggers for comparison: trim,
// lowercase, fold diacritics.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		return text
	}
	return folded
}

// ContainsTrigger reports whether the normalized message contains any of
// the given triggers (themselves normalized before comparison).
func ContainsTrigger(message string, triggers []string) bool {
	normalized := Normalize(message)
	for _, trigger := range triggers {
		t := Normalize(trigger)
		if t == "" {
			continue
		}
		if strings.Contains(normalized, t) {
			return true
		}
	}
	return false
}
