package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// nullTokens are placeholders that mean "no value".
var nullTokens = map[string]struct{}{
	"nan":  {},
	"none": {},
	"null": {},
	"n/a":  {},
	"na":   {},
}

// NormalizeValue trims v and maps null placeholders to "". It is idempotent.
func NormalizeValue(v string) string {
	v = strings.TrimSpace(v)
	if _, ok := nullTokens[strings.ToLower(v)]; ok {
		return ""
	}
	return v
}

// Similarity returns 1 - d/max(len) where d is the case-insensitive
// Levenshtein distance over runes. Equal strings score 1; an empty string
// against a non-empty one scores 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	la, lb := strings.ToLower(a), strings.ToLower(b)
	longest := max(utf8.RuneCountInString(la), utf8.RuneCountInString(lb))
	d := levenshtein.Distance(la, lb, nil)
	return 1.0 - float64(d)/float64(longest)
}
