package tabular

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonAlnumRun   = regexp.MustCompile(`[^A-Z0-9]+`)
)

// columnAliases collapse known synonyms to canonical column names.
var columnAliases = map[string]string{
	"IMO_NUMBER": "IMO",
	"IMO_NO":     "IMO",
	"CALLSIGN":   "CALL_SIGN",
	"FLAG_STATE": "FLAG",
	"GT":         "GROSS_TONNAGE",
}

// NormalizeColumnName canonicalizes a header: "Imo No." becomes "IMO".
// It is idempotent.
func NormalizeColumnName(name string) string {
	n := norm.NFC.String(strings.TrimSpace(name))
	n = strings.ToUpper(whitespaceRun.ReplaceAllString(n, " "))
	n = strings.Trim(nonAlnumRun.ReplaceAllString(n, "_"), "_")
	if alias, ok := columnAliases[n]; ok {
		return alias
	}
	return n
}
