package rules

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// CoercionType names the target type of a TypeCoercion rule.
type CoercionType string

// Supported coercion targets.
const (
	CoerceDate    CoercionType = "date"
	CoerceNumber  CoercionType = "number"
	CoerceBoolean CoercionType = "boolean"
)

// CoercionSpec is the decoded metadata of a TypeCoercion rule.
type CoercionSpec struct {
	Type CoercionType `json:"type"`
}

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var nonNumeric = regexp.MustCompile(`[^0-9.-]`)

// Coerce converts value to the spec's type. Values that cannot be
// converted are returned unchanged.
func (s CoercionSpec) Coerce(value string) string {
	switch s.Type {
	case CoerceDate:
		v := strings.TrimSpace(value)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Format("2006-01-02")
			}
		}
		return value
	case CoerceNumber:
		return nonNumeric.ReplaceAllString(value, "")
	case CoerceBoolean:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "yes", "y", "true", "1":
			return "true"
		case "no", "n", "false", "0":
			return "false"
		}
		return value
	default:
		return value
	}
}

// FormatKind names a text format applied by a FormatStandardizer rule.
type FormatKind string

// Supported formats. An empty or unknown kind behaves as FormatTrim.
const (
	FormatUppercase        FormatKind = "uppercase"
	FormatLowercase        FormatKind = "lowercase"
	FormatTrim             FormatKind = "trim"
	FormatRemoveQuotes     FormatKind = "remove_quotes"
	FormatRemoveSpecial    FormatKind = "remove_special"
	FormatNormalizeUnicode FormatKind = "normalize_unicode"
)

// FormatSpec is the decoded metadata of a FormatStandardizer rule.
type FormatSpec struct {
	Format FormatKind `json:"format"`
}

// special matches anything but letters (with their combining marks),
// digits, whitespace, dots and hyphens.
var special = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s.-]`)

// Render applies the format to value.
func (s FormatSpec) Render(value string) string {
	switch s.Format {
	case FormatUppercase:
		return strings.ToUpper(value)
	case FormatLowercase:
		return strings.ToLower(value)
	case FormatRemoveQuotes:
		return strings.Trim(value, `"'`)
	case FormatRemoveSpecial:
		return special.ReplaceAllString(value, "")
	case FormatNormalizeUnicode:
		return norm.NFC.String(value)
	default:
		return strings.TrimSpace(value)
	}
}

// decodeSpec unmarshals optional JSON rule metadata into dst. A nil or
// blank pattern leaves dst at its zero value.
func decodeSpec(pattern *string, dst any) error {
	if pattern == nil || strings.TrimSpace(*pattern) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(*pattern), dst); err != nil {
		return eris.Wrap(err, "rules: decode metadata")
	}
	return nil
}
