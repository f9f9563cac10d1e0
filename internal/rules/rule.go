// Package rules compiles stored cleaning rules into typed variants and
// indexes them by source and column scope.
package rules

import (
	"regexp"

	"github.com/oceanid/ingest-worker/internal/model"
)

// Rule is a compiled cleaning rule. The set of implementations is closed:
// RegexReplace, Validator, TypeCoercion, FormatStandardizer, FieldMerger
// and Inert.
type Rule interface {
	// Definition returns the stored rule this was compiled from.
	Definition() model.CleaningRule
	// Apply runs the rule against value and reports whether it fired.
	Apply(value string) (string, bool)

	sealed()
}

type base struct {
	def model.CleaningRule
}

func (b base) Definition() model.CleaningRule { return b.def }

func (base) sealed() {}

// RegexReplace replaces every match of a pattern. It fires when the value
// changes.
type RegexReplace struct {
	base
	re          *regexp.Regexp
	replacement string
}

// Apply implements Rule.
func (r RegexReplace) Apply(value string) (string, bool) {
	out := r.re.ReplaceAllString(value, r.replacement)
	return out, out != value
}

// Validator matches a pattern without changing the value. It fires when
// the pattern matches.
type Validator struct {
	base
	re *regexp.Regexp
}

// Apply implements Rule.
func (r Validator) Apply(value string) (string, bool) {
	return value, r.re.MatchString(value)
}

// TypeCoercion converts a value to a canonical date, number or boolean.
// It always fires.
type TypeCoercion struct {
	base
	spec CoercionSpec
}

// Spec returns the decoded coercion metadata.
func (r TypeCoercion) Spec() CoercionSpec { return r.spec }

// Apply implements Rule.
func (r TypeCoercion) Apply(value string) (string, bool) {
	return r.spec.Coerce(value), true
}

// FormatStandardizer applies a fixed text format. It always fires.
type FormatStandardizer struct {
	base
	spec FormatSpec
}

// Spec returns the decoded format metadata.
func (r FormatStandardizer) Spec() FormatSpec { return r.spec }

// Apply implements Rule.
func (r FormatStandardizer) Apply(value string) (string, bool) {
	return r.spec.Render(value), true
}

// FieldMerger combines columns at row level and never fires on a single cell.
type FieldMerger struct {
	base
}

// Apply implements Rule.
func (FieldMerger) Apply(value string) (string, bool) { return value, false }

// Inert stands in for a rule whose stored definition could not be compiled.
// It never fires.
type Inert struct {
	base
	Reason error
}

// Apply implements Rule.
func (Inert) Apply(value string) (string, bool) { return value, false }
