package model

// RuleType names the behavior of a cleaning rule.
type RuleType string

const (
	RuleTypeRegexReplace       RuleType = "regex_replace"
	RuleTypeValidator          RuleType = "validator"
	RuleTypeTypeCoercion       RuleType = "type_coercion"
	RuleTypeFormatStandardizer RuleType = "format_standardizer"
	RuleTypeFieldMerger        RuleType = "field_merger"
)

// Valid reports whether t is one of the known rule types.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeRegexReplace, RuleTypeValidator, RuleTypeTypeCoercion,
		RuleTypeFormatStandardizer, RuleTypeFieldMerger:
		return true
	}
	return false
}

// CleaningRule is a stored rule record as read from the rules table.
// Nil pointers mean the column was NULL.
type CleaningRule struct {
	ID          int64    `json:"id" yaml:"id"`
	Name        string   `json:"rule_name" yaml:"rule_name"`
	Type        RuleType `json:"rule_type" yaml:"rule_type"`
	Pattern     *string  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Replacement *string  `json:"replacement,omitempty" yaml:"replacement,omitempty"`
	Priority    int      `json:"priority" yaml:"priority"`
	Confidence  float64  `json:"confidence" yaml:"confidence"`
	SourceType  *string  `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	SourceName  *string  `json:"source_name,omitempty" yaml:"source_name,omitempty"`
	ColumnName  *string  `json:"column_name,omitempty" yaml:"column_name,omitempty"`
	IsActive    bool     `json:"is_active" yaml:"is_active"`
}

// Deref returns the value of a nullable column, or "" when NULL.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
