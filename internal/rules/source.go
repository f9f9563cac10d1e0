package rules

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/oceanid/ingest-worker/internal/model"
)

// FileSource reads rules from a YAML file shaped as
//
//	rules:
//	  - id: 1
//	    rule_name: trim
//	    rule_type: format_standardizer
//	    priority: 10
//	    confidence: 0.9
//	    is_active: true
//
// The file is re-read on every call so a reload picks up edits.
type FileSource struct {
	Path string
}

type ruleFile struct {
	Rules []model.CleaningRule `yaml:"rules"`
}

// ActiveRules implements Source.
func (f FileSource) ActiveRules(_ context.Context) ([]model.CleaningRule, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", f.Path)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a rule file and returns its active rules.
func ParseYAML(data []byte) ([]model.CleaningRule, error) {
	all, err := DecodeYAML(data)
	if err != nil {
		return nil, err
	}
	out := make([]model.CleaningRule, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

// DecodeYAML decodes every rule in a rule file, inactive ones included.
func DecodeYAML(data []byte) ([]model.CleaningRule, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, eris.Wrap(err, "rules: parse yaml")
	}
	return rf.Rules, nil
}

// StaticSource serves a fixed rule set.
type StaticSource []model.CleaningRule

// ActiveRules implements Source.
func (s StaticSource) ActiveRules(_ context.Context) ([]model.CleaningRule, error) {
	out := make([]model.CleaningRule, 0, len(s))
	for _, r := range s {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}
