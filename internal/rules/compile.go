package rules

import (
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/model"
)

// Compile turns a stored rule into its typed variant. Regexes are compiled
// and JSON metadata is decoded here, once per load.
//
// A rule that cannot be compiled comes back as Inert together with the
// error, so callers can log it and keep going.
func Compile(def model.CleaningRule) (Rule, error) {
	b := base{def: def}

	switch def.Type {
	case model.RuleTypeRegexReplace:
		re, err := compilePattern(def)
		if err != nil {
			return Inert{base: b, Reason: err}, err
		}
		return RegexReplace{base: b, re: re, replacement: model.Deref(def.Replacement)}, nil

	case model.RuleTypeValidator:
		re, err := compilePattern(def)
		if err != nil {
			return Inert{base: b, Reason: err}, err
		}
		return Validator{base: b, re: re}, nil

	case model.RuleTypeTypeCoercion:
		var spec CoercionSpec
		if err := decodeSpec(def.Pattern, &spec); err != nil {
			// Undecodable metadata leaves a no-op coercion that still fires.
			zap.L().Warn("rules: invalid coercion metadata",
				zap.Int64("rule_id", def.ID), zap.Error(err))
		}
		return TypeCoercion{base: b, spec: spec}, nil

	case model.RuleTypeFormatStandardizer:
		var spec FormatSpec
		if err := decodeSpec(def.Pattern, &spec); err != nil {
			zap.L().Warn("rules: invalid format metadata, using trim",
				zap.Int64("rule_id", def.ID), zap.Error(err))
		}
		return FormatStandardizer{base: b, spec: spec}, nil

	case model.RuleTypeFieldMerger:
		return FieldMerger{base: b}, nil

	default:
		err := eris.Errorf("rules: unknown rule type %q for rule %d", def.Type, def.ID)
		return Inert{base: b, Reason: err}, err
	}
}

func compilePattern(def model.CleaningRule) (*regexp.Regexp, error) {
	if def.Pattern == nil {
		return nil, eris.Errorf("rules: rule %d has no pattern", def.ID)
	}
	re, err := regexp.Compile(*def.Pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: invalid pattern in rule %d", def.ID)
	}
	return re, nil
}
