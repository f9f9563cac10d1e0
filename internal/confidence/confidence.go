// Package confidence maps columns and sources to review thresholds and
// blends rule confidence into a per-cell score.
package confidence

import (
	"math"
	"strings"

	"github.com/oceanid/ingest-worker/internal/config"
)

// Initial is the confidence a cell starts with before any rule fires.
const Initial = 0.5

// Score bounds for thresholds.
const (
	minThreshold = 0.5
	maxThreshold = 1.0
)

// Blend weights and per-pass decay for Update.
const (
	currentWeight = 0.3
	ruleWeight    = 0.7
	passDecay     = 0.9
)

// FieldType is a coarse category derived from a column name.
type FieldType string

// Field types in classification order.
const (
	FieldIMO        FieldType = "IMO"
	FieldMMSI       FieldType = "MMSI"
	FieldIRCS       FieldType = "IRCS"
	FieldVesselName FieldType = "VESSEL_NAME"
	FieldFlag       FieldType = "FLAG"
	FieldDate       FieldType = "DATE"
	FieldNumber     FieldType = "NUMBER"
	FieldDefault    FieldType = "DEFAULT"
)

// ClassifyField derives the field type of a column by substring match.
func ClassifyField(column string) FieldType {
	c := strings.ToUpper(column)
	switch {
	case strings.Contains(c, "IMO"):
		return FieldIMO
	case strings.Contains(c, "MMSI"):
		return FieldMMSI
	case strings.Contains(c, "IRCS"), strings.Contains(c, "CALL_SIGN"):
		return FieldIRCS
	case strings.Contains(c, "VESSEL") && strings.Contains(c, "NAME"):
		return FieldVesselName
	case strings.Contains(c, "FLAG"):
		return FieldFlag
	case strings.Contains(c, "DATE"), strings.Contains(c, "TIME"):
		return FieldDate
	case strings.Contains(c, "TONNAGE"), strings.Contains(c, "LENGTH"),
		strings.Contains(c, "YEAR"), strings.Contains(c, "NUMBER"):
		return FieldNumber
	default:
		return FieldDefault
	}
}

// Trust classifies a data source.
type Trust int

// Trust levels.
const (
	Neutral Trust = iota
	Trusted
	Untrusted
)

// String implements fmt.Stringer.
func (t Trust) String() string {
	switch t {
	case Trusted:
		return "trusted"
	case Untrusted:
		return "untrusted"
	default:
		return "neutral"
	}
}

// Model holds per-field threshold settings and source trust lists.
// A Model is immutable after construction and safe for concurrent use.
type Model struct {
	fields    map[FieldType]config.FieldThreshold
	trusted   []string
	untrusted []string
}

// New builds a Model from configuration. Field keys are matched
// case-insensitively.
func New(cfg config.ConfidenceConfig) *Model {
	fields := make(map[FieldType]config.FieldThreshold, len(cfg.Fields))
	for k, v := range cfg.Fields {
		fields[FieldType(strings.ToUpper(k))] = v
	}
	return &Model{
		fields:    fields,
		trusted:   append([]string(nil), cfg.TrustedSources...),
		untrusted: append([]string(nil), cfg.UntrustedSources...),
	}
}

// Default returns a Model with the built-in thresholds and trust lists.
func Default() *Model {
	return New(config.ConfidenceConfig{
		Fields:           config.DefaultFieldThresholds(),
		TrustedSources:   []string{"IMO", "LLOYD", "FAO", "OFFICIAL"},
		UntrustedSources: []string{"CROWD", "UNVERIFIED", "ANONYMOUS"},
	})
}

// TrustOf classifies a source type. Matching is case-insensitive and exact.
func (m *Model) TrustOf(sourceType string) Trust {
	for _, s := range m.trusted {
		if strings.EqualFold(sourceType, s) {
			return Trusted
		}
	}
	for _, s := range m.untrusted {
		if strings.EqualFold(sourceType, s) {
			return Untrusted
		}
	}
	return Neutral
}

// Threshold returns the review threshold for a field type and trust level,
// clamped to [0.5, 1.0]. Unknown field types use the DEFAULT settings.
func (m *Model) Threshold(ft FieldType, trust Trust) float64 {
	fc, ok := m.fields[ft]
	if !ok {
		fc, ok = m.fields[FieldDefault]
		if !ok {
			fc = config.FieldThreshold{Base: 0.85}
		}
	}

	// Bonus and malus are magnitudes; older configs stored the malus negated.
	threshold := fc.Base
	switch trust {
	case Trusted:
		threshold -= math.Abs(fc.TrustedBonus)
	case Untrusted:
		threshold += math.Abs(fc.UntrustedMalus)
	}
	return clamp(threshold, minThreshold, maxThreshold)
}

// ThresholdFor is Threshold keyed by column name and source type.
func (m *Model) ThresholdFor(column, sourceType string) float64 {
	return m.Threshold(ClassifyField(column), m.TrustOf(sourceType))
}

// Update blends a firing rule's confidence into the current score. Later
// passes contribute less: the rule confidence decays by 0.9 per pass.
func Update(current, ruleConfidence float64, pass int) float64 {
	decayed := ruleConfidence * math.Pow(passDecay, float64(pass))
	return math.Min(currentWeight*current+ruleWeight*decayed, 1.0)
}

// AdjustForSimilarity nudges a score by how much cleaning changed the value.
func AdjustForSimilarity(score, similarity float64) float64 {
	switch {
	case similarity > 0.95:
		return math.Min(score+0.05, 1.0)
	case similarity < 0.5:
		return math.Max(score-0.10, 0.0)
	default:
		return score
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
