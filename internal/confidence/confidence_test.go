package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oceanid/ingest-worker/internal/config"
)

func TestClassifyField(t *testing.T) {
	tests := []struct {
		column string
		want   FieldType
	}{
		{"IMO", FieldIMO},
		{"imo_number", FieldIMO},
		{"MMSI", FieldMMSI},
		{"IRCS", FieldIRCS},
		{"CALL_SIGN", FieldIRCS},
		{"VESSEL_NAME", FieldVesselName},
		{"NAME_OF_VESSEL", FieldVesselName},
		{"VESSEL_TYPE", FieldDefault},
		{"FLAG", FieldFlag},
		{"REGISTRATION_DATE", FieldDate},
		{"TIMESTAMP", FieldDate},
		{"GROSS_TONNAGE", FieldNumber},
		{"LENGTH_OVERALL", FieldNumber},
		{"BUILD_YEAR", FieldNumber},
		{"OWNER", FieldDefault},
		{"", FieldDefault},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyField(tt.column))
		})
	}
}

func TestTrustOf(t *testing.T) {
	m := Default()
	assert.Equal(t, Trusted, m.TrustOf("IMO"))
	assert.Equal(t, Trusted, m.TrustOf("lloyd"))
	assert.Equal(t, Untrusted, m.TrustOf("Crowd"))
	assert.Equal(t, Neutral, m.TrustOf("RFMO"))
	assert.Equal(t, Neutral, m.TrustOf("OFFICIAL_REGISTRY"))
	assert.Equal(t, "trusted", Trusted.String())
	assert.Equal(t, "neutral", Neutral.String())
}

func TestThresholdDefaults(t *testing.T) {
	m := Default()
	assert.InDelta(t, 0.98, m.Threshold(FieldIMO, Neutral), 1e-9)
	assert.InDelta(t, 0.96, m.Threshold(FieldIMO, Trusted), 1e-9)
	assert.InDelta(t, 1.0, m.Threshold(FieldIMO, Untrusted), 1e-9)
	assert.InDelta(t, 0.90, m.Threshold(FieldVesselName, Neutral), 1e-9)
	assert.InDelta(t, 0.87, m.Threshold(FieldDefault, Untrusted), 1e-9)
}

func TestThresholdMonotonic(t *testing.T) {
	m := Default()
	for _, ft := range []FieldType{FieldIMO, FieldMMSI, FieldIRCS, FieldVesselName, FieldFlag, FieldDate, FieldNumber, FieldDefault} {
		trusted := m.Threshold(ft, Trusted)
		neutral := m.Threshold(ft, Neutral)
		untrusted := m.Threshold(ft, Untrusted)
		assert.LessOrEqual(t, trusted, neutral, ft)
		assert.LessOrEqual(t, neutral, untrusted, ft)
	}
}

func TestThresholdNegativeMalusTreatedAsMagnitude(t *testing.T) {
	m := New(config.ConfidenceConfig{
		Fields: map[string]config.FieldThreshold{
			"default": {Base: 0.85, TrustedBonus: 0.02, UntrustedMalus: -0.02},
		},
		UntrustedSources: []string{"CROWD"},
	})
	assert.InDelta(t, 0.87, m.ThresholdFor("OWNER", "CROWD"), 1e-9)
}

func TestThresholdClamped(t *testing.T) {
	m := New(config.ConfidenceConfig{
		Fields: map[string]config.FieldThreshold{
			"DEFAULT": {Base: 0.55, TrustedBonus: 0.2},
			"IMO":     {Base: 0.99, UntrustedMalus: 0.5},
		},
		TrustedSources:   []string{"FAO"},
		UntrustedSources: []string{"CROWD"},
	})
	assert.InDelta(t, 0.5, m.ThresholdFor("OWNER", "FAO"), 1e-9)
	assert.InDelta(t, 1.0, m.ThresholdFor("IMO", "CROWD"), 1e-9)
}

func TestThresholdMissingFieldFallsBack(t *testing.T) {
	m := New(config.ConfidenceConfig{})
	assert.InDelta(t, 0.85, m.Threshold(FieldFlag, Neutral), 1e-9)

	m = New(config.ConfidenceConfig{
		Fields: map[string]config.FieldThreshold{"DEFAULT": {Base: 0.8}},
	})
	assert.InDelta(t, 0.8, m.Threshold(FieldFlag, Neutral), 1e-9)
}

func TestUpdate(t *testing.T) {
	// 0.3*0.5 + 0.7*0.9 = 0.78
	assert.InDelta(t, 0.78, Update(Initial, 0.9, 0), 1e-9)
	// 0.3*0.78 + 0.7*(0.9*0.9) = 0.801
	assert.InDelta(t, 0.801, Update(0.78, 0.9, 1), 1e-9)
	assert.InDelta(t, 1.0, Update(1.0, 1.0, 0), 1e-9)
	assert.LessOrEqual(t, Update(5, 5, 0), 1.0)
}

func TestUpdateDecaysWithPass(t *testing.T) {
	first := Update(Initial, 0.95, 0)
	second := Update(Initial, 0.95, 1)
	third := Update(Initial, 0.95, 2)
	assert.Greater(t, first, second)
	assert.Greater(t, second, third)
}

func TestAdjustForSimilarity(t *testing.T) {
	assert.InDelta(t, 0.85, AdjustForSimilarity(0.8, 0.99), 1e-9)
	assert.InDelta(t, 1.0, AdjustForSimilarity(0.98, 1.0), 1e-9)
	assert.InDelta(t, 0.7, AdjustForSimilarity(0.8, 0.3), 1e-9)
	assert.InDelta(t, 0.0, AdjustForSimilarity(0.05, 0.0), 1e-9)
	assert.InDelta(t, 0.8, AdjustForSimilarity(0.8, 0.7), 1e-9)
	assert.InDelta(t, 0.8, AdjustForSimilarity(0.8, 0.95), 1e-9)
	assert.InDelta(t, 0.8, AdjustForSimilarity(0.8, 0.5), 1e-9)
}
