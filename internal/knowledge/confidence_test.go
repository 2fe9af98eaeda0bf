package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateConfidence(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		strength float64
		rate     float64
		want     float64
	}{
		{"positive evidence pulls up", 0.5, 0.9, 0.3, 0.62},
		{"negative evidence pulls down", 0.5, 0.1, 0.3, 0.38},
		{"strength equal to current is a no-op", 0.7, 0.7, 0.3, 0.7},
		{"full rate jumps to strength", 0.2, 0.8, 1.0, 0.8},
		{"zero rate freezes belief", 0.4, 0.9, 0.0, 0.4},
		{"negative strength clamps at zero", 0.01, -0.05, 0.8, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UpdateConfidence(tt.current, tt.strength, tt.rate)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestUpdateConfidenceStaysBounded(t *testing.T) {
	conf := 0.5
	for i := 0; i < 100; i++ {
		conf = UpdateConfidence(conf, 0.9, 0.8)
		require.LessOrEqual(t, conf, 1.0)
	}
	assert.InDelta(t, 0.9, conf, 1e-6)

	conf = 0.5
	for i := 0; i < 100; i++ {
		conf = UpdateConfidence(conf, -0.05, 0.8)
		require.GreaterOrEqual(t, conf, 0.0)
	}
}

func TestClampLearningRate(t *testing.T) {
	assert.Equal(t, 0.1, ClampLearningRate(0.0))
	assert.Equal(t, 0.1, ClampLearningRate(-5.0))
	assert.Equal(t, 0.8, ClampLearningRate(1.0))
	assert.Equal(t, 0.3, ClampLearningRate(0.3))
	assert.Equal(t, 0.1, ClampLearningRate(0.1))
	assert.Equal(t, 0.8, ClampLearningRate(0.8))
}

func TestConfidenceLabelBands(t *testing.T) {
	tests := []struct {
		confidence float64
		label      string
		color      string
	}{
		{0.95, "Very High", "green"},
		{0.8, "Very High", "green"},
		{0.7, "High", "lightgreen"},
		{0.6, "High", "lightgreen"},
		{0.5, "Moderate", "yellow"},
		{0.4, "Moderate", "yellow"},
		{0.35, "Low", "orange"},
		{0.3, "Low", "orange"},
		{0.1, "Very Low", "red"},
		{0.0, "Very Low", "red"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.label, ConfidenceLabel(tt.confidence), "label at %.2f", tt.confidence)
		assert.Equal(t, tt.color, ConfidenceColor(tt.confidence), "color at %.2f", tt.confidence)
	}
}

func TestEvidenceBaseStrengths(t *testing.T) {
	tests := []struct {
		evType   EvidenceType
		strength float64
	}{
		{EvidenceDocumentExtraction, 0.6},
		{EvidenceUserFeedbackPositive, 0.9},
		{EvidenceUserFeedbackNegative, 0.1},
		{EvidenceCorroboration, 0.7},
		{EvidenceContradiction, 0.2},
		{EvidenceTemporalDecay, -0.05},
		{EvidenceCrossReference, 0.65},
		{EvidenceAuthorityEndorsement, 0.85},
	}
	for _, tt := range tests {
		got, err := tt.evType.BaseStrength()
		require.NoError(t, err)
		assert.Equal(t, tt.strength, got, string(tt.evType))
	}
}

func TestUnknownEvidenceTypeFailsLoudly(t *testing.T) {
	_, err := EvidenceType("rumor").BaseStrength()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEvidenceType)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseEvidenceType("rumor")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrPersistence))
	assert.False(t, IsRetryable(ErrEntityNotFound))
	assert.False(t, IsRetryable(ErrUnknownEvidenceType))
	assert.False(t, IsRetryable(nil))
}
