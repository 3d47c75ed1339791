package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestThresholdConfig_Level(t *testing.T) {
	thresholds := DefaultThresholds()

	tests := []struct {
		name          string
		score         float64
		expectedLevel RiskLevel
	}{
		{name: "zero score is safe", score: 0.0, expectedLevel: RiskSafe},
		{name: "just below low", score: 0.299, expectedLevel: RiskSafe},
		{name: "exactly low", score: 0.30, expectedLevel: RiskLow},
		{name: "medium", score: 0.55, expectedLevel: RiskMedium},
		{name: "high", score: 0.70, expectedLevel: RiskHigh},
		{name: "critical", score: 0.99, expectedLevel: RiskCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedLevel, thresholds.Level(tt.score))
		})
	}
}

func TestThresholdConfig_Merge(t *testing.T) {
	base := DefaultThresholds()

	tests := []struct {
		name      string
		update    ThresholdUpdate
		expectErr bool
		expected  ThresholdConfig
	}{
		{
			name:     "partial update keeps other levels",
			update:   ThresholdUpdate{High: ptr(0.75)},
			expected: ThresholdConfig{Critical: 0.85, High: 0.75, Medium: 0.50, Low: 0.30},
		},
		{
			name:      "high above critical is rejected",
			update:    ThresholdUpdate{High: ptr(0.90)},
			expectErr: true,
		},
		{
			name:      "equal levels are rejected",
			update:    ThresholdUpdate{Medium: ptr(0.30)},
			expectErr: true,
		},
		{
			name:      "out of range is rejected",
			update:    ThresholdUpdate{Critical: ptr(1.2)},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := base.Merge(tt.update)
			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				assert.Equal(t, base, merged, "prior config returned unchanged")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, merged)
		})
	}
}

func TestNormalizeWeights(t *testing.T) {
	tests := []struct {
		name      string
		weights   map[Category]float64
		expectErr bool
	}{
		{name: "already normalized", weights: DefaultWeights()},
		{name: "arbitrary scale", weights: map[Category]float64{CategoryHeader: 3, CategoryURL: 1, CategoryContent: 4}},
		{name: "negative weight", weights: map[Category]float64{CategoryHeader: -1, CategoryURL: 2}, expectErr: true},
		{name: "all zero", weights: map[Category]float64{CategoryHeader: 0}, expectErr: true},
		{name: "unknown category", weights: map[Category]float64{"mood": 1}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, err := NormalizeWeights(tt.weights)
			if tt.expectErr {
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)

			sum := 0.0
			for _, w := range normalized {
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
			assert.Len(t, normalized, len(Categories))
		})
	}
}

func TestError_Wrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("failed to record decision: %w", NewDatabaseError("insert admin decision", cause))

	assert.Equal(t, CodeDatabase, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotFound(err))

	nf := NewNotFoundError("model version", "v9")
	assert.True(t, IsNotFound(nf))
	assert.Equal(t, "v9", nf.Details["id"])
}

func TestFeatureVector_Fingerprint(t *testing.T) {
	a := FeatureVector{MessageID: "a", Header: HeaderFeatures{SPFFail: true}}
	b := FeatureVector{MessageID: "b", Header: HeaderFeatures{SPFFail: true}}
	c := FeatureVector{MessageID: "a", Header: HeaderFeatures{DKIMFail: true}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "identity fields are not part of the fingerprint")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
