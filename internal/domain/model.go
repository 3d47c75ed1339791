package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Calibration is a Platt-style sigmoid applied to the combined raw score
type Calibration struct {
	A       float64 `json:"a"`
	B       float64 `json:"b"`
	Enabled bool    `json:"enabled"`
}

// Apply maps a raw combined score to the calibrated threat score.
// A disabled calibration is the identity.
func (c Calibration) Apply(raw float64) float64 {
	if !c.Enabled {
		return raw
	}
	return 1 / (1 + math.Exp(-(c.A*raw + c.B)))
}

// ModelVersion is an immutable, append-only scoring configuration
type ModelVersion struct {
	Version     string               `json:"version"`
	Weights     map[Category]float64 `json:"weights"`
	Calibration Calibration          `json:"calibration"`
	Metrics     map[string]float64   `json:"metrics,omitempty"`
	TrainedAt   time.Time            `json:"trained_at"`
	CreatedAt   time.Time            `json:"created_at"`
	IsActive    bool                 `json:"is_active"`
}

// DefaultModelVersion is the bootstrap version deployed into an empty store
const DefaultModelVersion = "v1.0.0"

// DefaultWeights is the bootstrap weight vector, already normalized
func DefaultWeights() map[Category]float64 {
	return map[Category]float64{
		CategoryHeader:     0.20,
		CategoryContent:    0.20,
		CategorySender:     0.15,
		CategoryURL:        0.20,
		CategoryAttachment: 0.15,
		CategoryBehavioral: 0.10,
	}
}

// NormalizeWeights validates a weight vector and rescales it to sum to 1.
// Missing categories get weight 0.
func NormalizeWeights(weights map[Category]float64) (map[Category]float64, error) {
	total := 0.0
	for cat, w := range weights {
		if !IsCategory(cat) {
			return nil, NewValidationError(fmt.Sprintf("unknown category %q", cat))
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, NewValidationError(fmt.Sprintf("weight for %s must be a finite non-negative number", cat))
		}
		total += w
	}
	if total == 0 {
		return nil, NewValidationError("at least one category weight must be positive")
	}

	normalized := make(map[Category]float64, len(Categories))
	for _, cat := range Categories {
		normalized[cat] = weights[cat] / total
	}
	return normalized, nil
}

// IsCategory reports whether c is one of the six known categories
func IsCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ModelTest routes a fraction of traffic to an alternate model version
type ModelTest struct {
	ID             uuid.UUID  `json:"id"`
	VariantVersion string     `json:"variant_version"`
	TrafficPercent float64    `json:"traffic_percent"` // (0, 100]
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// ModelEventType names a lifecycle transition of the scoring model
type ModelEventType string

const (
	EventModelDeployed      ModelEventType = "model_deployed"
	EventModelActivated     ModelEventType = "model_activated"
	EventModelRolledBack    ModelEventType = "model_rolled_back"
	EventWeightsUpdated     ModelEventType = "weights_updated"
	EventCalibrationUpdated ModelEventType = "calibration_updated"
	EventThresholdsUpdated  ModelEventType = "thresholds_updated"
	EventModelTestEnabled   ModelEventType = "ab_test_enabled"
	EventModelTestDisabled  ModelEventType = "ab_test_disabled"
)

// ModelEvent is returned by every lifecycle call for the caller to forward
type ModelEvent struct {
	Type            ModelEventType `json:"type"`
	TenantID        uuid.UUID      `json:"tenant_id,omitempty"`
	Version         string         `json:"version,omitempty"`
	PreviousVersion string         `json:"previous_version,omitempty"`
	Detail          string         `json:"detail,omitempty"`
	At              time.Time      `json:"at"`
}

// ModelPointer is the single row naming the active model version.
// Generation increases on every swap and is the compare-and-swap token.
type ModelPointer struct {
	ActiveVersion   string    `json:"active_version"`
	PreviousVersion string    `json:"previous_version,omitempty"`
	Generation      int64     `json:"generation"`
	UpdatedAt       time.Time `json:"updated_at"`
}
