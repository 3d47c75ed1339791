package decision

import "time"

// Config holds the tunables of the decision learner
type Config struct {
	MinSamples           int
	AnalysisWindow       time.Duration
	TuningWindow         time.Duration
	DriftWindow          time.Duration
	DriftThreshold       float64
	SuggestionConfidence float64
	OverrideRateLimit    float64
	ThresholdStep        float64
	ConsistencyWindow    time.Duration
	ConsistencyDeviation float64
}

// DefaultConfig returns the tunables used when nothing is configured
func DefaultConfig() Config {
	return Config{
		MinSamples:           10,
		AnalysisWindow:       30 * 24 * time.Hour,
		TuningWindow:         14 * 24 * time.Hour,
		DriftWindow:          30 * 24 * time.Hour,
		DriftThreshold:       0.15,
		SuggestionConfidence: 0.7,
		OverrideRateLimit:    0.3,
		ThresholdStep:        0.05,
		ConsistencyWindow:    30 * 24 * time.Hour,
		ConsistencyDeviation: 0.3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinSamples <= 0 {
		c.MinSamples = d.MinSamples
	}
	if c.AnalysisWindow <= 0 {
		c.AnalysisWindow = d.AnalysisWindow
	}
	if c.TuningWindow <= 0 {
		c.TuningWindow = d.TuningWindow
	}
	if c.DriftWindow <= 0 {
		c.DriftWindow = d.DriftWindow
	}
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = d.DriftThreshold
	}
	if c.SuggestionConfidence <= 0 {
		c.SuggestionConfidence = d.SuggestionConfidence
	}
	if c.OverrideRateLimit <= 0 {
		c.OverrideRateLimit = d.OverrideRateLimit
	}
	if c.ThresholdStep <= 0 {
		c.ThresholdStep = d.ThresholdStep
	}
	if c.ConsistencyWindow <= 0 {
		c.ConsistencyWindow = d.ConsistencyWindow
	}
	if c.ConsistencyDeviation <= 0 {
		c.ConsistencyDeviation = d.ConsistencyDeviation
	}
	return c
}
