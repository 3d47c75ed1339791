package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GlobalTenant keys the global default rows of tenant-scoped tables
var GlobalTenant = uuid.Nil

// ThreatType is the dominant class of threat a verdict describes
type ThreatType string

const (
	ThreatMalware  ThreatType = "malware"
	ThreatPhishing ThreatType = "phishing"
	ThreatBEC      ThreatType = "bec"
	ThreatSpam     ThreatType = "spam"
	ThreatClean    ThreatType = "clean"
)

// Precedence ranks threat types for tie breaking, higher wins
func (t ThreatType) Precedence() int {
	switch t {
	case ThreatMalware:
		return 4
	case ThreatPhishing:
		return 3
	case ThreatBEC:
		return 2
	case ThreatSpam:
		return 1
	default:
		return 0
	}
}

// RiskLevel is the categorical severity assigned from thresholds
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
	RiskSafe     RiskLevel = "safe"
)

// ThresholdConfig maps threat scores to risk levels.
// Critical > High > Medium > Low must hold on every write.
type ThresholdConfig struct {
	Critical float64 `json:"critical"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
	Low      float64 `json:"low"`
}

// DefaultThresholds is the global configuration used until one is stored
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{Critical: 0.85, High: 0.70, Medium: 0.50, Low: 0.30}
}

// Validate enforces range and strict ascending order
func (t ThresholdConfig) Validate() error {
	for name, v := range map[string]float64{"critical": t.Critical, "high": t.High, "medium": t.Medium, "low": t.Low} {
		if v < 0 || v > 1 {
			return NewValidationError(fmt.Sprintf("%s threshold %.3f outside [0,1]", name, v))
		}
	}
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > t.Low) {
		return NewValidationError(fmt.Sprintf(
			"thresholds must be strictly ordered critical > high > medium > low, got %.3f/%.3f/%.3f/%.3f",
			t.Critical, t.High, t.Medium, t.Low))
	}
	return nil
}

// Level assigns a risk level, most severe first
func (t ThresholdConfig) Level(score float64) RiskLevel {
	switch {
	case score >= t.Critical:
		return RiskCritical
	case score >= t.High:
		return RiskHigh
	case score >= t.Medium:
		return RiskMedium
	case score >= t.Low:
		return RiskLow
	default:
		return RiskSafe
	}
}

// ThresholdUpdate is a partial threshold write; nil fields keep their value
type ThresholdUpdate struct {
	Critical *float64 `json:"critical,omitempty"`
	High     *float64 `json:"high,omitempty"`
	Medium   *float64 `json:"medium,omitempty"`
	Low      *float64 `json:"low,omitempty"`
}

// Merge applies a partial update and validates the result
func (t ThresholdConfig) Merge(u ThresholdUpdate) (ThresholdConfig, error) {
	merged := t
	if u.Critical != nil {
		merged.Critical = *u.Critical
	}
	if u.High != nil {
		merged.High = *u.High
	}
	if u.Medium != nil {
		merged.Medium = *u.Medium
	}
	if u.Low != nil {
		merged.Low = *u.Low
	}
	if err := merged.Validate(); err != nil {
		return t, err
	}
	return merged, nil
}

// Direction tells whether an indicator pushed the score up or down
type Direction string

const (
	IncreasesRisk Direction = "increases_risk"
	DecreasesRisk Direction = "decreases_risk"
)

// FiredIndicator is one indicator rule that matched a feature vector.
// Scaled is the delta after clamping the category sum into [0,1].
type FiredIndicator struct {
	Category Category   `json:"category"`
	Name     string     `json:"name"`
	Delta    float64    `json:"delta"`
	Scaled   float64    `json:"scaled"`
	Threat   ThreatType `json:"threat"`
	Evidence string     `json:"evidence"`
}

// Key is the category-qualified indicator name, e.g. "header.spf_fail"
func (f FiredIndicator) Key() string {
	return string(f.Category) + "." + f.Name
}

// FeatureContribution is one weighted, signed entry of feature importance
type FeatureContribution struct {
	Feature      string    `json:"feature"`
	Category     Category  `json:"category"`
	Contribution float64   `json:"contribution"`
	Direction    Direction `json:"direction"`
}

// ScoreBreakdown is the threshold-independent output of the scoring engine.
// It is what the prediction cache stores.
type ScoreBreakdown struct {
	ModelVersion      string                `json:"model_version"`
	RawScores         map[Category]float64  `json:"raw_scores"`
	RawCombined       float64               `json:"raw_combined"`
	Score             float64               `json:"score"`
	Confidence        float64               `json:"confidence"`
	Indicators        []FiredIndicator      `json:"indicators"`
	FeatureImportance []FeatureContribution `json:"feature_importance"`
}

// RuleAdjustment is the learned-rule correction applied on top of the base score
type RuleAdjustment struct {
	Adjustment   float64       `json:"adjustment"` // points, [-30, 30]
	AppliedRules []LearnedRule `json:"applied_rules,omitempty"`
	Explanation  string        `json:"explanation,omitempty"`
}

// PredictionResult is the verdict for one email
type PredictionResult struct {
	VerdictID         uuid.UUID             `json:"verdict_id"`
	MessageID         string                `json:"message_id"`
	TenantID          uuid.UUID             `json:"tenant_id"`
	ThreatScore       float64               `json:"threat_score"`
	BaseScore         float64               `json:"base_score"`
	RawCombined       float64               `json:"raw_combined"`
	Confidence        float64               `json:"confidence"`
	ThreatType        ThreatType            `json:"threat_type"`
	RiskLevel         RiskLevel             `json:"risk_level"`
	ModelVersion      string                `json:"model_version"`
	ABTestVariant     string                `json:"ab_test_variant,omitempty"`
	FeatureImportance []FeatureContribution `json:"feature_importance"`
	RawScores         map[Category]float64  `json:"raw_scores"`
	RuleAdjustment    RuleAdjustment        `json:"rule_adjustment"`
	PredictedAt       time.Time             `json:"predicted_at"`
}

// Outcome is the ground truth observed after a verdict was issued
type Outcome string

const (
	OutcomeConfirmedThreat Outcome = "confirmed_threat"
	OutcomeFalsePositive   Outcome = "false_positive"
	OutcomeUnknown         Outcome = "unknown"
)

// VerdictRecord is a persisted verdict with the inputs needed to replay it
type VerdictRecord struct {
	Result     PredictionResult `json:"result"`
	Features   FeatureVector    `json:"features"`
	Thresholds ThresholdConfig  `json:"thresholds"`
	Indicators []FiredIndicator `json:"indicators"`
	Outcome    Outcome          `json:"outcome"`
	CreatedAt  time.Time        `json:"created_at"`
}
