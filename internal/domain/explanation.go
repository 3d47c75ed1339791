package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audience selects who an explanation is written for
type Audience string

const (
	AudienceEndUser   Audience = "end_user"
	AudienceAnalyst   Audience = "analyst"
	AudienceAdmin     Audience = "admin"
	AudienceExecutive Audience = "executive"
)

// DetailLevel selects how much of the verdict an explanation exposes
type DetailLevel string

const (
	DetailBrief     DetailLevel = "brief"
	DetailDetailed  DetailLevel = "detailed"
	DetailTechnical DetailLevel = "technical"
)

// Factor is one ranked reason behind a verdict
type Factor struct {
	Feature      string    `json:"feature"`
	Category     Category  `json:"category"`
	Description  string    `json:"description"`
	Contribution float64   `json:"contribution"`
	Direction    Direction `json:"direction"`
}

// TechnicalDetails are exposed to analyst and admin audiences only
type TechnicalDetails struct {
	FeatureImportance []FeatureContribution `json:"feature_importance"`
	RawScores         map[Category]float64  `json:"raw_scores"`
	RawCombined       float64               `json:"raw_combined"`
	Thresholds        ThresholdConfig       `json:"thresholds"`
	ModelVersion      string                `json:"model_version"`
	ABTestVariant     string                `json:"ab_test_variant,omitempty"`
	RuleAdjustment    RuleAdjustment        `json:"rule_adjustment"`
}

// Explanation is an audience-scoped rendering of a verdict
type Explanation struct {
	VerdictID       uuid.UUID         `json:"verdict_id"`
	Audience        Audience          `json:"audience"`
	Level           DetailLevel       `json:"level"`
	Summary         string            `json:"summary"`
	ThreatType      ThreatType        `json:"threat_type"`
	RiskLevel       RiskLevel         `json:"risk_level"`
	Confidence      float64           `json:"confidence"`
	TopFactors      []Factor          `json:"top_factors"`
	Recommendations []string          `json:"recommendations"`
	Technical       *TechnicalDetails `json:"technical,omitempty"`
}

// BreakdownSlice is one category of a risk breakdown chart
type BreakdownSlice struct {
	Category     Category `json:"category"`
	RawScore     float64  `json:"raw_score"`
	Weight       float64  `json:"weight"`
	Contribution float64  `json:"contribution"`
	Share        float64  `json:"share"` // of the combined score, 0-1
	Color        string   `json:"color"`
}

// RiskBreakdown splits a verdict's score by category
type RiskBreakdown struct {
	VerdictID   uuid.UUID        `json:"verdict_id"`
	ThreatScore float64          `json:"threat_score"`
	Slices      []BreakdownSlice `json:"slices"`
}

// Counterfactual is a minimal change that would flip the verdict
type Counterfactual struct {
	Changes        []string  `json:"changes"`
	Description    string    `json:"description"`
	OriginalScore  float64   `json:"original_score"`
	ResultingScore float64   `json:"resulting_score"`
	ResultingLevel RiskLevel `json:"resulting_level"`
}

// SimilarThreat is a past verdict sharing signals with the one explained
type SimilarThreat struct {
	VerdictID     uuid.UUID  `json:"verdict_id"`
	MessageID     string     `json:"message_id"`
	Similarity    float64    `json:"similarity"`
	SharedSignals []string   `json:"shared_signals"`
	ThreatType    ThreatType `json:"threat_type"`
	RiskLevel     RiskLevel  `json:"risk_level"`
	Outcome       Outcome    `json:"outcome"`
	PredictedAt   time.Time  `json:"predicted_at"`
}

// TimelineEvent is one step of a reconstructed detection
type TimelineEvent struct {
	At          time.Time `json:"at"`
	Stage       string    `json:"stage"`
	Description string    `json:"description"`
}

// ExecutiveSummary aggregates a tenant's verdicts over a period
type ExecutiveSummary struct {
	TenantID         uuid.UUID          `json:"tenant_id"`
	Period           string             `json:"period"`
	Window           TimeWindow         `json:"window"`
	TotalAnalyzed    int                `json:"total_analyzed"`
	ThreatsDetected  int                `json:"threats_detected"`
	ByThreatType     map[ThreatType]int `json:"by_threat_type"`
	ByRiskLevel      map[RiskLevel]int  `json:"by_risk_level"`
	ByCategory       map[Category]int   `json:"by_category"`
	ConfirmedThreats int                `json:"confirmed_threats"`
	FalsePositives   int                `json:"false_positives"`
	Highlights       []string           `json:"highlights"`
}
