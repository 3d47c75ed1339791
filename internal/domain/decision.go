package domain

import (
	"time"

	"github.com/google/uuid"
)

// AdminVerdict is the verdict an operator saw when acting
type AdminVerdict string

const (
	VerdictPass       AdminVerdict = "pass"
	VerdictSuspicious AdminVerdict = "suspicious"
	VerdictQuarantine AdminVerdict = "quarantine"
	VerdictBlock      AdminVerdict = "block"
)

// AdminAction is what the operator did about the verdict
type AdminAction string

const (
	ActionRelease AdminAction = "release"
	ActionBlock   AdminAction = "block"
	ActionDelete  AdminAction = "delete"
	ActionConfirm AdminAction = "confirm"
)

// AdminActions lists every action, used as the entropy alphabet
var AdminActions = []AdminAction{ActionRelease, ActionBlock, ActionDelete, ActionConfirm}

// DecisionSnapshot is the part of the verdict the decision learner mines.
// Scores are on a 0-100 scale.
type DecisionSnapshot struct {
	SenderEmail          string  `json:"sender_email"`
	SenderDomain         string  `json:"sender_domain"`
	Subject              string  `json:"subject,omitempty"`
	ThreatScore          float64 `json:"threat_score"`
	DeterministicScore   float64 `json:"deterministic_score"`
	MLScore              float64 `json:"ml_score"`
	UrgencyScore         float64 `json:"urgency_score"`
	URLCount             int     `json:"url_count"`
	AttachmentCount      int     `json:"attachment_count"`
	HasFinancialRequest  bool    `json:"has_financial_request"`
	HasCredentialRequest bool    `json:"has_credential_request"`
}

// AdminDecision is an immutable record of a human override.
// Only the outcome fields may be attached later.
type AdminDecision struct {
	ID                        uuid.UUID        `json:"id"`
	TenantID                  uuid.UUID        `json:"tenant_id"`
	VerdictID                 uuid.UUID        `json:"verdict_id"`
	AdminID                   string           `json:"admin_id"`
	OriginalVerdict           AdminVerdict     `json:"original_verdict"`
	Action                    AdminAction      `json:"action"`
	Reason                    string           `json:"reason,omitempty"`
	DecidedAt                 time.Time        `json:"decided_at"`
	Snapshot                  DecisionSnapshot `json:"snapshot"`
	SubsequentReportedAsPhish bool             `json:"subsequent_reported_as_phish"`
	ReportedAt                *time.Time       `json:"reported_at,omitempty"`
}

// IsOverride is any action other than confirm on a non-pass verdict
func (d AdminDecision) IsOverride() bool {
	return d.OriginalVerdict != VerdictPass && d.Action != ActionConfirm
}

// IsFalsePositive is a flagged verdict the operator released
func (d AdminDecision) IsFalsePositive() bool {
	return d.OriginalVerdict != VerdictPass && d.Action == ActionRelease
}

// IsFalseNegative is a passed verdict the operator removed, or a release later reported as phish
func (d AdminDecision) IsFalseNegative() bool {
	if d.OriginalVerdict == VerdictPass && (d.Action == ActionBlock || d.Action == ActionDelete) {
		return true
	}
	return d.SubsequentReportedAsPhish
}

// TimeWindow is a half-open [Start, End) interval
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PatternKind names the grouping a mined pattern was found by
type PatternKind string

const (
	PatternKindDomain  PatternKind = "domain"
	PatternKindSender  PatternKind = "sender"
	PatternKindFeature PatternKind = "feature"
	PatternKindTime    PatternKind = "time"
)

// Pattern is a mined override signature. It is derived on demand, never stored.
type Pattern struct {
	Type        PatternKind        `json:"type"`
	Key         string             `json:"key"`
	Description string             `json:"description"`
	Occurrences int                `json:"occurrences"`
	Confidence  float64            `json:"confidence"`
	Examples    []uuid.UUID        `json:"examples"`
	Features    map[string]float64 `json:"features,omitempty"`
	FirstSeen   time.Time          `json:"first_seen"`
	LastSeen    time.Time          `json:"last_seen"`
}

// ReasonCount is a normalized override reason and its frequency
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// WeeklyTrend is one of the trailing four weekly buckets
type WeeklyTrend struct {
	Window            TimeWindow `json:"window"`
	Decisions         int        `json:"decisions"`
	Overrides         int        `json:"overrides"`
	Releases          int        `json:"releases"`
	Blocks            int        `json:"blocks"`
	FalsePositiveRate float64    `json:"false_positive_rate"`
}

// PatternAnalysis is the mined view of a tenant's recent decisions
type PatternAnalysis struct {
	TenantID              uuid.UUID     `json:"tenant_id"`
	Window                TimeWindow    `json:"window"`
	TotalDecisions        int           `json:"total_decisions"`
	OverrideCount         int           `json:"override_count"`
	OverrideRate          float64       `json:"override_rate"`
	InsufficientData      bool          `json:"insufficient_data"`
	FalsePositivePatterns []Pattern     `json:"false_positive_patterns"`
	FalseNegativePatterns []Pattern     `json:"false_negative_patterns"`
	CommonOverrideReasons []ReasonCount `json:"common_override_reasons"`
	Trends                []WeeklyTrend `json:"trends"`
}

// SuggestionType names the kind of policy change proposed
type SuggestionType string

const (
	SuggestWhitelistDomain   SuggestionType = "whitelist_domain"
	SuggestWhitelistSender   SuggestionType = "whitelist_sender"
	SuggestThresholdIncrease SuggestionType = "threshold_increase"
	SuggestExceptionRule     SuggestionType = "exception_rule"
)

// PolicySuggestion is a proposed policy change for an operator to review
type PolicySuggestion struct {
	Type                SuggestionType `json:"type"`
	Target              string         `json:"target"`
	Description         string         `json:"description"`
	Confidence          float64        `json:"confidence"`
	ExpectedFPReduction float64        `json:"expected_fp_reduction"`
	ExpectedFNRisk      float64        `json:"expected_fn_risk"`
	Evidence            []uuid.UUID    `json:"evidence,omitempty"`
}

// Priority orders suggestions, higher first
func (s PolicySuggestion) Priority() float64 {
	return s.Confidence * s.ExpectedFPReduction
}

// AdjustmentStatus tracks a threshold adjustment through apply and rollback
type AdjustmentStatus string

const (
	AdjustmentProposed   AdjustmentStatus = "proposed"
	AdjustmentApplied    AdjustmentStatus = "applied"
	AdjustmentRolledBack AdjustmentStatus = "rolled_back"
)

// ThresholdLevel names one of the four thresholds
type ThresholdLevel string

const (
	LevelCritical ThresholdLevel = "critical"
	LevelHigh     ThresholdLevel = "high"
	LevelMedium   ThresholdLevel = "medium"
	LevelLow      ThresholdLevel = "low"
)

// Get reads one level of a threshold config
func (t ThresholdConfig) Get(level ThresholdLevel) float64 {
	switch level {
	case LevelCritical:
		return t.Critical
	case LevelHigh:
		return t.High
	case LevelMedium:
		return t.Medium
	default:
		return t.Low
	}
}

// With returns a copy with one level replaced. The result is not validated.
func (t ThresholdConfig) With(level ThresholdLevel, v float64) ThresholdConfig {
	switch level {
	case LevelCritical:
		t.Critical = v
	case LevelHigh:
		t.High = v
	case LevelMedium:
		t.Medium = v
	default:
		t.Low = v
	}
	return t
}

// ThresholdAdjustment is a persisted auto-tuning proposal
type ThresholdAdjustment struct {
	ID                uuid.UUID        `json:"id"`
	TenantID          uuid.UUID        `json:"tenant_id"`
	Metric            string           `json:"metric"`
	Level             ThresholdLevel   `json:"level"`
	CurrentValue      float64          `json:"current_value"`
	SuggestedValue    float64          `json:"suggested_value"`
	Direction         string           `json:"direction"` // raise or lower
	Reason            string           `json:"reason"`
	Confidence        float64          `json:"confidence"`
	SampleSize        int              `json:"sample_size"`
	RollbackAvailable bool             `json:"rollback_available"`
	Status            AdjustmentStatus `json:"status"`
	PreviousConfig    *ThresholdConfig `json:"previous_config,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	AppliedAt         *time.Time       `json:"applied_at,omitempty"`
}

// AutoTuneResult carries proposals or the reason there are none
type AutoTuneResult struct {
	TenantID         uuid.UUID             `json:"tenant_id"`
	SampleSize       int                   `json:"sample_size"`
	InsufficientData bool                  `json:"insufficient_data"`
	Adjustments      []ThresholdAdjustment `json:"adjustments"`
}

// DriftType classifies what moved between windows
type DriftType string

const (
	DriftNone    DriftType = "none"
	DriftFeature DriftType = "feature"
	DriftLabel   DriftType = "label"
	DriftConcept DriftType = "concept"
)

// DriftReport compares a baseline window with the most recent one
type DriftReport struct {
	TenantID           uuid.UUID          `json:"tenant_id"`
	HasDrift           bool               `json:"has_drift"`
	DriftScore         float64            `json:"drift_score"`
	DriftType          DriftType          `json:"drift_type"`
	FeatureShifts      map[string]float64 `json:"feature_shifts"`
	OverrideRateChange float64            `json:"override_rate_change"`
	Baseline           TimeWindow         `json:"baseline"`
	Comparison         TimeWindow         `json:"comparison"`
	BaselineSamples    int                `json:"baseline_samples"`
	ComparisonSamples  int                `json:"comparison_samples"`
	InsufficientData   bool               `json:"insufficient_data"`
	Recommendation     string             `json:"recommendation"`
}

// RateEstimate is a proportion with its Wilson 95% interval
type RateEstimate struct {
	Rate      float64 `json:"rate"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	Successes int     `json:"successes"`
	Total     int     `json:"total"`
}

// ABTestStatus is the lifecycle state of a policy experiment
type ABTestStatus string

const (
	ABTestRunning ABTestStatus = "running"
	ABTestStopped ABTestStatus = "stopped"
)

// PolicyABTest splits decisions between the current policy and a proposed change
type PolicyABTest struct {
	ID             uuid.UUID          `json:"id"`
	TenantID       uuid.UUID          `json:"tenant_id"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Parameters     map[string]float64 `json:"parameters,omitempty"`
	TrafficPercent float64            `json:"traffic_percent"`
	Status         ABTestStatus       `json:"status"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
}

// Cohort names a side of an experiment
type Cohort string

const (
	CohortControl Cohort = "control"
	CohortTest    Cohort = "test"
)

// CohortStats are the error rates observed in one cohort
type CohortStats struct {
	Samples           int     `json:"samples"`
	FalsePositives    int     `json:"false_positives"`
	FalseNegatives    int     `json:"false_negatives"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	FalseNegativeRate float64 `json:"false_negative_rate"`
}

// ABRecommendation is the outcome of evaluating an experiment
type ABRecommendation string

const (
	RecommendApply    ABRecommendation = "apply"
	RecommendReject   ABRecommendation = "reject"
	RecommendContinue ABRecommendation = "continue"
)

// ABTestResult is the evaluation of a policy experiment
type ABTestResult struct {
	TestID           uuid.UUID        `json:"test_id"`
	Control          CohortStats      `json:"control"`
	Test             CohortStats      `json:"test"`
	Significance     float64          `json:"significance"`
	Recommendation   ABRecommendation `json:"recommendation"`
	InsufficientData bool             `json:"insufficient_data"`
	Reason           string           `json:"reason"`
}

// AdminConsistency profiles how predictable one admin's actions are
type AdminConsistency struct {
	AdminID               string              `json:"admin_id"`
	TotalDecisions        int                 `json:"total_decisions"`
	ActionCounts          map[AdminAction]int `json:"action_counts"`
	HistoricalConsistency float64             `json:"historical_consistency"`
	RecentConsistency     float64             `json:"recent_consistency"`
	Anomalous             bool                `json:"anomalous"`
}
