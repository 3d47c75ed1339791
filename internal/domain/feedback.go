package domain

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackClass is the normalized meaning of a feedback event
type FeedbackClass string

const (
	FeedbackFalsePositive   FeedbackClass = "false_positive"
	FeedbackFalseNegative   FeedbackClass = "false_negative"
	FeedbackConfirmedThreat FeedbackClass = "confirmed_threat"
)

// FeedbackEvent is a report from an operator or end user about one verdict
type FeedbackEvent struct {
	FeedbackID      string    `json:"feedback_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	MessageID       string    `json:"message_id"`
	SenderDomain    string    `json:"sender_domain"`
	SenderEmail     string    `json:"sender_email"`
	FeedbackType    string    `json:"feedback_type"`
	OriginalVerdict string    `json:"original_verdict"`
	OriginalScore   float64   `json:"original_score"`
	Subject         string    `json:"subject,omitempty"`
	URLs            []string  `json:"urls,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// FeedbackResult summarizes what one feedback event changed
type FeedbackResult struct {
	FeedbackID        string        `json:"feedback_id"`
	Duplicate         bool          `json:"duplicate"`
	Class             FeedbackClass `json:"class"`
	ReputationUpdated bool          `json:"reputation_updated"`
	PatternsExtracted int           `json:"patterns_extracted"`
	RulesCreated      int           `json:"rules_created"`
}

// FeedbackStatus tracks how far an event got through learning.
// An event stays pending until rule promotion and the verdict outcome are done.
type FeedbackStatus string

const (
	FeedbackNew       FeedbackStatus = "new"
	FeedbackPending   FeedbackStatus = "pending"
	FeedbackProcessed FeedbackStatus = "processed"
)

// PatternCandidate is a pattern value extracted from one feedback event
type PatternCandidate struct {
	Type  PatternType
	Value string
}

// FeedbackWrite is everything one feedback event changes in a single transaction
type FeedbackWrite struct {
	Event        *FeedbackEvent
	Class        FeedbackClass
	SenderDomain string
	Reputation   ReputationDelta
	Candidates   []PatternCandidate
	At           time.Time
}

// FeedbackRecord is the state after a FeedbackWrite. Reputation and Patterns
// are only set when the write applied the counters, that is for FeedbackNew.
type FeedbackRecord struct {
	Status     FeedbackStatus
	Reputation *SenderReputation
	Patterns   []FeedbackPattern
}

// PatternType names what a feedback pattern matches on
type PatternType string

const (
	PatternDomain  PatternType = "domain"
	PatternURL     PatternType = "url_pattern"
	PatternSubject PatternType = "subject_pattern"
	PatternContent PatternType = "content_pattern"
)

// FeedbackPattern is a recurring feedback signature, mutated only by atomic upsert
type FeedbackPattern struct {
	ID              uuid.UUID     `json:"id"`
	TenantID        uuid.UUID     `json:"tenant_id"`
	PatternType     PatternType   `json:"pattern_type"`
	PatternValue    string        `json:"pattern_value"`
	FeedbackType    FeedbackClass `json:"feedback_type"`
	Confidence      float64       `json:"confidence"` // [10, 95]
	OccurrenceCount int           `json:"occurrence_count"`
	FirstSeen       time.Time     `json:"first_seen"`
	LastSeen        time.Time     `json:"last_seen"`
	IsActive        bool          `json:"is_active"`
}

// RuleType is the effect a learned rule has on scoring
type RuleType string

const (
	RuleTrustBoost     RuleType = "trust_boost"
	RuleSuspicionBoost RuleType = "suspicion_boost"
	RuleAutoPass       RuleType = "auto_pass"
	RuleAutoFlag       RuleType = "auto_flag"
)

// RuleField is the envelope value a rule condition reads
type RuleField string

const (
	FieldSenderDomain RuleField = "sender_domain"
	FieldSenderEmail  RuleField = "sender_email"
	FieldURLDomain    RuleField = "url_domain"
	FieldSubject      RuleField = "subject"
	FieldContent      RuleField = "content"
)

// Operator is the closed set of condition comparisons
type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpMatches    Operator = "matches"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
)

// RuleCondition is evaluated against a message envelope
type RuleCondition struct {
	Field    RuleField `json:"field"`
	Operator Operator  `json:"operator"`
	Value    string    `json:"value"`
}

// LearnedRule is a confidence-weighted additive score correction.
// Unique per (tenant, field, value).
type LearnedRule struct {
	ID                  uuid.UUID     `json:"id"`
	TenantID            uuid.UUID     `json:"tenant_id"`
	RuleType            RuleType      `json:"rule_type"`
	Condition           RuleCondition `json:"condition"`
	ScoreAdjustment     float64       `json:"score_adjustment"` // [-50, 50]
	Confidence          float64       `json:"confidence"`       // [0, 100]
	SourceFeedbackCount int           `json:"source_feedback_count"`
	SourcePatternID     uuid.UUID     `json:"source_pattern_id"`
	IsActive            bool          `json:"is_active"`
	CreatedAt           time.Time     `json:"created_at"`
	ExpiresAt           *time.Time    `json:"expires_at,omitempty"`
}

// ReputationCategory is the coarse trust class of a sender domain
type ReputationCategory string

const (
	ReputationUnknown    ReputationCategory = "unknown"
	ReputationMarketing  ReputationCategory = "marketing"
	ReputationTrusted    ReputationCategory = "trusted"
	ReputationSuspicious ReputationCategory = "suspicious"
)

// SenderReputation holds the per-domain feedback counters
type SenderReputation struct {
	TenantID    uuid.UUID          `json:"tenant_id"`
	Domain      string             `json:"domain"`
	SafeCount   int                `json:"safe_count"`
	ThreatCount int                `json:"threat_count"`
	SpamCount   int                `json:"spam_count"`
	Category    ReputationCategory `json:"category"`
	TrustScore  float64            `json:"trust_score"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ReputationDelta is applied to reputation counters in a single atomic statement
type ReputationDelta struct {
	Safe   int
	Threat int
	Spam   int
}

// DomainCount is a ranked aggregate row
type DomainCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// DailyCount is one day of a feedback trend
type DailyCount struct {
	Day             time.Time `json:"day"`
	FalsePositives  int       `json:"false_positives"`
	FalseNegatives  int       `json:"false_negatives"`
	ConfirmedThreat int       `json:"confirmed_threats"`
}

// FeedbackAnalytics is the tenant-level feedback dashboard
type FeedbackAnalytics struct {
	TenantID                uuid.UUID     `json:"tenant_id"`
	Total                   int           `json:"total"`
	FalsePositives          int           `json:"false_positives"`
	FalseNegatives          int           `json:"false_negatives"`
	ConfirmedThreats        int           `json:"confirmed_threats"`
	ActivePatterns          int           `json:"active_patterns"`
	ActiveRules             int           `json:"active_rules"`
	TopFalsePositiveDomains []DomainCount `json:"top_false_positive_domains"`
	TopFalseNegativeSenders []DomainCount `json:"top_false_negative_senders"`
	Trend                   []DailyCount  `json:"trend"`
}

// CrossTenantPattern is an anonymized aggregate across tenants
type CrossTenantPattern struct {
	PatternType      PatternType   `json:"pattern_type"`
	PatternValue     string        `json:"pattern_value"`
	FeedbackType     FeedbackClass `json:"feedback_type"`
	TenantCount      int           `json:"tenant_count"`
	TotalOccurrences int           `json:"total_occurrences"`
}
