package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

// Get methods return (nil, nil) when the record does not exist.
// Write methods report duplicates and lost races through domain error codes.

// ModelRepository persists model versions, the active pointer and model A/B tests
type ModelRepository interface {
	// CreateModelVersion appends a version. Versions are immutable: an
	// existing version string yields an ALREADY_EXISTS error.
	CreateModelVersion(ctx context.Context, mv *domain.ModelVersion) error
	GetModelVersion(ctx context.Context, version string) (*domain.ModelVersion, error)
	ListModelVersions(ctx context.Context, limit int) ([]domain.ModelVersion, error)

	GetModelPointer(ctx context.Context) (domain.ModelPointer, error)
	// SwapModelPointer moves the pointer only if its generation still equals
	// expected, otherwise it returns a CONFLICT error
	SwapModelPointer(ctx context.Context, expected int64, active, previous string, at time.Time) (domain.ModelPointer, error)

	GetActiveModelTest(ctx context.Context) (*domain.ModelTest, error)
	// StartModelTest ends any running test and records t in one transaction
	StartModelTest(ctx context.Context, t *domain.ModelTest) error
	EndModelTests(ctx context.Context, at time.Time) (int64, error)
}

// ThresholdRepository persists per-tenant threshold configs.
// domain.GlobalTenant keys the global default.
type ThresholdRepository interface {
	GetThresholds(ctx context.Context, tenantID uuid.UUID) (*domain.ThresholdConfig, error)
	SaveThresholds(ctx context.Context, tenantID uuid.UUID, cfg domain.ThresholdConfig, at time.Time) error
}

// FeedbackRepository persists feedback events and everything learned from them
type FeedbackRepository interface {
	// InsertFeedbackEvent records the event unless (tenant, feedback id) was seen before
	InsertFeedbackEvent(ctx context.Context, ev *domain.FeedbackEvent, class domain.FeedbackClass) (inserted bool, err error)
	// RecordFeedback inserts the event and applies its counters atomically.
	// A replay applies nothing and returns FeedbackPending or FeedbackProcessed.
	RecordFeedback(ctx context.Context, w *domain.FeedbackWrite) (*domain.FeedbackRecord, error)
	MarkFeedbackProcessed(ctx context.Context, tenantID uuid.UUID, feedbackID string, at time.Time) error
	GetFeedbackEvent(ctx context.Context, tenantID uuid.UUID, feedbackID string) (*domain.FeedbackEvent, error)

	// IncrementReputation applies delta in a single upsert and returns the new counters
	IncrementReputation(ctx context.Context, tenantID uuid.UUID, senderDomain string, delta domain.ReputationDelta, at time.Time) (*domain.SenderReputation, error)
	// SetReputationCategory only applies when the stored category still equals from
	SetReputationCategory(ctx context.Context, tenantID uuid.UUID, senderDomain string, from, to domain.ReputationCategory, trust float64, at time.Time) (changed bool, err error)
	GetReputation(ctx context.Context, tenantID uuid.UUID, senderDomain string) (*domain.SenderReputation, error)

	// UpsertPattern creates the pattern or bumps its occurrence count and
	// confidence in one statement, returning the row after the write
	UpsertPattern(ctx context.Context, tenantID uuid.UUID, patternType domain.PatternType, value string, class domain.FeedbackClass, at time.Time) (*domain.FeedbackPattern, error)
	PromotablePatterns(ctx context.Context, tenantID uuid.UUID, minOccurrences int, minConfidence float64, limit int) ([]domain.FeedbackPattern, error)
	// DecayPatterns lowers the confidence of patterns not seen since staleBefore,
	// then deactivates those both below deactivateBelow and not seen since retireBefore
	DecayPatterns(ctx context.Context, staleBefore, retireBefore time.Time, step, floor, deactivateBelow float64) (decayed, deactivated int64, err error)

	// InsertRule is idempotent on (tenant, field, value)
	InsertRule(ctx context.Context, rule *domain.LearnedRule) (inserted bool, err error)
	ActiveRules(ctx context.Context, tenantID uuid.UUID, now time.Time, limit int) ([]domain.LearnedRule, error)
	ExpireRules(ctx context.Context, now time.Time) (int64, error)

	FeedbackClassCounts(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[domain.FeedbackClass]int, error)
	TopFeedbackDomains(ctx context.Context, tenantID uuid.UUID, class domain.FeedbackClass, since time.Time, limit int) ([]domain.DomainCount, error)
	TopFeedbackSenders(ctx context.Context, tenantID uuid.UUID, class domain.FeedbackClass, since time.Time, limit int) ([]domain.DomainCount, error)
	FeedbackSince(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.FeedbackEvent, []domain.FeedbackClass, error)
	CountActivePatterns(ctx context.Context, tenantID uuid.UUID) (int, error)
	CountActiveRules(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error)
	CrossTenantPatterns(ctx context.Context, minTenants, limit int) ([]domain.CrossTenantPattern, error)
}

// DecisionRepository persists admin decisions, threshold adjustments and policy A/B tests
type DecisionRepository interface {
	InsertDecision(ctx context.Context, d *domain.AdminDecision) error
	DecisionsSince(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.AdminDecision, error)
	// MarkReportedAsPhish flags released decisions on a verdict that was later reported
	MarkReportedAsPhish(ctx context.Context, tenantID, verdictID uuid.UUID, at time.Time) (int64, error)

	InsertAdjustment(ctx context.Context, adj *domain.ThresholdAdjustment) error
	GetAdjustment(ctx context.Context, tenantID, id uuid.UUID) (*domain.ThresholdAdjustment, error)
	// ApplyAdjustment writes the new thresholds and marks the adjustment applied in one transaction
	ApplyAdjustment(ctx context.Context, adj *domain.ThresholdAdjustment, next domain.ThresholdConfig, at time.Time) error
	// RollbackAdjustment restores the snapshot and marks the adjustment rolled back in one transaction
	RollbackAdjustment(ctx context.Context, adj *domain.ThresholdAdjustment, at time.Time) error

	InsertPolicyTest(ctx context.Context, t *domain.PolicyABTest) error
	GetPolicyTest(ctx context.Context, tenantID, id uuid.UUID) (*domain.PolicyABTest, error)
	StopPolicyTest(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error
}

// VerdictRepository persists verdicts with the inputs needed to replay them
type VerdictRepository interface {
	SaveVerdict(ctx context.Context, rec *domain.VerdictRecord) error
	GetVerdict(ctx context.Context, tenantID, verdictID uuid.UUID) (*domain.VerdictRecord, error)
	RecentVerdicts(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.VerdictRecord, error)
	// SetVerdictOutcome records ground truth on every verdict of a message
	SetVerdictOutcome(ctx context.Context, tenantID uuid.UUID, messageID string, outcome domain.Outcome) (int64, error)
}

// Store is the full persistence surface, implemented by the SQL adapter
type Store interface {
	ModelRepository
	ThresholdRepository
	FeedbackRepository
	DecisionRepository
	VerdictRepository

	Close() error
}
