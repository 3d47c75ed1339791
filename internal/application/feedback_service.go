package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
	"github.com/stoik/threat-engine/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LearningConfig holds the feedback learning tunables
type LearningConfig struct {
	AlertOccurrences int
	PromotionLimit   int
	RuleLimit        int
	AnalyticsWindow  time.Duration
	TrendDays        int
	TopLimit         int
	CrossTenantLimit int
}

// DefaultLearningConfig returns the tunables used when nothing is configured
func DefaultLearningConfig() LearningConfig {
	return LearningConfig{
		AlertOccurrences: 3,
		PromotionLimit:   50,
		RuleLimit:        500,
		AnalyticsWindow:  30 * 24 * time.Hour,
		TrendDays:        7,
		TopLimit:         5,
		CrossTenantLimit: 100,
	}
}

func (c LearningConfig) withDefaults() LearningConfig {
	d := DefaultLearningConfig()
	if c.AlertOccurrences <= 0 {
		c.AlertOccurrences = d.AlertOccurrences
	}
	if c.PromotionLimit <= 0 {
		c.PromotionLimit = d.PromotionLimit
	}
	if c.RuleLimit <= 0 {
		c.RuleLimit = d.RuleLimit
	}
	if c.AnalyticsWindow <= 0 {
		c.AnalyticsWindow = d.AnalyticsWindow
	}
	if c.TrendDays <= 0 {
		c.TrendDays = d.TrendDays
	}
	if c.TopLimit <= 0 {
		c.TopLimit = d.TopLimit
	}
	if c.CrossTenantLimit <= 0 {
		c.CrossTenantLimit = d.CrossTenantLimit
	}
	return c
}

// maxTrendEvents bounds the events read to build the daily trend
const maxTrendEvents = 10000

// FeedbackService learns sender reputation, patterns and rules from feedback
//
// Every shared counter is mutated by an atomic upsert in the store, category
// changes are compare-and-set, and rule insertion is idempotent on
// (tenant, field, value), so several instances can process feedback for the
// same tenant concurrently.
type FeedbackService struct {
	store    ports.Store
	notifier ports.Notifier
	audit    ports.AuditSink
	metrics  ports.MetricsRecorder
	logger   *zap.Logger
	cfg      LearningConfig

	promotions singleflight.Group
	now        func() time.Time
}

// NewFeedbackService creates a feedback learning service
func NewFeedbackService(
	store ports.Store,
	notifier ports.Notifier,
	auditSink ports.AuditSink,
	metrics ports.MetricsRecorder,
	logger *zap.Logger,
	cfg LearningConfig,
) *FeedbackService {
	return &FeedbackService{
		store:    store,
		notifier: notifier,
		audit:    auditSink,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessFeedback learns from one feedback event
//
// The event, its reputation delta and its pattern sightings commit together.
// Rule promotion, the reputation category and the verdict outcome follow and
// are all idempotent; the event is only marked processed once they succeed.
// Replaying a processed feedback id is reported as a duplicate and changes
// nothing, replaying one whose earlier run failed resumes it.
func (s *FeedbackService) ProcessFeedback(ctx context.Context, ev *domain.FeedbackEvent) (*domain.FeedbackResult, error) {
	if ev == nil {
		return nil, domain.NewValidationError("feedback event is required")
	}
	if ev.FeedbackID == "" {
		return nil, domain.NewValidationError("feedback id is required")
	}
	if ev.TenantID == uuid.Nil {
		return nil, domain.NewValidationError("tenant id is required").WithDetail("feedback_id", ev.FeedbackID)
	}
	class, err := learning.Classify(ev.FeedbackType, ev.OriginalVerdict)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = now
	}
	result := &domain.FeedbackResult{FeedbackID: ev.FeedbackID, Class: class}
	logger := s.logger.With(
		zap.String("feedback_id", ev.FeedbackID),
		zap.String("tenant_id", ev.TenantID.String()))

	senderDomain := learning.SenderDomain(ev.SenderDomain, ev.SenderEmail)
	candidates := learning.ExtractCandidates(*ev, class)
	rec, err := s.store.RecordFeedback(ctx, &domain.FeedbackWrite{
		Event:        ev,
		Class:        class,
		SenderDomain: senderDomain,
		Reputation:   learning.ReputationDeltaFor(ev.FeedbackType, class),
		Candidates:   candidates,
		At:           now,
	})
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case domain.FeedbackProcessed:
		result.Duplicate = true
		s.metrics.ObserveFeedback(class, true, 0)
		logger.Info("duplicate feedback ignored")
		return result, nil
	case domain.FeedbackPending:
		logger.Info("resuming unfinished feedback")
	default:
		for _, p := range rec.Patterns {
			if p.OccurrenceCount == s.cfg.AlertOccurrences {
				s.notifyEmerging(ctx, ev.TenantID, class, p, now)
			}
		}
	}
	result.PatternsExtracted = len(candidates)

	if senderDomain != "" {
		if err := s.updateCategory(ctx, ev.TenantID, senderDomain, rec.Reputation, now); err != nil {
			return nil, err
		}
		result.ReputationUpdated = true
	}

	created, err := s.promote(ctx, ev.TenantID)
	if err != nil {
		return nil, err
	}
	result.RulesCreated = created

	if ev.MessageID != "" {
		outcome := domain.OutcomeConfirmedThreat
		if class == domain.FeedbackFalsePositive {
			outcome = domain.OutcomeFalsePositive
		}
		if _, err := s.store.SetVerdictOutcome(ctx, ev.TenantID, ev.MessageID, outcome); err != nil {
			return nil, err
		}
	}

	if err := s.store.MarkFeedbackProcessed(ctx, ev.TenantID, ev.FeedbackID, now); err != nil {
		return nil, err
	}

	s.metrics.ObserveFeedback(class, false, created)
	logger.Info("feedback processed",
		zap.String("class", string(class)),
		zap.Int("patterns", result.PatternsExtracted),
		zap.Int("rules_created", created))
	return result, nil
}

func (s *FeedbackService) notifyEmerging(ctx context.Context, tenantID uuid.UUID, class domain.FeedbackClass, p domain.FeedbackPattern, now time.Time) {
	notify(ctx, s.notifier, s.logger, domain.Notification{
		Kind:     domain.NotifyEmergingPattern,
		TenantID: tenantID,
		Title:    fmt.Sprintf("Emerging %s pattern %q", class, p.PatternValue),
		Details: map[string]any{
			"pattern_type": p.PatternType,
			"occurrences":  p.OccurrenceCount,
			"confidence":   p.Confidence,
		},
		At: now,
	})
}

// updateCategory re-evaluates a sender's category from its counters.
// rep is nil on a resumed event, the counters are then read back.
// The write is conditional on the category it was evaluated from, so a
// concurrent evaluation on newer counters is never overwritten.
func (s *FeedbackService) updateCategory(ctx context.Context, tenantID uuid.UUID, senderDomain string,
	rep *domain.SenderReputation, now time.Time) error {
	if rep == nil {
		var err error
		if rep, err = s.store.GetReputation(ctx, tenantID, senderDomain); err != nil {
			return err
		}
		if rep == nil {
			return nil
		}
	}
	category, trust, changed := learning.EvaluateReputation(*rep)
	if !changed {
		return nil
	}
	applied, err := s.store.SetReputationCategory(ctx, tenantID, senderDomain, rep.Category, category, trust, now)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Debug("sender reputation changed concurrently",
			zap.String("tenant_id", tenantID.String()),
			zap.String("domain", senderDomain))
		return nil
	}
	s.logger.Info("sender reputation changed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("domain", senderDomain),
		zap.String("from", string(rep.Category)),
		zap.String("to", string(category)),
		zap.Float64("trust", trust))
	return nil
}

// promote turns the tenant's promotable patterns into rules.
//
// Each caller scans after its own sightings committed, so no promotable
// pattern is missed. Concurrent inserts of one pattern's rule share a
// single call, and only the caller that ran it counts the rule it created.
func (s *FeedbackService) promote(ctx context.Context, tenantID uuid.UUID) (int, error) {
	patterns, err := s.store.PromotablePatterns(ctx, tenantID,
		learning.PromotionMinOccurrences, learning.PromotionMinConfidence, s.cfg.PromotionLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to promote patterns: %w", err)
	}

	now := s.now()
	created := 0
	for _, p := range patterns {
		rule, ok := learning.RuleFromPattern(p, now)
		if !ok {
			continue
		}
		key := tenantID.String() + "|" + string(rule.Condition.Field) + "|" + rule.Condition.Value
		ran := false
		v, err, _ := s.promotions.Do(key, func() (any, error) {
			ran = true
			return s.store.InsertRule(ctx, &rule)
		})
		if err != nil {
			return created, fmt.Errorf("failed to promote patterns: %w", err)
		}
		if !ran || !v.(bool) {
			continue
		}
		created++

		details := map[string]any{
			"rule_id":          rule.ID.String(),
			"rule_type":        rule.RuleType,
			"field":            rule.Condition.Field,
			"value":            rule.Condition.Value,
			"score_adjustment": rule.ScoreAdjustment,
			"confidence":       rule.Confidence,
		}
		audit(ctx, s.audit, s.logger, domain.AuditEvent{
			Action:   "learned_rule_created",
			TenantID: tenantID,
			Resource: "learned_rule",
			Details:  details,
			At:       now,
		})
		notify(ctx, s.notifier, s.logger, domain.Notification{
			Kind:     domain.NotifyRuleCreated,
			TenantID: tenantID,
			Title:    fmt.Sprintf("New %s rule on %s %q", rule.RuleType, rule.Condition.Field, rule.Condition.Value),
			Details:  details,
			At:       now,
		})
	}
	return created, nil
}

// GetApplicableRules returns the tenant's active rules matching a sender and its links
func (s *FeedbackService) GetApplicableRules(ctx context.Context, tenantID uuid.UUID, senderDomain string, urls []string) ([]domain.LearnedRule, error) {
	now := s.now()
	rules, err := s.store.ActiveRules(ctx, tenantID, now, s.cfg.RuleLimit)
	if err != nil {
		return nil, err
	}
	env := domain.Envelope{SenderDomain: senderDomain, URLs: urls}
	return learning.ApplicableRules(rules, env, now), nil
}

// CalculateRuleAdjustment combines rules into one bounded score correction
func (s *FeedbackService) CalculateRuleAdjustment(rules []domain.LearnedRule) domain.RuleAdjustment {
	return learning.CalculateRuleAdjustment(rules)
}

// GetFeedback returns a recorded feedback event
func (s *FeedbackService) GetFeedback(ctx context.Context, tenantID uuid.UUID, feedbackID string) (*domain.FeedbackEvent, error) {
	ev, err := s.store.GetFeedbackEvent(ctx, tenantID, feedbackID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, domain.NewNotFoundError("feedback", feedbackID)
	}
	return ev, nil
}

// SweepResult counts what one maintenance sweep changed
type SweepResult struct {
	Decayed      int64 `json:"decayed"`
	Deactivated  int64 `json:"deactivated"`
	RulesExpired int64 `json:"rules_expired"`
}

// SweepPatterns decays stale patterns and expires old rules across tenants
func (s *FeedbackService) SweepPatterns(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var res SweepResult

	decayed, deactivated, err := s.store.DecayPatterns(ctx,
		now.Add(-learning.PatternDecayAfter), now.Add(-learning.PatternRetireAfter),
		learning.PatternDecayStep, learning.PatternDecayFloor, learning.PatternDeactivateBelow)
	if err != nil {
		return res, err
	}
	res.Decayed, res.Deactivated = decayed, deactivated

	if res.RulesExpired, err = s.store.ExpireRules(ctx, now); err != nil {
		return res, err
	}

	s.logger.Info("pattern sweep finished",
		zap.Int64("decayed", res.Decayed),
		zap.Int64("deactivated", res.Deactivated),
		zap.Int64("rules_expired", res.RulesExpired))
	return res, nil
}

// FeedbackAnalytics builds the tenant's feedback dashboard.
// Store failures are logged and leave the affected figures at zero.
func (s *FeedbackService) FeedbackAnalytics(ctx context.Context, tenantID uuid.UUID) domain.FeedbackAnalytics {
	now := s.now()
	since := now.Add(-s.cfg.AnalyticsWindow)
	logger := s.logger.With(zap.String("tenant_id", tenantID.String()))

	out := domain.FeedbackAnalytics{
		TenantID:                tenantID,
		TopFalsePositiveDomains: []domain.DomainCount{},
		TopFalseNegativeSenders: []domain.DomainCount{},
	}

	if counts, err := s.store.FeedbackClassCounts(ctx, tenantID, since); err != nil {
		logger.Warn("failed to count feedback", zap.Error(err))
	} else {
		out.FalsePositives = counts[domain.FeedbackFalsePositive]
		out.FalseNegatives = counts[domain.FeedbackFalseNegative]
		out.ConfirmedThreats = counts[domain.FeedbackConfirmedThreat]
		out.Total = out.FalsePositives + out.FalseNegatives + out.ConfirmedThreats
	}

	if n, err := s.store.CountActivePatterns(ctx, tenantID); err != nil {
		logger.Warn("failed to count active patterns", zap.Error(err))
	} else {
		out.ActivePatterns = n
	}
	if n, err := s.store.CountActiveRules(ctx, tenantID, now); err != nil {
		logger.Warn("failed to count active rules", zap.Error(err))
	} else {
		out.ActiveRules = n
	}

	if top, err := s.store.TopFeedbackDomains(ctx, tenantID, domain.FeedbackFalsePositive, since, s.cfg.TopLimit); err != nil {
		logger.Warn("failed to rank false positive domains", zap.Error(err))
	} else {
		out.TopFalsePositiveDomains = top
	}
	if top, err := s.store.TopFeedbackSenders(ctx, tenantID, domain.FeedbackFalseNegative, since, s.cfg.TopLimit); err != nil {
		logger.Warn("failed to rank false negative senders", zap.Error(err))
	} else {
		out.TopFalseNegativeSenders = top
	}

	out.Trend = s.trend(ctx, tenantID, now, logger)
	return out
}

// trend buckets the trailing days of feedback, oldest day first
func (s *FeedbackService) trend(ctx context.Context, tenantID uuid.UUID, now time.Time, logger *zap.Logger) []domain.DailyCount {
	today := now.Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(s.cfg.TrendDays - 1))

	days := make([]domain.DailyCount, s.cfg.TrendDays)
	for i := range days {
		days[i].Day = start.AddDate(0, 0, i)
	}

	events, classes, err := s.store.FeedbackSince(ctx, tenantID, start, maxTrendEvents)
	if err != nil {
		logger.Warn("failed to load feedback trend", zap.Error(err))
		return days
	}
	for i, ev := range events {
		idx := int(ev.ReceivedAt.UTC().Sub(start) / (24 * time.Hour))
		if idx < 0 || idx >= len(days) {
			continue
		}
		switch classes[i] {
		case domain.FeedbackFalsePositive:
			days[idx].FalsePositives++
		case domain.FeedbackFalseNegative:
			days[idx].FalseNegatives++
		case domain.FeedbackConfirmedThreat:
			days[idx].ConfirmedThreat++
		}
	}
	return days
}

// CrossTenantPatterns lists pattern values reported by at least minTenants
// tenants. Only counts leave the tenants; the read is audited.
func (s *FeedbackService) CrossTenantPatterns(ctx context.Context, minTenants int, actor string) ([]domain.CrossTenantPattern, error) {
	if minTenants < 2 {
		return nil, domain.NewValidationError(fmt.Sprintf("cross-tenant aggregation needs at least 2 tenants, got %d", minTenants))
	}
	patterns, err := s.store.CrossTenantPatterns(ctx, minTenants, s.cfg.CrossTenantLimit)
	if err != nil {
		return nil, err
	}

	audit(ctx, s.audit, s.logger, domain.AuditEvent{
		Action:   "cross_tenant_patterns_read",
		TenantID: domain.GlobalTenant,
		Actor:    actor,
		Resource: "feedback_patterns",
		Details:  map[string]any{"min_tenants": minTenants, "results": len(patterns)},
		At:       s.now(),
	})
	return patterns, nil
}
