package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/decision"
	"github.com/stoik/threat-engine/internal/ports"
	"go.uber.org/zap"
)

const (
	// maxDecisionScan bounds the decisions read for one analysis
	maxDecisionScan = 10000
	// profileHistory is how far back admin consistency profiles look
	profileHistory = 180 * 24 * time.Hour
)

// DecisionService learns from the way operators override verdicts
type DecisionService struct {
	store    ports.Store
	notifier ports.Notifier
	audit    ports.AuditSink
	metrics  ports.MetricsRecorder
	logger   *zap.Logger
	cfg      decision.Config

	now func() time.Time
}

// NewDecisionService creates a decision learning service
func NewDecisionService(
	store ports.Store,
	notifier ports.Notifier,
	auditSink ports.AuditSink,
	metrics ports.MetricsRecorder,
	logger *zap.Logger,
	cfg decision.Config,
) *DecisionService {
	return &DecisionService{
		store:    store,
		notifier: notifier,
		audit:    auditSink,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var (
	knownVerdicts = map[domain.AdminVerdict]bool{
		domain.VerdictPass:       true,
		domain.VerdictSuspicious: true,
		domain.VerdictQuarantine: true,
		domain.VerdictBlock:      true,
	}
	knownActions = map[domain.AdminAction]bool{
		domain.ActionRelease: true,
		domain.ActionBlock:   true,
		domain.ActionDelete:  true,
		domain.ActionConfirm: true,
	}
)

// RecordDecision stores an operator action on a verdict
func (s *DecisionService) RecordDecision(ctx context.Context, d *domain.AdminDecision) error {
	if d == nil {
		return domain.NewValidationError("decision is required")
	}
	if d.TenantID == uuid.Nil || d.VerdictID == uuid.Nil {
		return domain.NewValidationError("tenant id and verdict id are required")
	}
	if d.AdminID == "" {
		return domain.NewValidationError("admin id is required")
	}
	if !knownVerdicts[d.OriginalVerdict] {
		return domain.NewValidationError(fmt.Sprintf("unknown original verdict %q", d.OriginalVerdict))
	}
	if !knownActions[d.Action] {
		return domain.NewValidationError(fmt.Sprintf("unknown action %q", d.Action))
	}

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = s.now()
	}
	if err := s.store.InsertDecision(ctx, d); err != nil {
		return err
	}

	s.metrics.ObserveDecision(d.Action, d.IsOverride())
	audit(ctx, s.audit, s.logger, domain.AuditEvent{
		Action:   "admin_decision_recorded",
		TenantID: d.TenantID,
		Actor:    d.AdminID,
		Resource: "verdict:" + d.VerdictID.String(),
		Details: map[string]any{
			"decision_id":      d.ID.String(),
			"original_verdict": d.OriginalVerdict,
			"action":           d.Action,
			"override":         d.IsOverride(),
		},
		At: d.DecidedAt,
	})
	return nil
}

// RecordVerdictDecision records an operator action on a stored verdict,
// taking the original verdict and the snapshot from the verdict itself
func (s *DecisionService) RecordVerdictDecision(ctx context.Context, tenantID, verdictID uuid.UUID,
	adminID string, action domain.AdminAction, reason string) (*domain.AdminDecision, error) {
	rec, err := s.store.GetVerdict(ctx, tenantID, verdictID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.NewNotFoundError("verdict", verdictID.String())
	}

	d := &domain.AdminDecision{
		TenantID:        tenantID,
		VerdictID:       verdictID,
		AdminID:         adminID,
		OriginalVerdict: decision.VerdictFor(rec.Result.RiskLevel),
		Action:          action,
		Reason:          reason,
		Snapshot:        decision.SnapshotOf(*rec),
	}
	if err := s.RecordDecision(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// RecordOutcome marks released decisions on a verdict as later reported as phish.
// It returns how many decisions were updated.
func (s *DecisionService) RecordOutcome(ctx context.Context, tenantID, verdictID uuid.UUID, reportedAt time.Time) (int64, error) {
	if reportedAt.IsZero() {
		reportedAt = s.now()
	}
	n, err := s.store.MarkReportedAsPhish(ctx, tenantID, verdictID, reportedAt)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("released mail reported as phish",
			zap.String("tenant_id", tenantID.String()),
			zap.String("verdict_id", verdictID.String()),
			zap.Int64("decisions", n))
	}
	return n, nil
}

func (s *DecisionService) decisionsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]domain.AdminDecision, error) {
	decisions, err := s.store.DecisionsSince(ctx, tenantID, since, maxDecisionScan)
	if err != nil {
		return nil, fmt.Errorf("failed to load decisions: %w", err)
	}
	return decisions, nil
}

func (s *DecisionService) analysisWindow() time.Duration {
	if s.cfg.AnalysisWindow > 0 {
		return s.cfg.AnalysisWindow
	}
	return decision.DefaultConfig().AnalysisWindow
}

// AnalyzePatterns mines the tenant's recent overrides
func (s *DecisionService) AnalyzePatterns(ctx context.Context, tenantID uuid.UUID) (domain.PatternAnalysis, error) {
	window := decision.TrailingWindow(s.now(), s.analysisWindow())
	decisions, err := s.decisionsSince(ctx, tenantID, window.Start)
	if err != nil {
		return domain.PatternAnalysis{}, err
	}
	return decision.Analyze(tenantID, decisions, window, s.cfg), nil
}

// SuggestPolicyAdjustments proposes policy changes from the mined patterns
func (s *DecisionService) SuggestPolicyAdjustments(ctx context.Context, tenantID uuid.UUID) ([]domain.PolicySuggestion, error) {
	analysis, err := s.AnalyzePatterns(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return decision.Suggest(analysis, s.cfg), nil
}

// AutoTuneThresholds proposes and stores threshold adjustments.
// Proposals are only applied by ApplyThresholdAdjustment.
func (s *DecisionService) AutoTuneThresholds(ctx context.Context, tenantID uuid.UUID) (domain.AutoTuneResult, error) {
	now := s.now()
	window := s.cfg.TuningWindow
	if window <= 0 {
		window = decision.DefaultConfig().TuningWindow
	}
	decisions, err := s.decisionsSince(ctx, tenantID, now.Add(-window))
	if err != nil {
		return domain.AutoTuneResult{}, err
	}
	current, err := effectiveThresholds(ctx, s.store, tenantID)
	if err != nil {
		return domain.AutoTuneResult{}, fmt.Errorf("failed to load thresholds: %w", err)
	}

	result := decision.AutoTune(tenantID, decisions, current, now, s.cfg)
	for i := range result.Adjustments {
		if err := s.store.InsertAdjustment(ctx, &result.Adjustments[i]); err != nil {
			return domain.AutoTuneResult{}, err
		}
	}
	if len(result.Adjustments) > 0 {
		s.logger.Info("threshold adjustments proposed",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("count", len(result.Adjustments)),
			zap.Int("sample_size", result.SampleSize))
	}
	return result, nil
}

// ApplyThresholdAdjustment applies a proposed adjustment to the tenant's
// effective thresholds, keeping them as the rollback snapshot
func (s *DecisionService) ApplyThresholdAdjustment(ctx context.Context, tenantID, adjustmentID uuid.UUID, actor string) (*domain.ThresholdAdjustment, error) {
	adj, err := s.getAdjustment(ctx, tenantID, adjustmentID)
	if err != nil {
		return nil, err
	}
	if adj.Status != domain.AdjustmentProposed {
		return nil, domain.NewConflictError(fmt.Sprintf("threshold adjustment is %s", adj.Status))
	}

	current, err := effectiveThresholds(ctx, s.store, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	next, err := decision.ApplyAdjustment(current, *adj)
	if err != nil {
		return nil, err
	}

	now := s.now()
	adj.PreviousConfig = &current
	if err := s.store.ApplyAdjustment(ctx, adj, next, now); err != nil {
		return nil, err
	}
	adj.Status = domain.AdjustmentApplied
	adj.AppliedAt = &now

	audit(ctx, s.audit, s.logger, domain.AuditEvent{
		Action:   "threshold_adjustment_applied",
		TenantID: tenantID,
		Actor:    actor,
		Resource: "threshold_adjustment:" + adj.ID.String(),
		Details: map[string]any{
			"level":    adj.Level,
			"previous": adj.CurrentValue,
			"applied":  adj.SuggestedValue,
		},
		At: now,
	})
	return adj, nil
}

// RollbackThresholdAdjustment restores the thresholds an applied adjustment replaced
func (s *DecisionService) RollbackThresholdAdjustment(ctx context.Context, tenantID, adjustmentID uuid.UUID, actor string) (*domain.ThresholdAdjustment, error) {
	adj, err := s.getAdjustment(ctx, tenantID, adjustmentID)
	if err != nil {
		return nil, err
	}
	if adj.Status != domain.AdjustmentApplied {
		return nil, domain.NewConflictError(fmt.Sprintf("threshold adjustment is %s", adj.Status))
	}

	now := s.now()
	if err := s.store.RollbackAdjustment(ctx, adj, now); err != nil {
		return nil, err
	}
	adj.Status = domain.AdjustmentRolledBack

	audit(ctx, s.audit, s.logger, domain.AuditEvent{
		Action:   "threshold_adjustment_rolled_back",
		TenantID: tenantID,
		Actor:    actor,
		Resource: "threshold_adjustment:" + adj.ID.String(),
		Details:  map[string]any{"level": adj.Level},
		At:       now,
	})
	return adj, nil
}

func (s *DecisionService) getAdjustment(ctx context.Context, tenantID, id uuid.UUID) (*domain.ThresholdAdjustment, error) {
	adj, err := s.store.GetAdjustment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if adj == nil {
		return nil, domain.NewNotFoundError("threshold adjustment", id.String())
	}
	return adj, nil
}

// DetectDrift compares the last drift window with the one before it
func (s *DecisionService) DetectDrift(ctx context.Context, tenantID uuid.UUID) (domain.DriftReport, error) {
	w := s.cfg.DriftWindow
	if w <= 0 {
		w = decision.DefaultConfig().DriftWindow
	}
	baseline, comparison := decision.DriftWindows(s.now(), w)
	decisions, err := s.decisionsSince(ctx, tenantID, baseline.Start)
	if err != nil {
		return domain.DriftReport{}, err
	}

	report := decision.DetectDrift(tenantID, decisions, decisions, baseline, comparison, s.cfg)
	if report.HasDrift {
		notify(ctx, s.notifier, s.logger, domain.Notification{
			Kind:     domain.NotifyDriftDetected,
			TenantID: tenantID,
			Title:    fmt.Sprintf("%s drift detected (score %.2f)", report.DriftType, report.DriftScore),
			Details: map[string]any{
				"drift_type":           report.DriftType,
				"drift_score":          report.DriftScore,
				"override_rate_change": report.OverrideRateChange,
				"recommendation":       report.Recommendation,
			},
		})
	}
	return report, nil
}

// GetFalsePositiveRate is the share of recent decisions releasing flagged mail
func (s *DecisionService) GetFalsePositiveRate(ctx context.Context, tenantID uuid.UUID) (domain.RateEstimate, error) {
	decisions, err := s.decisionsSince(ctx, tenantID, s.now().Add(-s.analysisWindow()))
	if err != nil {
		return domain.RateEstimate{}, err
	}
	return decision.FalsePositiveRate(decisions), nil
}

// GetFalseNegativeRate is the share of recent decisions catching missed threats
func (s *DecisionService) GetFalseNegativeRate(ctx context.Context, tenantID uuid.UUID) (domain.RateEstimate, error) {
	decisions, err := s.decisionsSince(ctx, tenantID, s.now().Add(-s.analysisWindow()))
	if err != nil {
		return domain.RateEstimate{}, err
	}
	return decision.FalseNegativeRate(decisions), nil
}

// AdminActionPatterns profiles each admin and flags sudden changes of behavior.
// A store failure is logged and yields no profiles.
func (s *DecisionService) AdminActionPatterns(ctx context.Context, tenantID uuid.UUID) ([]domain.AdminConsistency, error) {
	now := s.now()
	decisions, err := s.decisionsSince(ctx, tenantID, now.Add(-profileHistory))
	if err != nil {
		s.logger.Warn("failed to profile admin actions",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return []domain.AdminConsistency{}, nil
	}

	profiles := decision.AdminProfiles(decisions, now, s.cfg)
	for _, p := range profiles {
		if !p.Anomalous {
			continue
		}
		notify(ctx, s.notifier, s.logger, domain.Notification{
			Kind:     domain.NotifyAdminAnomaly,
			TenantID: tenantID,
			Title:    fmt.Sprintf("Admin %s changed how they handle verdicts", p.AdminID),
			Details: map[string]any{
				"admin_id":               p.AdminID,
				"historical_consistency": p.HistoricalConsistency,
				"recent_consistency":     p.RecentConsistency,
			},
			At: now,
		})
	}
	return profiles, nil
}

// StartABTest starts a policy experiment
func (s *DecisionService) StartABTest(ctx context.Context, test *domain.PolicyABTest) error {
	if test == nil {
		return domain.NewValidationError("A/B test is required")
	}
	if test.TenantID == uuid.Nil {
		return domain.NewValidationError("tenant id is required")
	}
	if err := decision.ValidateABTest(*test); err != nil {
		return err
	}

	if test.ID == uuid.Nil {
		test.ID = uuid.New()
	}
	test.Status = domain.ABTestRunning
	test.StartedAt = s.now()
	test.EndedAt = nil
	if err := s.store.InsertPolicyTest(ctx, test); err != nil {
		return err
	}

	audit(ctx, s.audit, s.logger, domain.AuditEvent{
		Action:   "policy_ab_test_started",
		TenantID: test.TenantID,
		Resource: "policy_ab_test:" + test.ID.String(),
		Details:  map[string]any{"name": test.Name, "traffic_percent": test.TrafficPercent},
		At:       test.StartedAt,
	})
	return nil
}

// EvaluateABTest compares the cohorts of a policy experiment
func (s *DecisionService) EvaluateABTest(ctx context.Context, tenantID, testID uuid.UUID) (domain.ABTestResult, error) {
	test, err := s.getPolicyTest(ctx, tenantID, testID)
	if err != nil {
		return domain.ABTestResult{}, err
	}
	decisions, err := s.decisionsSince(ctx, tenantID, test.StartedAt)
	if err != nil {
		return domain.ABTestResult{}, err
	}
	return decision.EvaluateABTest(*test, decisions, s.cfg), nil
}

// StopABTest ends a policy experiment. Stopping a stopped test is a no-op.
func (s *DecisionService) StopABTest(ctx context.Context, tenantID, testID uuid.UUID) error {
	test, err := s.getPolicyTest(ctx, tenantID, testID)
	if err != nil {
		return err
	}
	if test.Status == domain.ABTestStopped {
		return nil
	}

	now := s.now()
	if err := s.store.StopPolicyTest(ctx, tenantID, testID, now); err != nil {
		return err
	}
	audit(ctx, s.audit, s.logger, domain.AuditEvent{
		Action:   "policy_ab_test_stopped",
		TenantID: tenantID,
		Resource: "policy_ab_test:" + testID.String(),
		At:       now,
	})
	return nil
}

func (s *DecisionService) getPolicyTest(ctx context.Context, tenantID, id uuid.UUID) (*domain.PolicyABTest, error) {
	test, err := s.store.GetPolicyTest(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if test == nil {
		return nil, domain.NewNotFoundError("policy A/B test", id.String())
	}
	return test, nil
}
