package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/explain"
	"github.com/stoik/threat-engine/internal/ports"
	"go.uber.org/zap"
)

// maxSummaryVerdicts bounds the verdicts aggregated into an executive summary
const maxSummaryVerdicts = 50000

// ExplanationService renders stored verdicts. It never writes.
type ExplanationService struct {
	store     ports.Store
	explainer *explain.Explainer
	logger    *zap.Logger

	now func() time.Time
}

// NewExplanationService creates an explanation service
func NewExplanationService(store ports.Store, explainer *explain.Explainer, logger *zap.Logger) *ExplanationService {
	return &ExplanationService{
		store:     store,
		explainer: explainer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExplanationService) verdict(ctx context.Context, tenantID, verdictID uuid.UUID) (*domain.VerdictRecord, error) {
	rec, err := s.store.GetVerdict(ctx, tenantID, verdictID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.NewNotFoundError("verdict", verdictID.String())
	}
	return rec, nil
}

// model returns the version that produced a verdict
func (s *ExplanationService) model(ctx context.Context, version string) (*domain.ModelVersion, error) {
	mv, err := s.store.GetModelVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, domain.NewNotFoundError("model version", version)
	}
	return mv, nil
}

// Explain renders a stored verdict for an audience
func (s *ExplanationService) Explain(ctx context.Context, tenantID, verdictID uuid.UUID,
	audience domain.Audience, level domain.DetailLevel) (domain.Explanation, error) {
	if err := explain.ValidateRequest(audience, level); err != nil {
		return domain.Explanation{}, err
	}
	rec, err := s.verdict(ctx, tenantID, verdictID)
	if err != nil {
		return domain.Explanation{}, err
	}
	return s.explainer.Explain(*rec, audience, level)
}

// ExplainPrediction renders a fresh prediction that may not be stored yet
func (s *ExplanationService) ExplainPrediction(result domain.PredictionResult, features domain.FeatureVector,
	thresholds domain.ThresholdConfig, indicators []domain.FiredIndicator,
	audience domain.Audience, level domain.DetailLevel) (domain.Explanation, error) {
	rec := domain.VerdictRecord{
		Result:     result,
		Features:   features,
		Thresholds: thresholds,
		Indicators: indicators,
		Outcome:    domain.OutcomeUnknown,
	}
	return s.explainer.Explain(rec, audience, level)
}

// RiskBreakdown splits a verdict's score by category
func (s *ExplanationService) RiskBreakdown(ctx context.Context, tenantID, verdictID uuid.UUID) (domain.RiskBreakdown, error) {
	rec, err := s.verdict(ctx, tenantID, verdictID)
	if err != nil {
		return domain.RiskBreakdown{}, err
	}
	mv, err := s.model(ctx, rec.Result.ModelVersion)
	if err != nil {
		return domain.RiskBreakdown{}, err
	}
	return explain.Breakdown(*rec, mv.Weights), nil
}

// Counterfactuals lists minimal changes that would have let the mail through
func (s *ExplanationService) Counterfactuals(ctx context.Context, tenantID, verdictID uuid.UUID) ([]domain.Counterfactual, error) {
	rec, err := s.verdict(ctx, tenantID, verdictID)
	if err != nil {
		return nil, err
	}
	mv, err := s.model(ctx, rec.Result.ModelVersion)
	if err != nil {
		return nil, err
	}
	return s.explainer.Counterfactuals(*rec, mv), nil
}

// SimilarThreats finds the tenant's recent verdicts sharing signals with this one.
// A failing history lookup yields an empty list.
func (s *ExplanationService) SimilarThreats(ctx context.Context, tenantID, verdictID uuid.UUID) ([]domain.SimilarThreat, error) {
	rec, err := s.verdict(ctx, tenantID, verdictID)
	if err != nil {
		return nil, err
	}

	since := s.now().AddDate(0, 0, -explain.SimilarLookback)
	history, err := s.store.RecentVerdicts(ctx, tenantID, since, explain.SimilarScanSize)
	if err != nil {
		s.logger.Warn("failed to load verdict history",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return []domain.SimilarThreat{}, nil
	}
	return explain.SimilarThreats(*rec, history), nil
}

// DetectionTimeline reconstructs how a verdict was reached
func (s *ExplanationService) DetectionTimeline(ctx context.Context, tenantID, verdictID uuid.UUID) ([]domain.TimelineEvent, error) {
	rec, err := s.verdict(ctx, tenantID, verdictID)
	if err != nil {
		return nil, err
	}
	return explain.Timeline(*rec), nil
}

// ExecutiveSummary aggregates the tenant's verdicts over a period such as "7 days"
func (s *ExplanationService) ExecutiveSummary(ctx context.Context, tenantID uuid.UUID, period string) (domain.ExecutiveSummary, error) {
	window, err := explain.ParsePeriod(period, s.now())
	if err != nil {
		return domain.ExecutiveSummary{}, err
	}
	records, err := s.store.RecentVerdicts(ctx, tenantID, window.Start, maxSummaryVerdicts)
	if err != nil {
		return domain.ExecutiveSummary{}, err
	}
	return explain.Summarize(tenantID, period, window, records), nil
}
