package application

import (
	"context"
	"fmt"
	"hash/fnv"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
	"github.com/stoik/threat-engine/internal/domain/scoring"
	"github.com/stoik/threat-engine/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ScoringConfig holds the scoring service tunables
type ScoringConfig struct {
	MaxBatchSize int
	RuleLimit    int
	ListLimit    int
	// PointerCheckInterval is how long a snapshot is served before the
	// persisted model pointer is compared against it again
	PointerCheckInterval time.Duration
}

// DefaultScoringConfig returns the tunables used when nothing is configured
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{MaxBatchSize: 100, RuleLimit: 500, ListLimit: 100, PointerCheckInterval: 5 * time.Second}
}

// modelSnapshot is everything a prediction reads about the model state.
// It is replaced as a whole, never mutated.
type modelSnapshot struct {
	pointer domain.ModelPointer
	active  *domain.ModelVersion
	test    *domain.ModelTest
	variant *domain.ModelVersion
}

// ScoringService issues verdicts and manages the model lifecycle
//
// Predictions load the model snapshot once, so a concurrent activation never
// mixes two versions inside one verdict. Lifecycle writes go to the store
// first (compare-and-swap on the model pointer), then the cache is flushed,
// then the snapshot is swapped. Changes made by other instances are picked
// up within PointerCheckInterval.
type ScoringService struct {
	store   ports.Store
	engine  *scoring.Engine
	cache   ports.PredictionCache
	audit   ports.AuditSink
	metrics ports.MetricsRecorder
	logger  *zap.Logger
	cfg     ScoringConfig

	snapshot  atomic.Pointer[modelSnapshot]
	checkedAt atomic.Int64 // unix nanos of the last pointer check
	mu        sync.Mutex   // serializes lifecycle writes and reloads of this process
	fills     singleflight.Group
	now       func() time.Time
}

// NewScoringService creates a scoring service. Call Refresh before serving.
func NewScoringService(
	store ports.Store,
	engine *scoring.Engine,
	cache ports.PredictionCache,
	auditSink ports.AuditSink,
	metrics ports.MetricsRecorder,
	logger *zap.Logger,
	cfg ScoringConfig,
) *ScoringService {
	d := DefaultScoringConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = d.MaxBatchSize
	}
	if cfg.RuleLimit <= 0 {
		cfg.RuleLimit = d.RuleLimit
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = d.ListLimit
	}
	if cfg.PointerCheckInterval <= 0 {
		cfg.PointerCheckInterval = d.PointerCheckInterval
	}
	return &ScoringService{
		store:   store,
		engine:  engine,
		cache:   cache,
		audit:   auditSink,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Refresh reloads the model snapshot from the store.
// An empty store gets the default model deployed and activated.
func (s *ScoringService) Refresh(ctx context.Context) error {
	ptr, err := s.store.GetModelPointer(ctx)
	if err != nil {
		return fmt.Errorf("failed to read model pointer: %w", err)
	}
	if ptr.ActiveVersion == "" {
		if err := s.bootstrap(ctx, ptr); err != nil {
			return err
		}
		if ptr, err = s.store.GetModelPointer(ctx); err != nil {
			return fmt.Errorf("failed to read model pointer: %w", err)
		}
	}
	return s.load(ctx, ptr)
}

func (s *ScoringService) bootstrap(ctx context.Context, ptr domain.ModelPointer) error {
	now := s.now()
	mv := &domain.ModelVersion{
		Version:     domain.DefaultModelVersion,
		Weights:     domain.DefaultWeights(),
		Calibration: domain.Calibration{A: 1, B: 0},
		TrainedAt:   now,
		CreatedAt:   now,
	}
	if err := s.store.CreateModelVersion(ctx, mv); err != nil && !domain.IsAlreadyExists(err) {
		return fmt.Errorf("failed to deploy default model: %w", err)
	}
	// another instance may have bootstrapped first
	if _, err := s.store.SwapModelPointer(ctx, ptr.Generation, mv.Version, "", now); err != nil && !domain.IsConflict(err) {
		return fmt.Errorf("failed to activate default model: %w", err)
	}
	s.logger.Info("bootstrapped default model", zap.String("version", mv.Version))
	return nil
}

func (s *ScoringService) load(ctx context.Context, ptr domain.ModelPointer) error {
	active, err := s.store.GetModelVersion(ctx, ptr.ActiveVersion)
	if err != nil {
		return fmt.Errorf("failed to load active model: %w", err)
	}
	if active == nil {
		return domain.NewNotFoundError("model version", ptr.ActiveVersion)
	}

	snap := &modelSnapshot{pointer: ptr, active: active}
	test, err := s.store.GetActiveModelTest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load model test: %w", err)
	}
	if test != nil {
		variant, err := s.store.GetModelVersion(ctx, test.VariantVersion)
		if err != nil {
			return fmt.Errorf("failed to load variant model: %w", err)
		}
		if variant != nil {
			snap.test, snap.variant = test, variant
		} else {
			s.logger.Warn("model test references an unknown version, ignoring it",
				zap.String("variant", test.VariantVersion))
		}
	}

	s.snapshot.Store(snap)
	s.checkedAt.Store(s.now().UnixNano())
	return nil
}

func (s *ScoringService) current(ctx context.Context) (*modelSnapshot, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
		return s.snapshot.Load(), nil
	}
	if s.now().Sub(time.Unix(0, s.checkedAt.Load())) < s.cfg.PointerCheckInterval {
		return snap, nil
	}
	s.checkPointer(ctx, snap)
	return s.snapshot.Load(), nil
}

// checkPointer reloads the snapshot when another instance moved the model
// pointer or changed the A/B test. Failures keep the current snapshot.
// A lifecycle write in progress here reloads on its own, so the check is skipped.
func (s *ScoringService) checkPointer(ctx context.Context, snap *modelSnapshot) {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()
	s.checkedAt.Store(s.now().UnixNano())

	ptr, err := s.store.GetModelPointer(ctx)
	if err != nil {
		s.logger.Warn("failed to check model pointer", zap.Error(err))
		return
	}
	test, err := s.store.GetActiveModelTest(ctx)
	if err != nil {
		s.logger.Warn("failed to check model test", zap.Error(err))
		return
	}
	if ptr.Generation == snap.pointer.Generation && sameTest(test, snap.test) {
		return
	}

	if err := s.cache.Flush(ctx); err != nil {
		s.logger.Warn("failed to flush prediction cache", zap.Error(err))
	}
	if err := s.load(ctx, ptr); err != nil {
		s.logger.Warn("failed to reload model snapshot", zap.Error(err))
		return
	}
	s.logger.Info("model snapshot reloaded",
		zap.String("version", ptr.ActiveVersion),
		zap.Int64("generation", ptr.Generation))
}

func sameTest(a, b *domain.ModelTest) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func validateFeatures(fv *domain.FeatureVector) error {
	if fv == nil {
		return domain.NewValidationError("feature vector is required")
	}
	if fv.MessageID == "" {
		return domain.NewValidationError("message id is required")
	}
	if fv.TenantID == uuid.Nil {
		return domain.NewValidationError("tenant id is required").WithDetail("message_id", fv.MessageID)
	}
	return nil
}

// routesToVariant places a message in the test cohort deterministically
func routesToVariant(messageID string, percent float64) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(messageID))
	return float64(h.Sum32()%100) < percent
}

// Predict scores one feature vector and persists the verdict
func (s *ScoringService) Predict(ctx context.Context, fv *domain.FeatureVector) (*domain.PredictionResult, error) {
	if err := validateFeatures(fv); err != nil {
		return nil, err
	}
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.predict(ctx, fv, snap)
}

// BatchPredict scores up to MaxBatchSize vectors against one model snapshot.
// Every vector is validated before any is scored.
func (s *ScoringService) BatchPredict(ctx context.Context, fvs []domain.FeatureVector) ([]domain.PredictionResult, error) {
	if len(fvs) > s.cfg.MaxBatchSize {
		return nil, domain.NewValidationError(fmt.Sprintf("batch of %d exceeds the maximum of %d", len(fvs), s.cfg.MaxBatchSize)).
			WithDetail("max_batch_size", s.cfg.MaxBatchSize)
	}
	for i := range fvs {
		if err := validateFeatures(&fvs[i]); err != nil {
			return nil, err
		}
	}

	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]domain.PredictionResult, 0, len(fvs))
	for i := range fvs {
		res, err := s.predict(ctx, &fvs[i], snap)
		if err != nil {
			return nil, fmt.Errorf("failed to score message %s: %w", fvs[i].MessageID, err)
		}
		results = append(results, *res)
	}
	return results, nil
}

func (s *ScoringService) predict(ctx context.Context, fv *domain.FeatureVector, snap *modelSnapshot) (*domain.PredictionResult, error) {
	now := s.now()
	model, variant := snap.active, ""
	if snap.test != nil && routesToVariant(fv.MessageID, snap.test.TrafficPercent) {
		model, variant = snap.variant, snap.variant.Version
	}

	breakdown, cached := s.score(ctx, fv, model)

	thresholds, err := effectiveThresholds(ctx, s.store, fv.TenantID)
	if err != nil {
		s.logger.Warn("failed to load thresholds, using defaults",
			zap.String("tenant_id", fv.TenantID.String()), zap.Error(err))
	}
	adjustment := s.ruleAdjustment(ctx, fv, now)

	score := clamp(breakdown.Score+adjustment.Adjustment/100, 0, 1)
	level := thresholds.Level(score)
	result := &domain.PredictionResult{
		VerdictID:         uuid.New(),
		MessageID:         fv.MessageID,
		TenantID:          fv.TenantID,
		ThreatScore:       round(score, 4),
		BaseScore:         round(breakdown.Score, 4),
		RawCombined:       round(breakdown.RawCombined, 4),
		Confidence:        round(breakdown.Confidence, 2),
		ThreatType:        scoring.ThreatTypeOf(*breakdown, level),
		RiskLevel:         level,
		ModelVersion:      model.Version,
		ABTestVariant:     variant,
		FeatureImportance: breakdown.FeatureImportance,
		RawScores:         breakdown.RawScores,
		RuleAdjustment:    adjustment,
		PredictedAt:       now,
	}

	rec := &domain.VerdictRecord{
		Result:     *result,
		Features:   *fv,
		Thresholds: thresholds,
		Indicators: breakdown.Indicators,
		Outcome:    domain.OutcomeUnknown,
		CreatedAt:  now,
	}
	if err := s.store.SaveVerdict(ctx, rec); err != nil {
		// the verdict is still returned, it just cannot be explained later
		s.logger.Error("failed to persist verdict",
			zap.String("verdict_id", result.VerdictID.String()),
			zap.String("message_id", fv.MessageID),
			zap.Error(err))
	}

	s.metrics.ObservePrediction(result, cached)
	if level == domain.RiskCritical || level == domain.RiskHigh {
		s.logger.Info("high risk verdict",
			zap.String("message_id", fv.MessageID),
			zap.String("tenant_id", fv.TenantID.String()),
			zap.String("threat_type", string(result.ThreatType)),
			zap.String("risk_level", string(level)),
			zap.Float64("threat_score", result.ThreatScore))
	}
	return result, nil
}

// score returns the engine output for fv under model, from the cache when possible.
// Concurrent misses on the same key are computed once. The breakdown is a
// private copy: cached and shared values are never handed to callers.
func (s *ScoringService) score(ctx context.Context, fv *domain.FeatureVector, model *domain.ModelVersion) (*domain.ScoreBreakdown, bool) {
	key := fv.Fingerprint() + ":" + model.Version
	if b, ok := s.cache.Get(ctx, key); ok {
		return cloneBreakdown(b), true
	}
	v, _, _ := s.fills.Do(key, func() (any, error) {
		b := s.engine.Score(fv, model)
		s.cache.Set(ctx, key, &b)
		return &b, nil
	})
	return cloneBreakdown(v.(*domain.ScoreBreakdown)), false
}

func cloneBreakdown(b *domain.ScoreBreakdown) *domain.ScoreBreakdown {
	out := *b
	out.RawScores = maps.Clone(b.RawScores)
	out.FeatureImportance = slices.Clone(b.FeatureImportance)
	out.Indicators = slices.Clone(b.Indicators)
	return &out
}

// ruleAdjustment applies the tenant's learned rules. Rule lookup failures
// leave the base score untouched.
func (s *ScoringService) ruleAdjustment(ctx context.Context, fv *domain.FeatureVector, now time.Time) domain.RuleAdjustment {
	rules, err := s.store.ActiveRules(ctx, fv.TenantID, now, s.cfg.RuleLimit)
	if err != nil {
		s.logger.Warn("failed to load learned rules, scoring without them",
			zap.String("tenant_id", fv.TenantID.String()), zap.Error(err))
		return domain.RuleAdjustment{}
	}
	return learning.CalculateRuleAdjustment(learning.ApplicableRules(rules, fv.Envelope, now))
}

// DeployModel appends a new immutable version without activating it
func (s *ScoringService) DeployModel(ctx context.Context, mv domain.ModelVersion) (domain.ModelEvent, error) {
	if mv.Version == "" {
		return domain.ModelEvent{}, domain.NewValidationError("model version is required")
	}
	weights, err := domain.NormalizeWeights(mv.Weights)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if err := validateCalibration(mv.Calibration); err != nil {
		return domain.ModelEvent{}, err
	}

	now := s.now()
	mv.Weights = weights
	mv.CreatedAt = now
	if mv.TrainedAt.IsZero() {
		mv.TrainedAt = now
	}
	if err := s.store.CreateModelVersion(ctx, &mv); err != nil {
		return domain.ModelEvent{}, err
	}

	ev := domain.ModelEvent{Type: domain.EventModelDeployed, Version: mv.Version, At: now}
	s.emit(ctx, ev)
	return ev, nil
}

// ActivateModel makes version the active model
func (s *ScoringService) ActivateModel(ctx context.Context, version string) (domain.ModelEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mv, err := s.store.GetModelVersion(ctx, version)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if mv == nil {
		return domain.ModelEvent{}, domain.NewNotFoundError("model version", version)
	}
	ptr, err := s.store.GetModelPointer(ctx)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if ptr.ActiveVersion == version {
		return domain.ModelEvent{
			Type:            domain.EventModelActivated,
			Version:         version,
			PreviousVersion: ptr.PreviousVersion,
			Detail:          "already active",
			At:              s.now(),
		}, nil
	}
	return s.swap(ctx, ptr, version, ptr.ActiveVersion, domain.EventModelActivated, "")
}

// Rollback reactivates toVersion, or the previously active version when
// toVersion is empty. An unknown version is rejected and nothing changes.
func (s *ScoringService) Rollback(ctx context.Context, toVersion string) (domain.ModelEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ptr, err := s.store.GetModelPointer(ctx)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if toVersion == "" {
		if ptr.PreviousVersion == "" {
			return domain.ModelEvent{}, domain.NewValidationError("no previous model version to roll back to")
		}
		toVersion = ptr.PreviousVersion
	}
	mv, err := s.store.GetModelVersion(ctx, toVersion)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if mv == nil {
		return domain.ModelEvent{}, domain.NewNotFoundError("model version", toVersion)
	}
	if toVersion == ptr.ActiveVersion {
		return domain.ModelEvent{}, domain.NewValidationError(fmt.Sprintf("model version %s is already active", toVersion))
	}
	return s.swap(ctx, ptr, toVersion, ptr.ActiveVersion, domain.EventModelRolledBack, "")
}

// swap moves the pointer, flushes the cache and reloads the snapshot.
// The caller holds s.mu.
func (s *ScoringService) swap(ctx context.Context, ptr domain.ModelPointer, active, previous string,
	typ domain.ModelEventType, detail string) (domain.ModelEvent, error) {
	now := s.now()
	next, err := s.store.SwapModelPointer(ctx, ptr.Generation, active, previous, now)
	if err != nil {
		if domain.IsConflict(err) {
			if rerr := s.Refresh(ctx); rerr != nil {
				s.logger.Warn("failed to refresh model snapshot after conflict", zap.Error(rerr))
			}
		}
		return domain.ModelEvent{}, err
	}

	if err := s.cache.Flush(ctx); err != nil {
		// entries are keyed by version, a stale one can never be served for the new model
		s.logger.Warn("failed to flush prediction cache", zap.Error(err))
	}
	if err := s.load(ctx, next); err != nil {
		return domain.ModelEvent{}, err
	}

	ev := domain.ModelEvent{Type: typ, Version: active, PreviousVersion: previous, Detail: detail, At: now}
	s.emit(ctx, ev)
	return ev, nil
}

// UpdateModelWeights derives a new version from the active one with new
// weights, then deploys and activates it
func (s *ScoringService) UpdateModelWeights(ctx context.Context, weights map[domain.Category]float64) (domain.ModelEvent, error) {
	normalized, err := domain.NormalizeWeights(weights)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	return s.derive(ctx, "w", domain.EventWeightsUpdated, func(mv *domain.ModelVersion) {
		mv.Weights = normalized
	})
}

// UpdateCalibration derives a new version from the active one with a new
// calibration, then deploys and activates it
func (s *ScoringService) UpdateCalibration(ctx context.Context, cal domain.Calibration) (domain.ModelEvent, error) {
	if err := validateCalibration(cal); err != nil {
		return domain.ModelEvent{}, err
	}
	return s.derive(ctx, "c", domain.EventCalibrationUpdated, func(mv *domain.ModelVersion) {
		mv.Calibration = cal
	})
}

func validateCalibration(c domain.Calibration) error {
	for _, v := range []float64{c.A, c.B} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.NewValidationError("calibration parameters must be finite")
		}
	}
	return nil
}

const maxDerivedVersions = 1000

func (s *ScoringService) derive(ctx context.Context, suffix string, typ domain.ModelEventType, change func(*domain.ModelVersion)) (domain.ModelEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ptr, err := s.store.GetModelPointer(ctx)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	base, err := s.store.GetModelVersion(ctx, ptr.ActiveVersion)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if base == nil {
		return domain.ModelEvent{}, domain.NewNotFoundError("model version", ptr.ActiveVersion)
	}

	now := s.now()
	derived := domain.ModelVersion{
		Weights:     base.Weights,
		Calibration: base.Calibration,
		TrainedAt:   now,
		CreatedAt:   now,
	}
	change(&derived)

	for n := 1; n <= maxDerivedVersions; n++ {
		derived.Version = fmt.Sprintf("%s.%s%d", base.Version, suffix, n)
		err = s.store.CreateModelVersion(ctx, &derived)
		if !domain.IsAlreadyExists(err) {
			break
		}
	}
	if err != nil {
		return domain.ModelEvent{}, err
	}
	s.emit(ctx, domain.ModelEvent{Type: domain.EventModelDeployed, Version: derived.Version, At: now})

	return s.swap(ctx, ptr, derived.Version, base.Version, typ, "derived from "+base.Version)
}

// UpdateThresholds merges a partial update into the tenant's effective
// thresholds. domain.GlobalTenant updates the global default.
func (s *ScoringService) UpdateThresholds(ctx context.Context, update domain.ThresholdUpdate, tenantID uuid.UUID) (domain.ModelEvent, error) {
	current, err := effectiveThresholds(ctx, s.store, tenantID)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	next, err := current.Merge(update)
	if err != nil {
		return domain.ModelEvent{}, err
	}

	now := s.now()
	if err := s.store.SaveThresholds(ctx, tenantID, next, now); err != nil {
		return domain.ModelEvent{}, err
	}
	ev := domain.ModelEvent{
		Type:     domain.EventThresholdsUpdated,
		TenantID: tenantID,
		Detail: fmt.Sprintf("critical=%.3f high=%.3f medium=%.3f low=%.3f",
			next.Critical, next.High, next.Medium, next.Low),
		At: now,
	}
	s.emit(ctx, ev)
	return ev, nil
}

// GetThresholds returns the thresholds that apply to a tenant
func (s *ScoringService) GetThresholds(ctx context.Context, tenantID uuid.UUID) (domain.ThresholdConfig, error) {
	return effectiveThresholds(ctx, s.store, tenantID)
}

// EnableABTest routes percent of traffic to variant, replacing any running test
func (s *ScoringService) EnableABTest(ctx context.Context, variant string, percent float64) (domain.ModelEvent, error) {
	if percent <= 0 || percent > 100 || math.IsNaN(percent) {
		return domain.ModelEvent{}, domain.NewValidationError(fmt.Sprintf("traffic percent must be in (0, 100], got %v", percent))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mv, err := s.store.GetModelVersion(ctx, variant)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if mv == nil {
		return domain.ModelEvent{}, domain.NewNotFoundError("model version", variant)
	}
	ptr, err := s.store.GetModelPointer(ctx)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if ptr.ActiveVersion == variant {
		return domain.ModelEvent{}, domain.NewValidationError("the A/B variant must differ from the active model")
	}

	now := s.now()
	test := &domain.ModelTest{ID: uuid.New(), VariantVersion: variant, TrafficPercent: percent, StartedAt: now}
	if err := s.store.StartModelTest(ctx, test); err != nil {
		return domain.ModelEvent{}, err
	}
	if err := s.load(ctx, ptr); err != nil {
		return domain.ModelEvent{}, err
	}

	ev := domain.ModelEvent{
		Type:            domain.EventModelTestEnabled,
		Version:         variant,
		PreviousVersion: ptr.ActiveVersion,
		Detail:          fmt.Sprintf("%.1f%% of traffic", percent),
		At:              now,
	}
	s.emit(ctx, ev)
	return ev, nil
}

// DisableABTest ends the running test, if any
func (s *ScoringService) DisableABTest(ctx context.Context) (domain.ModelEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n, err := s.store.EndModelTests(ctx, now)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	ptr, err := s.store.GetModelPointer(ctx)
	if err != nil {
		return domain.ModelEvent{}, err
	}
	if err := s.load(ctx, ptr); err != nil {
		return domain.ModelEvent{}, err
	}

	ev := domain.ModelEvent{Type: domain.EventModelTestDisabled, Version: ptr.ActiveVersion, At: now}
	if n == 0 {
		ev.Detail = "no test was running"
	}
	s.emit(ctx, ev)
	return ev, nil
}

// ActiveModel returns the version currently used for predictions
func (s *ScoringService) ActiveModel(ctx context.Context) (*domain.ModelVersion, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	mv := *snap.active
	return &mv, nil
}

// ListModels lists deployed versions, newest first
func (s *ScoringService) ListModels(ctx context.Context) ([]domain.ModelVersion, error) {
	return s.store.ListModelVersions(ctx, s.cfg.ListLimit)
}

// emit forwards a lifecycle event to audit and metrics
func (s *ScoringService) emit(ctx context.Context, ev domain.ModelEvent) {
	details := map[string]any{"version": ev.Version}
	if ev.PreviousVersion != "" {
		details["previous_version"] = ev.PreviousVersion
	}
	if ev.Detail != "" {
		details["detail"] = ev.Detail
	}
	audit(ctx, s.audit, s.logger, domain.AuditEvent{
		Action:   string(ev.Type),
		TenantID: ev.TenantID,
		Resource: "model",
		Details:  details,
		At:       ev.At,
	})
	s.metrics.ObserveModelEvent(ev)
	s.logger.Info("model lifecycle event",
		zap.String("type", string(ev.Type)),
		zap.String("version", ev.Version),
		zap.String("previous_version", ev.PreviousVersion))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
