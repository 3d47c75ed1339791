package scoring

import (
	"math"
	"sort"

	"github.com/stoik/threat-engine/internal/domain"
)

// Engine turns a feature vector into a score breakdown using pluggable category scorers
//
// Per category, the deltas of every fired indicator are summed and clamped
// into [0,1]. Category scores are combined with the model's normalized
// weights and the result goes through the model's calibration. The engine is
// pure: thresholds, learned rules and persistence are applied by the caller.
type Engine struct {
	scorers []CategoryScorer
}

// NewEngine creates an engine with the six standard category scorers
func NewEngine() *Engine {
	return NewEngineWithScorers(
		NewHeaderScorer(),
		NewContentScorer(),
		NewSenderScorer(),
		NewURLScorer(),
		NewAttachmentScorer(),
		NewBehavioralScorer(),
	)
}

// NewEngineWithScorers creates an engine with an explicit scorer set
func NewEngineWithScorers(scorers ...CategoryScorer) *Engine {
	return &Engine{scorers: scorers}
}

// Option tunes a single evaluation
type Option func(*evalOptions)

type evalOptions struct {
	suppressed map[string]bool
}

// WithSuppressed evaluates as if the named indicators ("category.name") did not fire.
// Used to compute counterfactuals.
func WithSuppressed(keys ...string) Option {
	return func(o *evalOptions) {
		for _, k := range keys {
			o.suppressed[k] = true
		}
	}
}

// Score evaluates fv against a model version
func (e *Engine) Score(fv *domain.FeatureVector, model *domain.ModelVersion, opts ...Option) domain.ScoreBreakdown {
	o := evalOptions{suppressed: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	breakdown := domain.ScoreBreakdown{
		ModelVersion: model.Version,
		RawScores:    make(map[domain.Category]float64, len(e.scorers)),
	}

	for _, scorer := range e.scorers {
		cat := scorer.Category()
		fired := make([]domain.FiredIndicator, 0)
		sum := 0.0

		for _, ind := range scorer.Indicators() {
			if o.suppressed[string(cat)+"."+ind.Name] {
				continue
			}
			delta, evidence, ok := ind.Eval(fv)
			if !ok || delta == 0 {
				continue
			}
			sum += delta
			fired = append(fired, domain.FiredIndicator{
				Category: cat,
				Name:     ind.Name,
				Delta:    delta,
				Threat:   ind.Threat,
				Evidence: evidence,
			})
		}

		// Scale deltas so they add up to the clamped category score.
		// A non-positive sum leaves every contribution at zero.
		raw := clamp(sum, 0, 1)
		factor := 0.0
		if sum > 0 {
			factor = raw / sum
		}
		for i := range fired {
			fired[i].Scaled = fired[i].Delta * factor
		}

		breakdown.RawScores[cat] = raw
		breakdown.RawCombined += model.Weights[cat] * raw
		breakdown.Indicators = append(breakdown.Indicators, fired...)
	}

	breakdown.Score = clamp(model.Calibration.Apply(breakdown.RawCombined), 0, 1)
	breakdown.FeatureImportance = importance(breakdown.Indicators, model.Weights)
	breakdown.Confidence = confidence(breakdown.Indicators, breakdown.RawScores)
	return breakdown
}

// importance weights each scaled delta and sorts by magnitude.
// Every fired indicator is listed. Its direction follows the sign of its
// raw delta, so benign signals in a category clamped to zero still show up
// as lowering the risk, with a zero contribution.
func importance(fired []domain.FiredIndicator, weights map[domain.Category]float64) []domain.FeatureContribution {
	out := make([]domain.FeatureContribution, 0, len(fired))
	for _, f := range fired {
		c := weights[f.Category] * f.Scaled
		dir := domain.IncreasesRisk
		if f.Delta < 0 {
			dir = domain.DecreasesRisk
		}
		out = append(out, domain.FeatureContribution{
			Feature:      f.Key(),
			Category:     f.Category,
			Contribution: c,
			Direction:    dir,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Contribution) > math.Abs(out[j].Contribution)
	})
	return out
}

const (
	confidenceFloor    = 0.35
	confidenceCeiling  = 0.99
	corroborationLevel = 0.3
	maxCountedSignals  = 4
	maxCorroborating   = 3
	maxCountedBenign   = 3
)

// confidence grows with the number of risk indicators and of categories that agree.
// Sparse evidence stays near the floor.
func confidence(fired []domain.FiredIndicator, raw map[domain.Category]float64) float64 {
	risk, benign := 0, 0
	for _, f := range fired {
		switch {
		case f.Delta > 0 && f.Scaled > 0:
			risk++
		case f.Delta < 0:
			benign++
		}
	}

	if risk == 0 {
		return math.Min(confidenceCeiling, confidenceFloor+0.15*float64(min(benign, maxCountedBenign)))
	}

	strong := 0
	for _, v := range raw {
		if v >= corroborationLevel {
			strong++
		}
	}
	corroborating := max(strong-1, 0)

	c := confidenceFloor + 0.10*float64(min(risk, maxCountedSignals)) + 0.10*float64(min(corroborating, maxCorroborating))
	return math.Min(confidenceCeiling, c)
}

// ThreatTypeOf picks the threat type of a breakdown once its risk level is known
//
// The dominant category is the one with the highest raw score. Ties, and the
// choice between several fired indicators of that category, are resolved by
// precedence malware > phishing > bec > spam.
func ThreatTypeOf(b domain.ScoreBreakdown, level domain.RiskLevel) domain.ThreatType {
	if level == domain.RiskSafe {
		return domain.ThreatClean
	}

	best := make(map[domain.Category]domain.ThreatType)
	for _, f := range b.Indicators {
		if f.Delta <= 0 || f.Scaled <= 0 {
			continue
		}
		if f.Threat.Precedence() > best[f.Category].Precedence() {
			best[f.Category] = f.Threat
		}
	}
	if len(best) == 0 {
		return domain.ThreatClean
	}

	var dominant domain.Category
	found := false
	for _, cat := range domain.Categories {
		t, ok := best[cat]
		if !ok {
			continue
		}
		if !found {
			dominant, found = cat, true
			continue
		}
		cur, top := b.RawScores[cat], b.RawScores[dominant]
		if cur > top || (cur == top && t.Precedence() > best[dominant].Precedence()) {
			dominant = cat
		}
	}
	return best[dominant]
}

// IndicatorKeys lists every indicator the engine can fire, as "category.name"
func (e *Engine) IndicatorKeys() []string {
	keys := make([]string, 0)
	for _, s := range e.scorers {
		for _, ind := range s.Indicators() {
			keys = append(keys, string(s.Category())+"."+ind.Name)
		}
	}
	return keys
}

// Describe returns the evidence template of an indicator key, or the key itself
func (e *Engine) Describe(b domain.ScoreBreakdown, key string) string {
	for _, f := range b.Indicators {
		if f.Key() == key {
			return f.Evidence
		}
	}
	return key
}
