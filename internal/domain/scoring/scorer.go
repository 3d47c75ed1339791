package scoring

import (
	"github.com/stoik/threat-engine/internal/domain"
)

// Indicator is one documented rule of a category scorer.
//
// Eval returns the signed delta the rule adds to its category sum and a
// human-readable evidence string. ok is false when the rule does not fire.
type Indicator struct {
	Name   string
	Threat domain.ThreatType
	Eval   func(fv *domain.FeatureVector) (delta float64, evidence string, ok bool)
}

// CategoryScorer produces the indicator set of one feature category
//
// Each scorer is a fixed table of rules so that every contribution to a
// verdict can be traced back to a named, reviewable condition.
type CategoryScorer interface {
	Category() domain.Category
	Indicators() []Indicator
}

// flag builds an indicator that fires a fixed delta when pred holds
func flag(name string, delta float64, threat domain.ThreatType, evidence string, pred func(fv *domain.FeatureVector) bool) Indicator {
	return Indicator{
		Name:   name,
		Threat: threat,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			if !pred(fv) {
				return 0, "", false
			}
			return delta, evidence, true
		},
	}
}

// capped returns min(n*per, max)
func capped(n int, per, max float64) float64 {
	v := float64(n) * per
	if v > max {
		return max
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
