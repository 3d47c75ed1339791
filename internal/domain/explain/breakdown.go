package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/scoring"
)

// CategoryColors are the fixed chart colors of the risk breakdown
var CategoryColors = map[domain.Category]string{
	domain.CategoryHeader:     "#8e44ad",
	domain.CategoryContent:    "#e67e22",
	domain.CategorySender:     "#2980b9",
	domain.CategoryURL:        "#c0392b",
	domain.CategoryAttachment: "#27ae60",
	domain.CategoryBehavioral: "#f1c40f",
}

// Breakdown splits a verdict's combined score by category using the weights
// of the model version that produced it
func Breakdown(rec domain.VerdictRecord, weights map[domain.Category]float64) domain.RiskBreakdown {
	res := rec.Result
	out := domain.RiskBreakdown{
		VerdictID:   res.VerdictID,
		ThreatScore: res.ThreatScore,
		Slices:      make([]domain.BreakdownSlice, 0, len(domain.Categories)),
	}
	for _, cat := range domain.Categories {
		raw := res.RawScores[cat]
		contribution := weights[cat] * raw
		share := 0.0
		if res.RawCombined > 0 {
			share = contribution / res.RawCombined
		}
		out.Slices = append(out.Slices, domain.BreakdownSlice{
			Category:     cat,
			RawScore:     raw,
			Weight:       weights[cat],
			Contribution: round(contribution, 4),
			Share:        round(share, 4),
			Color:        CategoryColors[cat],
		})
	}
	return out
}

const maxCounterfactuals = 3

// Counterfactuals lists the smallest sets of fired indicators whose absence
// would bring the verdict down to low or safe
//
// Single indicators that flip the verdict on their own come first. When
// there are none, indicators are removed greedily by contribution until the
// verdict flips. Clean and already low verdicts have no counterfactual.
func (x *Explainer) Counterfactuals(rec domain.VerdictRecord, model *domain.ModelVersion) []domain.Counterfactual {
	out := make([]domain.Counterfactual, 0)
	res := rec.Result
	if res.ThreatType == domain.ThreatClean || !flagged(res.RiskLevel) {
		return out
	}

	candidates := make([]domain.FeatureContribution, 0)
	for _, c := range res.FeatureImportance {
		if c.Direction == domain.IncreasesRisk && c.Contribution > 0 {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Contribution > candidates[j].Contribution
	})

	for _, c := range candidates {
		if cf, ok := x.replay(rec, model, []string{c.Feature}); ok {
			out = append(out, cf)
			if len(out) == maxCounterfactuals {
				return out
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	removed := make([]string, 0, len(candidates))
	for _, c := range candidates {
		removed = append(removed, c.Feature)
		if cf, ok := x.replay(rec, model, removed); ok {
			return append(out, cf)
		}
	}
	return out
}

func flagged(level domain.RiskLevel) bool {
	return level == domain.RiskCritical || level == domain.RiskHigh || level == domain.RiskMedium
}

// replay re-scores the verdict without the given indicators, keeping its
// thresholds and learned-rule adjustment
func (x *Explainer) replay(rec domain.VerdictRecord, model *domain.ModelVersion, suppressed []string) (domain.Counterfactual, bool) {
	fv := rec.Features
	b := x.engine.Score(&fv, model, scoring.WithSuppressed(suppressed...))
	score := b.Score + rec.Result.RuleAdjustment.Adjustment/100
	score = min(max(score, 0), 1)
	level := rec.Thresholds.Level(score)
	if flagged(level) {
		return domain.Counterfactual{}, false
	}

	evidence := make(map[string]string, len(rec.Indicators))
	for _, f := range rec.Indicators {
		evidence[f.Key()] = f.Evidence
	}
	changes := make([]string, 0, len(suppressed))
	for _, key := range suppressed {
		desc := evidence[key]
		if desc == "" {
			desc = key
		}
		changes = append(changes, fmt.Sprintf("%s (%s)", desc, key))
	}

	return domain.Counterfactual{
		Changes:        changes,
		Description:    fmt.Sprintf("Without %s the verdict would be %s.", strings.Join(changes, " and "), level),
		OriginalScore:  rec.Result.ThreatScore,
		ResultingScore: round(score, 4),
		ResultingLevel: level,
	}, true
}
