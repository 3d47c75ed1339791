package decision

import (
	"fmt"
	"math"
	"sort"

	"github.com/stoik/threat-engine/internal/domain"
)

const (
	whitelistFNRisk = 0.05
	thresholdFNRisk = 0.10
	exceptionFNRisk = 0.10
)

// Suggest turns a pattern analysis into policy suggestions, highest priority first
func Suggest(analysis domain.PatternAnalysis, cfg Config) []domain.PolicySuggestion {
	cfg = cfg.withDefaults()
	out := make([]domain.PolicySuggestion, 0)
	if analysis.InsufficientData {
		return out
	}

	for _, p := range analysis.FalsePositivePatterns {
		if p.Confidence < cfg.SuggestionConfidence {
			continue
		}
		switch p.Type {
		case domain.PatternKindDomain:
			out = append(out, domain.PolicySuggestion{
				Type:                domain.SuggestWhitelistDomain,
				Target:              p.Key,
				Description:         fmt.Sprintf("Whitelist domain %s: %d releases by operators", p.Key, p.Occurrences),
				Confidence:          p.Confidence,
				ExpectedFPReduction: float64(p.Occurrences),
				ExpectedFNRisk:      whitelistFNRisk,
				Evidence:            p.Examples,
			})
		case domain.PatternKindSender:
			out = append(out, domain.PolicySuggestion{
				Type:                domain.SuggestWhitelistSender,
				Target:              p.Key,
				Description:         fmt.Sprintf("Whitelist sender %s: %d releases by operators", p.Key, p.Occurrences),
				Confidence:          p.Confidence,
				ExpectedFPReduction: float64(p.Occurrences),
				ExpectedFNRisk:      whitelistFNRisk,
				Evidence:            p.Examples,
			})
		case domain.PatternKindFeature:
			out = append(out, domain.PolicySuggestion{
				Type:                domain.SuggestExceptionRule,
				Target:              p.Key,
				Description:         fmt.Sprintf("Add an exception for mail %s (%d releases)", p.Description, p.Occurrences),
				Confidence:          p.Confidence,
				ExpectedFPReduction: float64(p.Occurrences),
				ExpectedFNRisk:      exceptionFNRisk,
				Evidence:            p.Examples,
			})
		}
	}

	if analysis.OverrideRate > cfg.OverrideRateLimit {
		out = append(out, domain.PolicySuggestion{
			Type:   domain.SuggestThresholdIncrease,
			Target: string(domain.LevelMedium),
			Description: fmt.Sprintf("Raise quarantine thresholds: operators overrode %.0f%% of verdicts",
				analysis.OverrideRate*100),
			Confidence:          round(math.Min(maxPatternConfidence, 0.5+analysis.OverrideRate), 3),
			ExpectedFPReduction: math.Round(float64(analysis.OverrideCount) / 2),
			ExpectedFNRisk:      thresholdFNRisk,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}
