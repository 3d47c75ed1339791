package explain

import (
	"sort"

	"github.com/stoik/threat-engine/internal/domain"
)

const (
	MinSimilarity   = 0.3
	MaxSimilar      = 5
	SimilarLookback = 90 // days
	SimilarScanSize = 500
)

// riskSignals is the set of risk-increasing indicators a verdict fired
func riskSignals(rec domain.VerdictRecord) map[string]bool {
	out := make(map[string]bool, len(rec.Indicators))
	for _, f := range rec.Indicators {
		if f.Delta > 0 {
			out[f.Key()] = true
		}
	}
	return out
}

// SimilarThreats ranks past verdicts by Jaccard overlap of their risk signals
func SimilarThreats(target domain.VerdictRecord, history []domain.VerdictRecord) []domain.SimilarThreat {
	out := make([]domain.SimilarThreat, 0)
	signals := riskSignals(target)
	if len(signals) == 0 {
		return out
	}

	for _, rec := range history {
		if rec.Result.VerdictID == target.Result.VerdictID {
			continue
		}
		other := riskSignals(rec)
		shared := make([]string, 0)
		for k := range other {
			if signals[k] {
				shared = append(shared, k)
			}
		}
		union := len(signals) + len(other) - len(shared)
		if union == 0 {
			continue
		}
		similarity := float64(len(shared)) / float64(union)
		if similarity < MinSimilarity {
			continue
		}
		sort.Strings(shared)

		outcome := rec.Outcome
		if outcome == "" {
			outcome = domain.OutcomeUnknown
		}
		out = append(out, domain.SimilarThreat{
			VerdictID:     rec.Result.VerdictID,
			MessageID:     rec.Result.MessageID,
			Similarity:    round(similarity, 4),
			SharedSignals: shared,
			ThreatType:    rec.Result.ThreatType,
			RiskLevel:     rec.Result.RiskLevel,
			Outcome:       outcome,
			PredictedAt:   rec.Result.PredictedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].PredictedAt.After(out[j].PredictedAt)
	})
	if len(out) > MaxSimilar {
		out = out[:MaxSimilar]
	}
	return out
}
