package learning

import (
	"math"

	"github.com/stoik/threat-engine/internal/domain"
)

const (
	promoteSafeRatio   = 0.8
	promoteMinSafe     = 5
	demoteThreatRatio  = 0.5
	demoteMinSamples   = 3
	neutralTrust       = 50.0
	marketingTrustCap  = 85.0
	suspiciousTrustMin = 10.0
)

// EvaluateReputation decides whether counters justify a category change
//
// An unknown sender with at least 80% safe reports over 5+ safe samples is
// promoted to marketing. Any sender with at least half threat or spam reports
// over 3+ samples is demoted to suspicious. changed is false when the
// category stays the same.
func EvaluateReputation(rep domain.SenderReputation) (category domain.ReputationCategory, trust float64, changed bool) {
	total := rep.SafeCount + rep.ThreatCount + rep.SpamCount
	if total == 0 {
		return rep.Category, rep.TrustScore, false
	}
	safeRatio := float64(rep.SafeCount) / float64(total)
	threatRatio := float64(rep.ThreatCount+rep.SpamCount) / float64(total)

	switch {
	case threatRatio >= demoteThreatRatio && total >= demoteMinSamples && rep.Category != domain.ReputationSuspicious:
		return domain.ReputationSuspicious, math.Max(suspiciousTrustMin, neutralTrust-40*threatRatio), true
	case safeRatio >= promoteSafeRatio && rep.SafeCount >= promoteMinSafe && isUnknown(rep.Category):
		return domain.ReputationMarketing, math.Min(marketingTrustCap, neutralTrust+40*safeRatio), true
	default:
		return rep.Category, rep.TrustScore, false
	}
}

func isUnknown(c domain.ReputationCategory) bool {
	return c == "" || c == domain.ReputationUnknown
}
