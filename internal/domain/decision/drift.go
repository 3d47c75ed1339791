package decision

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

// DriftFeatures is the fixed feature set compared between drift windows
var DriftFeatures = []string{
	"threat_score",
	"deterministic_score",
	"ml_score",
	"urgency_score",
	"url_count",
	"attachment_count",
}

const (
	featureShiftLimit = 0.2
	labelShiftLimit   = 0.15
)

var driftRecommendations = map[domain.DriftType]string{
	domain.DriftNone:    "Scores moved slightly between windows. Keep monitoring.",
	domain.DriftFeature: "Incoming mail features shifted. Review category weights and recalibrate the active model.",
	domain.DriftLabel:   "Operators override verdicts at a different rate. Review thresholds and recent policy changes.",
	domain.DriftConcept: "Both features and operator behavior shifted. Retrain weights and re-tune thresholds.",
}

// FeatureValue reads a named numeric signal from a decision snapshot
func FeatureValue(s domain.DecisionSnapshot, feature string) float64 {
	switch feature {
	case "threat_score":
		return s.ThreatScore
	case "deterministic_score":
		return s.DeterministicScore
	case "ml_score":
		return s.MLScore
	case "urgency_score":
		return s.UrgencyScore
	case "url_count":
		return float64(s.URLCount)
	case "attachment_count":
		return float64(s.AttachmentCount)
	default:
		return 0
	}
}

// FeatureShift is |current - baseline| / max(current, baseline, 1)
func FeatureShift(baseline, current float64) float64 {
	return math.Abs(current-baseline) / math.Max(math.Max(current, baseline), 1)
}

// DriftWindows returns the baseline [now-2w, now-w) and comparison [now-w, now) windows
func DriftWindows(now time.Time, w time.Duration) (baseline, comparison domain.TimeWindow) {
	return domain.TimeWindow{Start: now.Add(-2 * w), End: now.Add(-w)}, domain.TimeWindow{Start: now.Add(-w), End: now}
}

// DetectDrift compares the decisions of two windows
func DetectDrift(tenantID uuid.UUID, baseline, comparison []domain.AdminDecision,
	baselineWindow, comparisonWindow domain.TimeWindow, cfg Config) domain.DriftReport {
	cfg = cfg.withDefaults()
	baseline = InWindow(baseline, baselineWindow)
	comparison = InWindow(comparison, comparisonWindow)

	report := domain.DriftReport{
		TenantID:          tenantID,
		DriftType:         domain.DriftNone,
		FeatureShifts:     map[string]float64{},
		Baseline:          baselineWindow,
		Comparison:        comparisonWindow,
		BaselineSamples:   len(baseline),
		ComparisonSamples: len(comparison),
	}
	if len(baseline) < cfg.MinSamples || len(comparison) < cfg.MinSamples {
		report.InsufficientData = true
		report.Recommendation = "Insufficient data to assess drift. Collect more operator decisions."
		return report
	}

	maxShift := 0.0
	for _, f := range DriftFeatures {
		shift := FeatureShift(mean(snapshotValues(baseline, f)), mean(snapshotValues(comparison, f)))
		report.FeatureShifts[f] = round(shift, 4)
		maxShift = math.Max(maxShift, shift)
	}

	report.OverrideRateChange = round(overrideRate(comparison)-overrideRate(baseline), 4)
	labelShift := math.Abs(report.OverrideRateChange)
	report.DriftScore = round(math.Min(1, (maxShift+labelShift)/2), 4)
	report.HasDrift = report.DriftScore > cfg.DriftThreshold

	featureDrift := maxShift > featureShiftLimit
	labelDrift := labelShift > labelShiftLimit
	switch {
	case featureDrift && labelDrift:
		report.DriftType = domain.DriftConcept
	case featureDrift:
		report.DriftType = domain.DriftFeature
	case labelDrift:
		report.DriftType = domain.DriftLabel
	}

	if report.HasDrift {
		report.Recommendation = driftRecommendations[report.DriftType]
	} else {
		report.Recommendation = "No significant drift detected."
	}
	return report
}

func overrideRate(decisions []domain.AdminDecision) float64 {
	if len(decisions) == 0 {
		return 0
	}
	n := 0
	for _, d := range decisions {
		if d.IsOverride() {
			n++
		}
	}
	return float64(n) / float64(len(decisions))
}
