package decision

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

// TunedMetrics maps each tuned snapshot score to the threshold it moves
var TunedMetrics = []struct {
	Metric string
	Level  domain.ThresholdLevel
}{
	{"deterministic_score", domain.LevelMedium},
	{"ml_score", domain.LevelHigh},
	{"urgency_score", domain.LevelLow},
}

// AutoTune proposes threshold moves from the decisions of the tuning window
//
// Released mail scoring above the threshold it crossed suggests raising it,
// blocked mail scoring below suggests lowering it. Moves that would break the
// ordering of the thresholds are dropped.
func AutoTune(tenantID uuid.UUID, decisions []domain.AdminDecision, current domain.ThresholdConfig, now time.Time, cfg Config) domain.AutoTuneResult {
	cfg = cfg.withDefaults()
	decisions = InWindow(decisions, TrailingWindow(now, cfg.TuningWindow))

	result := domain.AutoTuneResult{
		TenantID:    tenantID,
		SampleSize:  len(decisions),
		Adjustments: []domain.ThresholdAdjustment{},
	}
	if len(decisions) < 2*cfg.MinSamples {
		result.InsufficientData = true
		return result
	}

	released := make([]domain.AdminDecision, 0)
	blocked := make([]domain.AdminDecision, 0)
	for _, d := range decisions {
		switch {
		case d.IsFalsePositive():
			released = append(released, d)
		case d.Action == domain.ActionBlock || d.Action == domain.ActionDelete:
			blocked = append(blocked, d)
		}
	}

	for _, m := range TunedMetrics {
		level := current.Get(m.Level)
		var (
			suggested float64
			direction string
			reason    string
			group     int
		)
		releasedMean := mean(snapshotValues(released, m.Metric)) / 100
		blockedMean := mean(snapshotValues(blocked, m.Metric)) / 100

		switch {
		case len(released) > 0 && releasedMean >= level:
			suggested, direction, group = level+cfg.ThresholdStep, "raise", len(released)
			reason = fmt.Sprintf("released mail averages %s %.2f, at or above the %s threshold %.2f",
				m.Metric, releasedMean, m.Level, level)
		case len(blocked) > 0 && blockedMean < level:
			suggested, direction, group = level-cfg.ThresholdStep, "lower", len(blocked)
			reason = fmt.Sprintf("manually blocked mail averages %s %.2f, below the %s threshold %.2f",
				m.Metric, blockedMean, m.Level, level)
		default:
			continue
		}

		suggested = round(suggested, 4)
		if current.With(m.Level, suggested).Validate() != nil {
			continue
		}
		result.Adjustments = append(result.Adjustments, domain.ThresholdAdjustment{
			ID:                uuid.New(),
			TenantID:          tenantID,
			Metric:            m.Metric,
			Level:             m.Level,
			CurrentValue:      level,
			SuggestedValue:    suggested,
			Direction:         direction,
			Reason:            reason,
			Confidence:        round(float64(group)/float64(group+cfg.MinSamples), 3),
			SampleSize:        len(decisions),
			RollbackAvailable: true,
			Status:            domain.AdjustmentProposed,
			CreatedAt:         now,
		})
	}
	return result
}

// ApplyAdjustment returns the thresholds with one adjustment applied
func ApplyAdjustment(current domain.ThresholdConfig, adj domain.ThresholdAdjustment) (domain.ThresholdConfig, error) {
	next := current.With(adj.Level, adj.SuggestedValue)
	if err := next.Validate(); err != nil {
		return current, err
	}
	return next, nil
}
