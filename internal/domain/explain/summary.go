package explain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

var periodPattern = regexp.MustCompile(`^(\d+)\s*(day|days|week|weeks|month|months)$`)

// ParsePeriod turns "7 days", "1 week" or "1 month" into the window ending at now.
// A month is 30 days.
func ParsePeriod(period string, now time.Time) (domain.TimeWindow, error) {
	m := periodPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(period)))
	if m == nil {
		return domain.TimeWindow{}, domain.NewValidationError(fmt.Sprintf("invalid period %q, expected e.g. \"7 days\"", period))
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n > 3650 {
		return domain.TimeWindow{}, domain.NewValidationError(fmt.Sprintf("invalid period length in %q", period))
	}

	unit := 24 * time.Hour
	switch strings.TrimSuffix(m[2], "s") {
	case "week":
		unit *= 7
	case "month":
		unit *= 30
	}
	return domain.TimeWindow{Start: now.Add(-time.Duration(n) * unit), End: now}, nil
}

// Timeline reconstructs the detection steps of a verdict
func Timeline(rec domain.VerdictRecord) []domain.TimelineEvent {
	res := rec.Result
	events := make([]domain.TimelineEvent, 0, len(domain.Categories)+4)

	if received := rec.Features.Envelope.ReceivedAt; !received.IsZero() {
		events = append(events, domain.TimelineEvent{
			At:          received,
			Stage:       "received",
			Description: fmt.Sprintf("Message %s received from %s", res.MessageID, rec.Features.Envelope.SenderEmail),
		})
	}

	for _, cat := range domain.Categories {
		raw := res.RawScores[cat]
		if raw <= 0 {
			continue
		}
		names := make([]string, 0)
		for _, f := range rec.Indicators {
			if f.Category == cat && f.Delta > 0 {
				names = append(names, f.Name)
			}
		}
		events = append(events, domain.TimelineEvent{
			At:          res.PredictedAt,
			Stage:       "analysis." + string(cat),
			Description: fmt.Sprintf("%s analysis scored %.2f (%s)", cat, raw, strings.Join(names, ", ")),
		})
	}

	model := fmt.Sprintf("Model %s combined the categories into %.3f", res.ModelVersion, res.BaseScore)
	if res.ABTestVariant != "" {
		model += fmt.Sprintf(" as A/B variant %s", res.ABTestVariant)
	}
	events = append(events, domain.TimelineEvent{At: res.PredictedAt, Stage: "scoring", Description: model})

	if adj := res.RuleAdjustment.Adjustment; adj != 0 {
		events = append(events, domain.TimelineEvent{
			At:          res.PredictedAt,
			Stage:       "learned_rules",
			Description: fmt.Sprintf("%d learned rule(s) adjusted the score by %+.1f points", len(res.RuleAdjustment.AppliedRules), adj),
		})
	}

	events = append(events, domain.TimelineEvent{
		At:          res.PredictedAt,
		Stage:       "verdict",
		Description: fmt.Sprintf("Verdict %s (%s) at score %.3f", res.RiskLevel, res.ThreatType, res.ThreatScore),
	})
	return events
}

// Summarize aggregates a tenant's verdicts over a window for executives
func Summarize(tenantID uuid.UUID, period string, window domain.TimeWindow, records []domain.VerdictRecord) domain.ExecutiveSummary {
	s := domain.ExecutiveSummary{
		TenantID:     tenantID,
		Period:       period,
		Window:       window,
		ByThreatType: map[domain.ThreatType]int{},
		ByRiskLevel:  map[domain.RiskLevel]int{},
		ByCategory:   map[domain.Category]int{},
		Highlights:   []string{},
	}

	for _, rec := range records {
		res := rec.Result
		if res.PredictedAt.Before(window.Start) || !res.PredictedAt.Before(window.End) {
			continue
		}
		s.TotalAnalyzed++
		s.ByRiskLevel[res.RiskLevel]++
		switch rec.Outcome {
		case domain.OutcomeConfirmedThreat:
			s.ConfirmedThreats++
		case domain.OutcomeFalsePositive:
			s.FalsePositives++
		}
		if res.ThreatType == domain.ThreatClean {
			continue
		}
		s.ThreatsDetected++
		s.ByThreatType[res.ThreatType]++
		if cat, ok := dominantCategory(res.RawScores); ok {
			s.ByCategory[cat]++
		}
	}

	if s.TotalAnalyzed == 0 {
		s.Highlights = append(s.Highlights, "No email analyzed in this period.")
		return s
	}
	s.Highlights = append(s.Highlights, fmt.Sprintf("%d of %d emails flagged as threats (%.1f%%).",
		s.ThreatsDetected, s.TotalAnalyzed, 100*float64(s.ThreatsDetected)/float64(s.TotalAnalyzed)))
	if t, n := topThreat(s.ByThreatType); n > 0 {
		s.Highlights = append(s.Highlights, fmt.Sprintf("Most frequent threat: %s (%d).", threatNames[t], n))
	}
	if critical := s.ByRiskLevel[domain.RiskCritical]; critical > 0 {
		s.Highlights = append(s.Highlights, fmt.Sprintf("%d critical threat(s) blocked.", critical))
	}
	if s.FalsePositives > 0 {
		s.Highlights = append(s.Highlights, fmt.Sprintf("%d false positive(s) reported by users.", s.FalsePositives))
	}
	return s
}

func dominantCategory(raw map[domain.Category]float64) (domain.Category, bool) {
	var best domain.Category
	top := 0.0
	for _, cat := range domain.Categories {
		if v := raw[cat]; v > top {
			best, top = cat, v
		}
	}
	return best, top > 0
}

func topThreat(counts map[domain.ThreatType]int) (domain.ThreatType, int) {
	types := make([]domain.ThreatType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	// most frequent first, precedence breaks ties
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i].Precedence() > types[j].Precedence()
	})
	if len(types) == 0 {
		return "", 0
	}
	return types[0], counts[types[0]]
}
