package decision

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

const (
	minDomainOccurrences  = 3
	minSenderOccurrences  = 2
	minFeatureOccurrences = 3
	maxPatternConfidence  = 0.95
	maxExamples           = 5
	maxReasons            = 10
	trendWeeks            = 4
	week                  = 7 * 24 * time.Hour

	lowScoreCeiling  = 40.0 // deterministic and ML scores below this are "low"
	highUrgencyFloor = 60.0
)

// InWindow keeps the decisions taken inside w
func InWindow(decisions []domain.AdminDecision, w domain.TimeWindow) []domain.AdminDecision {
	out := make([]domain.AdminDecision, 0, len(decisions))
	for _, d := range decisions {
		if !d.DecidedAt.Before(w.Start) && d.DecidedAt.Before(w.End) {
			out = append(out, d)
		}
	}
	return out
}

// TrailingWindow is the window of length d ending at now
func TrailingWindow(now time.Time, d time.Duration) domain.TimeWindow {
	return domain.TimeWindow{Start: now.Add(-d), End: now}
}

// Analyze mines override patterns from the decisions taken inside window
//
// Below the sample floor the result is zeroed and flagged InsufficientData,
// TotalDecisions still reports how many decisions were seen.
func Analyze(tenantID uuid.UUID, decisions []domain.AdminDecision, window domain.TimeWindow, cfg Config) domain.PatternAnalysis {
	cfg = cfg.withDefaults()
	decisions = InWindow(decisions, window)

	analysis := domain.PatternAnalysis{
		TenantID:              tenantID,
		Window:                window,
		TotalDecisions:        len(decisions),
		FalsePositivePatterns: []domain.Pattern{},
		FalseNegativePatterns: []domain.Pattern{},
		CommonOverrideReasons: []domain.ReasonCount{},
		Trends:                []domain.WeeklyTrend{},
	}
	if len(decisions) < cfg.MinSamples {
		analysis.InsufficientData = true
		return analysis
	}

	for _, d := range decisions {
		if d.IsOverride() {
			analysis.OverrideCount++
		}
	}
	analysis.OverrideRate = float64(analysis.OverrideCount) / float64(len(decisions))
	analysis.FalsePositivePatterns = falsePositivePatterns(decisions)
	analysis.FalseNegativePatterns = falseNegativePatterns(decisions)
	analysis.CommonOverrideReasons = overrideReasons(decisions)
	analysis.Trends = weeklyTrends(decisions, window.End)
	return analysis
}

func falsePositivePatterns(decisions []domain.AdminDecision) []domain.Pattern {
	released := make([]domain.AdminDecision, 0)
	for _, d := range decisions {
		if d.IsFalsePositive() {
			released = append(released, d)
		}
	}
	if len(released) == 0 {
		return []domain.Pattern{}
	}

	patterns := make([]domain.Pattern, 0)
	patterns = append(patterns, groupPatterns(released, domain.PatternKindDomain, minDomainOccurrences,
		func(d domain.AdminDecision) string { return strings.ToLower(d.Snapshot.SenderDomain) },
		"released mail from domain %s")...)
	patterns = append(patterns, groupPatterns(released, domain.PatternKindSender, minSenderOccurrences,
		func(d domain.AdminDecision) string { return strings.ToLower(d.Snapshot.SenderEmail) },
		"released mail from sender %s")...)

	lowScored := make([]domain.AdminDecision, 0)
	for _, d := range released {
		quarantined := d.OriginalVerdict == domain.VerdictQuarantine || d.OriginalVerdict == domain.VerdictBlock
		if quarantined && d.Snapshot.DeterministicScore < lowScoreCeiling && d.Snapshot.MLScore < lowScoreCeiling {
			lowScored = append(lowScored, d)
		}
	}
	if len(lowScored) >= minFeatureOccurrences {
		p := featurePattern("low_scores_quarantined", lowScored, len(released),
			"quarantined despite low deterministic and ML scores")
		p.Features = map[string]float64{
			"deterministic_score": round(mean(snapshotValues(lowScored, "deterministic_score")), 2),
			"ml_score":            round(mean(snapshotValues(lowScored, "ml_score")), 2),
		}
		patterns = append(patterns, p)
	}

	sortPatterns(patterns)
	return patterns
}

func falseNegativePatterns(decisions []domain.AdminDecision) []domain.Pattern {
	missed := make([]domain.AdminDecision, 0)
	for _, d := range decisions {
		if d.OriginalVerdict == domain.VerdictPass && (d.Action == domain.ActionBlock || d.Action == domain.ActionDelete) {
			missed = append(missed, d)
		}
	}
	if len(missed) == 0 {
		return []domain.Pattern{}
	}

	groups := []struct {
		key  string
		desc string
		pred func(domain.DecisionSnapshot) bool
	}{
		{"elevated_urgency", "passed mail with elevated urgency later blocked",
			func(s domain.DecisionSnapshot) bool { return s.UrgencyScore >= highUrgencyFloor }},
		{"financial_request", "passed mail requesting a financial action later blocked",
			func(s domain.DecisionSnapshot) bool { return s.HasFinancialRequest }},
		{"credential_request", "passed mail requesting credentials later blocked",
			func(s domain.DecisionSnapshot) bool { return s.HasCredentialRequest }},
	}

	patterns := make([]domain.Pattern, 0)
	for _, g := range groups {
		matched := make([]domain.AdminDecision, 0)
		for _, d := range missed {
			if g.pred(d.Snapshot) {
				matched = append(matched, d)
			}
		}
		if len(matched) < minFeatureOccurrences {
			continue
		}
		p := featurePattern(g.key, matched, len(missed), g.desc)
		p.Features = map[string]float64{
			"urgency_score": round(mean(snapshotValues(matched, "urgency_score")), 2),
			"threat_score":  round(mean(snapshotValues(matched, "threat_score")), 2),
		}
		patterns = append(patterns, p)
	}
	sortPatterns(patterns)
	return patterns
}

func groupPatterns(decisions []domain.AdminDecision, kind domain.PatternKind, minCount int,
	keyOf func(domain.AdminDecision) string, format string) []domain.Pattern {
	groups := make(map[string][]domain.AdminDecision)
	for _, d := range decisions {
		if k := keyOf(d); k != "" {
			groups[k] = append(groups[k], d)
		}
	}

	out := make([]domain.Pattern, 0)
	for key, members := range groups {
		if len(members) < minCount {
			continue
		}
		n := float64(len(members))
		p := newPattern(kind, key, fmt.Sprintf(format, key), members)
		p.Confidence = round(math.Min(maxPatternConfidence, n/(n+1)), 3)
		out = append(out, p)
	}
	return out
}

func featurePattern(key string, members []domain.AdminDecision, groupSize int, desc string) domain.Pattern {
	p := newPattern(domain.PatternKindFeature, key, desc, members)
	p.Confidence = round(math.Min(maxPatternConfidence, float64(len(members))/float64(groupSize)), 3)
	return p
}

func newPattern(kind domain.PatternKind, key, desc string, members []domain.AdminDecision) domain.Pattern {
	p := domain.Pattern{
		Type:        kind,
		Key:         key,
		Description: desc,
		Occurrences: len(members),
		Examples:    make([]uuid.UUID, 0, maxExamples),
		FirstSeen:   members[0].DecidedAt,
		LastSeen:    members[0].DecidedAt,
	}
	for _, d := range members {
		if len(p.Examples) < maxExamples {
			p.Examples = append(p.Examples, d.ID)
		}
		if d.DecidedAt.Before(p.FirstSeen) {
			p.FirstSeen = d.DecidedAt
		}
		if d.DecidedAt.After(p.LastSeen) {
			p.LastSeen = d.DecidedAt
		}
	}
	return p
}

func sortPatterns(patterns []domain.Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Occurrences != patterns[j].Occurrences {
			return patterns[i].Occurrences > patterns[j].Occurrences
		}
		if patterns[i].Type != patterns[j].Type {
			return patterns[i].Type < patterns[j].Type
		}
		return patterns[i].Key < patterns[j].Key
	})
}

func snapshotValues(decisions []domain.AdminDecision, feature string) []float64 {
	out := make([]float64, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, FeatureValue(d.Snapshot, feature))
	}
	return out
}

// NormalizeReason folds free-text override reasons so that trivially
// different spellings count together
func NormalizeReason(reason string) string {
	fields := strings.FieldsFunc(strings.ToLower(reason), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

func overrideReasons(decisions []domain.AdminDecision) []domain.ReasonCount {
	counts := make(map[string]int)
	for _, d := range decisions {
		if !d.IsOverride() {
			continue
		}
		if r := NormalizeReason(d.Reason); r != "" {
			counts[r]++
		}
	}

	out := make([]domain.ReasonCount, 0, len(counts))
	for r, c := range counts {
		out = append(out, domain.ReasonCount{Reason: r, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > maxReasons {
		out = out[:maxReasons]
	}
	return out
}

// weeklyTrends buckets decisions into the four weeks before end, oldest first
func weeklyTrends(decisions []domain.AdminDecision, end time.Time) []domain.WeeklyTrend {
	trends := make([]domain.WeeklyTrend, trendWeeks)
	for i := range trends {
		start := end.Add(-time.Duration(trendWeeks-i) * week)
		trends[i].Window = domain.TimeWindow{Start: start, End: start.Add(week)}
	}

	fps := make([]int, trendWeeks)
	for _, d := range decisions {
		age := end.Sub(d.DecidedAt)
		if age <= 0 || age > trendWeeks*week {
			continue
		}
		i := trendWeeks - 1 - int((age-1)/week)
		t := &trends[i]
		t.Decisions++
		if d.IsOverride() {
			t.Overrides++
		}
		switch d.Action {
		case domain.ActionRelease:
			t.Releases++
		case domain.ActionBlock, domain.ActionDelete:
			t.Blocks++
		}
		if d.IsFalsePositive() {
			fps[i]++
		}
	}
	for i := range trends {
		if trends[i].Decisions > 0 {
			trends[i].FalsePositiveRate = round(float64(fps[i])/float64(trends[i].Decisions), 4)
		}
	}
	return trends
}
