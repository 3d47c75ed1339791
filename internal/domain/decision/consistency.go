package decision

import (
	"math"
	"sort"
	"time"

	"github.com/stoik/threat-engine/internal/domain"
)

const minConsistencySamples = 5

// FalsePositiveRate is the share of decisions releasing a flagged verdict
func FalsePositiveRate(decisions []domain.AdminDecision) domain.RateEstimate {
	n := 0
	for _, d := range decisions {
		if d.IsFalsePositive() {
			n++
		}
	}
	return WilsonInterval(n, len(decisions))
}

// FalseNegativeRate is the share of decisions removing passed mail or later reported as phish
func FalseNegativeRate(decisions []domain.AdminDecision) domain.RateEstimate {
	n := 0
	for _, d := range decisions {
		if d.IsFalseNegative() {
			n++
		}
	}
	return WilsonInterval(n, len(decisions))
}

// AdminProfiles compares each admin's recent action distribution with their history
//
// An admin is anomalous when both periods have enough decisions and the
// consistency scores differ by more than cfg.ConsistencyDeviation.
func AdminProfiles(decisions []domain.AdminDecision, now time.Time, cfg Config) []domain.AdminConsistency {
	cfg = cfg.withDefaults()
	cutoff := now.Add(-cfg.ConsistencyWindow)

	type split struct {
		all, historical, recent map[domain.AdminAction]int
		total, nHist, nRecent   int
	}
	byAdmin := make(map[string]*split)
	for _, d := range decisions {
		s, ok := byAdmin[d.AdminID]
		if !ok {
			s = &split{
				all:        map[domain.AdminAction]int{},
				historical: map[domain.AdminAction]int{},
				recent:     map[domain.AdminAction]int{},
			}
			byAdmin[d.AdminID] = s
		}
		s.all[d.Action]++
		s.total++
		if d.DecidedAt.Before(cutoff) {
			s.historical[d.Action]++
			s.nHist++
		} else {
			s.recent[d.Action]++
			s.nRecent++
		}
	}

	out := make([]domain.AdminConsistency, 0, len(byAdmin))
	for admin, s := range byAdmin {
		p := domain.AdminConsistency{
			AdminID:               admin,
			TotalDecisions:        s.total,
			ActionCounts:          s.all,
			HistoricalConsistency: round(Consistency(s.historical), 4),
			RecentConsistency:     round(Consistency(s.recent), 4),
		}
		if s.nHist >= minConsistencySamples && s.nRecent >= minConsistencySamples {
			p.Anomalous = math.Abs(p.RecentConsistency-p.HistoricalConsistency) > cfg.ConsistencyDeviation
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdminID < out[j].AdminID })
	return out
}
