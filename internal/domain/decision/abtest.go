package decision

import (
	"fmt"
	"hash/fnv"

	"github.com/stoik/threat-engine/internal/domain"
)

const (
	significanceLevel  = 0.95
	fnWorseningAllowed = 0.10 // relative
)

// AssignCohort deterministically places a verdict in one side of an experiment
func AssignCohort(test domain.PolicyABTest, d domain.AdminDecision) domain.Cohort {
	h := fnv.New32a()
	_, _ = h.Write(test.ID[:])
	_, _ = h.Write(d.VerdictID[:])
	if float64(h.Sum32()%100) < test.TrafficPercent {
		return domain.CohortTest
	}
	return domain.CohortControl
}

// ValidateABTest checks a policy experiment before it starts
func ValidateABTest(test domain.PolicyABTest) error {
	if test.Name == "" {
		return domain.NewValidationError("A/B test name is required")
	}
	if test.TrafficPercent <= 0 || test.TrafficPercent > 100 {
		return domain.NewValidationError(fmt.Sprintf("traffic percent must be in (0, 100], got %v", test.TrafficPercent))
	}
	return nil
}

// EvaluateABTest compares error rates of the two cohorts since the test started
func EvaluateABTest(test domain.PolicyABTest, decisions []domain.AdminDecision, cfg Config) domain.ABTestResult {
	cfg = cfg.withDefaults()
	result := domain.ABTestResult{TestID: test.ID, Recommendation: domain.RecommendContinue}

	var control, treated []domain.AdminDecision
	for _, d := range decisions {
		if d.DecidedAt.Before(test.StartedAt) || (test.EndedAt != nil && !d.DecidedAt.Before(*test.EndedAt)) {
			continue
		}
		if AssignCohort(test, d) == domain.CohortTest {
			treated = append(treated, d)
		} else {
			control = append(control, d)
		}
	}

	result.Control = cohortStats(control)
	result.Test = cohortStats(treated)
	if total := len(control) + len(treated); total < 2*cfg.MinSamples {
		result.InsufficientData = true
		result.Reason = fmt.Sprintf("%d decisions since start, %d needed", total, 2*cfg.MinSamples)
		return result
	}

	result.Significance = round(TwoProportionSignificance(
		result.Control.FalsePositives, result.Control.Samples,
		result.Test.FalsePositives, result.Test.Samples), 4)

	fpImproved := result.Test.FalsePositiveRate < result.Control.FalsePositiveRate
	fnWorse := fnWorsened(result.Control.FalseNegativeRate, result.Test.FalseNegativeRate)

	switch {
	case result.Significance <= significanceLevel:
		result.Reason = "difference in false-positive rate is not yet significant"
	case fpImproved && !fnWorse:
		result.Recommendation = domain.RecommendApply
		result.Reason = "test policy lowers false positives without raising false negatives"
	default:
		result.Recommendation = domain.RecommendReject
		if fnWorse {
			result.Reason = "test policy raises false negatives"
		} else {
			result.Reason = "test policy raises false positives"
		}
	}
	return result
}

func cohortStats(decisions []domain.AdminDecision) domain.CohortStats {
	s := domain.CohortStats{Samples: len(decisions)}
	for _, d := range decisions {
		if d.IsFalsePositive() {
			s.FalsePositives++
		}
		if d.IsFalseNegative() {
			s.FalseNegatives++
		}
	}
	if s.Samples > 0 {
		s.FalsePositiveRate = round(float64(s.FalsePositives)/float64(s.Samples), 4)
		s.FalseNegativeRate = round(float64(s.FalseNegatives)/float64(s.Samples), 4)
	}
	return s
}

func fnWorsened(control, test float64) bool {
	if control == 0 {
		return test > 0
	}
	return (test-control)/control > fnWorseningAllowed
}
