package learning

import (
	"fmt"
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
)

var (
	falsePositiveTypes = map[string]bool{
		"false_positive": true,
		"not_spam":       true,
		"safe":           true,
		"marked_safe":    true,
	}
	missedThreatTypes = map[string]bool{
		"false_negative": true,
		"missed_threat":  true,
	}
	reportedThreatTypes = map[string]bool{
		"reported_phish": true,
		"phishing":       true,
		"spam":           true,
	}
	passVerdicts = map[string]bool{
		"safe":  true,
		"low":   true,
		"clean": true,
		"pass":  true,
	}
)

// Classify maps a raw feedback type to its meaning
//
// A reported threat is a false negative when the original verdict let the
// message through, otherwise it confirms the verdict.
func Classify(feedbackType, originalVerdict string) (domain.FeedbackClass, error) {
	ft := strings.ToLower(strings.TrimSpace(feedbackType))
	verdict := strings.ToLower(strings.TrimSpace(originalVerdict))

	switch {
	case falsePositiveTypes[ft]:
		return domain.FeedbackFalsePositive, nil
	case missedThreatTypes[ft]:
		return domain.FeedbackFalseNegative, nil
	case reportedThreatTypes[ft]:
		if passVerdicts[verdict] {
			return domain.FeedbackFalseNegative, nil
		}
		return domain.FeedbackConfirmedThreat, nil
	case ft == string(domain.FeedbackConfirmedThreat):
		return domain.FeedbackConfirmedThreat, nil
	default:
		return "", domain.NewValidationError(fmt.Sprintf("unknown feedback type %q", feedbackType))
	}
}

// ReputationDeltaFor returns the counter increment one feedback event applies.
// Exactly one counter moves: a spam report counts as spam instead of threat.
func ReputationDeltaFor(feedbackType string, class domain.FeedbackClass) domain.ReputationDelta {
	if class == domain.FeedbackFalsePositive {
		return domain.ReputationDelta{Safe: 1}
	}
	if strings.ToLower(strings.TrimSpace(feedbackType)) == "spam" {
		return domain.ReputationDelta{Spam: 1}
	}
	return domain.ReputationDelta{Threat: 1}
}
