package learning

import (
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
)

// Candidate is a pattern value extracted from one feedback event
type Candidate = domain.PatternCandidate

// marketingKeywords mark subjects of legitimate bulk mail that users rescue from quarantine
var marketingKeywords = []string{
	"newsletter",
	"webinar",
	"% off",
	"discount",
	"promotion",
	"special offer",
	"limited time",
	"sale",
	"deal",
	"unsubscribe",
}

const maxURLCandidates = 10

// ExtractCandidates lists the pattern values a feedback event supports
//
// The sender domain is always a candidate. Marketing subject keywords are
// only mined from false positives. Every distinct link domain is a candidate.
func ExtractCandidates(ev domain.FeedbackEvent, class domain.FeedbackClass) []Candidate {
	out := make([]Candidate, 0)

	if d := SenderDomain(ev.SenderDomain, ev.SenderEmail); d != "" {
		out = append(out, Candidate{Type: domain.PatternDomain, Value: d})
	}

	if class == domain.FeedbackFalsePositive && ev.Subject != "" {
		subject := strings.ToLower(ev.Subject)
		for _, kw := range marketingKeywords {
			if strings.Contains(subject, kw) {
				out = append(out, Candidate{Type: domain.PatternSubject, Value: kw})
			}
		}
	}

	seen := make(map[string]bool)
	for _, raw := range ev.URLs {
		d := URLDomain(raw)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, Candidate{Type: domain.PatternURL, Value: d})
		if len(seen) == maxURLCandidates {
			break
		}
	}

	return out
}

// Pattern confidence dynamics
const (
	PatternInitialConfidence = 10.0
	PatternConfidenceStep    = 5.0
	PatternConfidenceCeiling = 95.0
	PatternDecayStep         = 5.0
	PatternDecayFloor        = 10.0
	PatternDeactivateBelow   = 20.0
)
