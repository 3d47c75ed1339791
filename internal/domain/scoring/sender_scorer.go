package scoring

import (
	"fmt"

	"github.com/stoik/threat-engine/internal/domain"
)

// SenderScorer scores the sending identity
//
// Attackers register fresh or look-alike domains right before a campaign.
// Established relationships (known contacts, internal senders) lower the score.
type SenderScorer struct{}

// NewSenderScorer creates a new sender scorer
func NewSenderScorer() *SenderScorer {
	return &SenderScorer{}
}

// Category returns the sender category
func (s *SenderScorer) Category() domain.Category {
	return domain.CategorySender
}

// Indicators returns the sender rule table
func (s *SenderScorer) Indicators() []Indicator {
	return senderIndicators
}

const (
	newDomainAgeDays  = 30
	neutralReputation = 50.0
	previousThreatPer = 0.15
	previousThreatMax = 0.45
)

var senderIndicators = []Indicator{
	{
		Name:   "new_domain",
		Threat: domain.ThreatPhishing,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			s := fv.Sender
			if s.IsNewDomain {
				return 0.30, "Sender domain recently registered", true
			}
			if s.DomainAgeDays > 0 && s.DomainAgeDays < newDomainAgeDays {
				return 0.30, fmt.Sprintf("Sender domain is %d days old", s.DomainAgeDays), true
			}
			return 0, "", false
		},
	},
	flag("cousin_domain", 0.45, domain.ThreatPhishing, "Sender domain imitates a trusted domain",
		func(fv *domain.FeatureVector) bool { return fv.Sender.IsCousinDomain }),
	flag("freemail", 0.10, domain.ThreatBEC, "Sent from a free webmail provider",
		func(fv *domain.FeatureVector) bool { return fv.Sender.IsFreemail }),
	flag("first_contact", 0.10, domain.ThreatPhishing, "First message from this sender",
		func(fv *domain.FeatureVector) bool { return fv.Sender.IsFirstContact }),
	{
		Name:   "low_reputation",
		Threat: domain.ThreatPhishing,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			rep := fv.Sender.ReputationScore
			if rep <= 0 || rep >= neutralReputation {
				return 0, "", false
			}
			return (neutralReputation - rep) / 100, fmt.Sprintf("Sender reputation %.0f/100", rep), true
		},
	},
	{
		Name:   "previous_threats",
		Threat: domain.ThreatPhishing,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			n := fv.Sender.PreviousThreats
			if n <= 0 {
				return 0, "", false
			}
			return capped(n, previousThreatPer, previousThreatMax), fmt.Sprintf("%d earlier threat(s) from this sender", n), true
		},
	},
	flag("known_contact", -0.25, domain.ThreatClean, "Sender is a known contact",
		func(fv *domain.FeatureVector) bool { return fv.Sender.IsKnownContact }),
	flag("internal_sender", -0.30, domain.ThreatClean, "Sender is internal",
		func(fv *domain.FeatureVector) bool { return fv.Sender.IsInternal }),
}
