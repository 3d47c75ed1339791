package scoring

import (
	"github.com/stoik/threat-engine/internal/domain"
)

// BehavioralScorer scores conversation-level patterns
//
// Business Email Compromise rarely carries a payload: the signal is a
// request for money from an apparent executive, outside normal patterns.
// Ongoing reply chains and unsubscribe links are typical of legitimate
// correspondence and bulk mail, and lower the score.
type BehavioralScorer struct{}

// NewBehavioralScorer creates a new behavioral scorer
func NewBehavioralScorer() *BehavioralScorer {
	return &BehavioralScorer{}
}

// Category returns the behavioral category
func (s *BehavioralScorer) Category() domain.Category {
	return domain.CategoryBehavioral
}

// Indicators returns the behavioral rule table
func (s *BehavioralScorer) Indicators() []Indicator {
	return behavioralIndicators
}

var behavioralIndicators = []Indicator{
	flag("bec_pattern", 0.50, domain.ThreatBEC, "Matches a business email compromise pattern",
		func(fv *domain.FeatureVector) bool { return fv.Behavioral.BECPattern }),
	flag("wire_transfer_language", 0.35, domain.ThreatBEC, "Asks for a wire transfer",
		func(fv *domain.FeatureVector) bool { return fv.Behavioral.WireTransferLanguage }),
	flag("executive_impersonation", 0.30, domain.ThreatBEC, "Impersonates an executive",
		func(fv *domain.FeatureVector) bool { return fv.Behavioral.ExecutiveImpersonation }),
	flag("unusual_send_time", 0.10, domain.ThreatBEC, "Sent at an unusual time for this sender",
		func(fv *domain.FeatureVector) bool { return fv.Behavioral.UnusualSendTime }),
	flag("first_time_recipient_pattern", 0.10, domain.ThreatBEC, "Unusual recipient set for this sender",
		func(fv *domain.FeatureVector) bool { return fv.Behavioral.FirstTimeRecipientPattern }),
	flag("volume_anomaly", 0.15, domain.ThreatSpam, "Sending volume spike",
		func(fv *domain.FeatureVector) bool { return fv.Behavioral.VolumeAnomaly }),
	flag("reply_chain", -0.20, domain.ThreatClean, "Part of an existing conversation",
		func(fv *domain.FeatureVector) bool { return fv.Behavioral.IsReplyChain }),
	flag("unsubscribe_present", -0.15, domain.ThreatClean, "Carries a list unsubscribe link",
		func(fv *domain.FeatureVector) bool { return fv.Behavioral.HasUnsubscribe }),
}
