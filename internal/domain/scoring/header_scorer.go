package scoring

import (
	"fmt"

	"github.com/stoik/threat-engine/internal/domain"
)

// HeaderScorer scores authentication and routing signals
//
// SPF, DKIM and DMARC verify that a message really comes from the claimed
// domain. Failures, mismatched reply paths and spoofed display names are the
// backbone of impersonation. A sender authenticated by the organization's own
// gateway pulls the score back down.
type HeaderScorer struct{}

// NewHeaderScorer creates a new header scorer
func NewHeaderScorer() *HeaderScorer {
	return &HeaderScorer{}
}

// Category returns the header category
func (s *HeaderScorer) Category() domain.Category {
	return domain.CategoryHeader
}

// Indicators returns the header rule table
func (s *HeaderScorer) Indicators() []Indicator {
	return headerIndicators
}

const maxNormalHops = 8

var headerIndicators = []Indicator{
	flag("spf_fail", 0.30, domain.ThreatPhishing, "SPF check failed",
		func(fv *domain.FeatureVector) bool { return fv.Header.SPFFail }),
	flag("spf_softfail", 0.10, domain.ThreatPhishing, "SPF soft fail",
		func(fv *domain.FeatureVector) bool { return fv.Header.SPFSoftFail && !fv.Header.SPFFail }),
	flag("dkim_fail", 0.25, domain.ThreatPhishing, "DKIM signature invalid",
		func(fv *domain.FeatureVector) bool { return fv.Header.DKIMFail }),
	flag("dmarc_fail", 0.30, domain.ThreatPhishing, "DMARC policy failed",
		func(fv *domain.FeatureVector) bool { return fv.Header.DMARCFail }),
	// Replies silently go elsewhere, classic BEC setup
	flag("reply_to_mismatch", 0.20, domain.ThreatBEC, "Reply-To differs from sender",
		func(fv *domain.FeatureVector) bool { return fv.Header.ReplyToMismatch }),
	flag("return_path_mismatch", 0.10, domain.ThreatPhishing, "Return-Path differs from sender",
		func(fv *domain.FeatureVector) bool { return fv.Header.ReturnPathMismatch }),
	flag("display_name_spoof", 0.25, domain.ThreatBEC, "Display name impersonates a known person",
		func(fv *domain.FeatureVector) bool { return fv.Header.DisplayNameSpoof }),
	flag("missing_message_id", 0.10, domain.ThreatSpam, "Message-ID header missing",
		func(fv *domain.FeatureVector) bool { return fv.Header.MissingMessageID }),
	flag("suspicious_mailer", 0.10, domain.ThreatSpam, "Sent with a bulk or scripted mailer",
		func(fv *domain.FeatureVector) bool { return fv.Header.SuspiciousMailer }),
	{
		Name:   "excessive_hops",
		Threat: domain.ThreatSpam,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			if fv.Header.HopCount <= maxNormalHops {
				return 0, "", false
			}
			return 0.05, fmt.Sprintf("Relayed through %d hops", fv.Header.HopCount), true
		},
	},
	flag("authenticated_sender", -0.20, domain.ThreatClean, "Sender authenticated by the organization",
		func(fv *domain.FeatureVector) bool { return fv.Header.AuthenticatedSender }),
}
