package scoring

import (
	"fmt"

	"github.com/stoik/threat-engine/internal/domain"
)

// ContentScorer scores urgency, requested actions and spam markers in the body
//
// Social engineering pairs time pressure with an action: enter credentials,
// pay an invoice, buy gift cards. Urgency alone is common in legitimate mail,
// so it only contributes once the front end rates it at 40 or above.
type ContentScorer struct{}

// NewContentScorer creates a new content scorer
func NewContentScorer() *ContentScorer {
	return &ContentScorer{}
}

// Category returns the content category
func (s *ContentScorer) Category() domain.Category {
	return domain.CategoryContent
}

// Indicators returns the content rule table
func (s *ContentScorer) Indicators() []Indicator {
	return contentIndicators
}

const (
	urgencyFloor         = 40.0
	capsRatioLimit       = 0.3
	exclamationLimit     = 3
	impersonationPer     = 0.10
	impersonationMax     = 0.30
	suspiciousKeywordPer = 0.05
	suspiciousKeywordMax = 0.25
)

var contentIndicators = []Indicator{
	{
		Name:   "urgency",
		Threat: domain.ThreatPhishing,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			u := fv.Content.UrgencyScore
			if u < urgencyFloor {
				return 0, "", false
			}
			return clamp(u, 0, 100) / 100 * 0.30, fmt.Sprintf("Urgent language (score %.0f)", u), true
		},
	},
	flag("credential_request", 0.40, domain.ThreatPhishing, "Asks for credentials or a login",
		func(fv *domain.FeatureVector) bool { return fv.Content.CredentialRequest }),
	flag("financial_request", 0.30, domain.ThreatBEC, "Requests a payment or bank change",
		func(fv *domain.FeatureVector) bool { return fv.Content.FinancialRequest }),
	flag("gift_card_request", 0.35, domain.ThreatBEC, "Requests gift card purchases",
		func(fv *domain.FeatureVector) bool { return fv.Content.GiftCardRequest }),
	flag("threat_language", 0.20, domain.ThreatPhishing, "Threatens account closure or penalties",
		func(fv *domain.FeatureVector) bool { return fv.Content.ThreatLanguage }),
	{
		Name:   "impersonation_phrases",
		Threat: domain.ThreatBEC,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			n := fv.Content.ImpersonationPhrases
			if n <= 0 {
				return 0, "", false
			}
			return capped(n, impersonationPer, impersonationMax), fmt.Sprintf("%d impersonation phrase(s)", n), true
		},
	},
	{
		Name:   "suspicious_keywords",
		Threat: domain.ThreatSpam,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			n := fv.Content.SuspiciousKeywords
			if n <= 0 {
				return 0, "", false
			}
			return capped(n, suspiciousKeywordPer, suspiciousKeywordMax), fmt.Sprintf("%d suspicious keyword(s)", n), true
		},
	},
	flag("hidden_text", 0.15, domain.ThreatPhishing, "Contains hidden text",
		func(fv *domain.FeatureVector) bool { return fv.Content.HiddenText }),
	flag("html_only", 0.05, domain.ThreatSpam, "HTML body without a text alternative",
		func(fv *domain.FeatureVector) bool { return fv.Content.HTMLOnly }),
	{
		Name:   "excessive_caps",
		Threat: domain.ThreatSpam,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			if fv.Content.CapsRatio <= capsRatioLimit {
				return 0, "", false
			}
			return 0.10, fmt.Sprintf("%.0f%% of text in capitals", fv.Content.CapsRatio*100), true
		},
	},
	{
		Name:   "excessive_exclamation",
		Threat: domain.ThreatSpam,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			if fv.Content.ExclamationCount <= exclamationLimit {
				return 0, "", false
			}
			return 0.05, fmt.Sprintf("%d exclamation marks", fv.Content.ExclamationCount), true
		},
	},
	flag("marketing_language", 0.15, domain.ThreatSpam, "Promotional wording",
		func(fv *domain.FeatureVector) bool { return fv.Content.MarketingLanguage }),
}
