package scoring

import (
	"fmt"

	"github.com/stoik/threat-engine/internal/domain"
)

// URLScorer scores the links of a message
type URLScorer struct{}

// NewURLScorer creates a new URL scorer
func NewURLScorer() *URLScorer {
	return &URLScorer{}
}

// Category returns the url category
func (s *URLScorer) Category() domain.Category {
	return domain.CategoryURL
}

// Indicators returns the url rule table
func (s *URLScorer) Indicators() []Indicator {
	return urlIndicators
}

// countRule fires a fixed delta when the selected counter is positive
func countRule(name string, delta float64, what string, count func(fv *domain.FeatureVector) int) Indicator {
	return Indicator{
		Name:   name,
		Threat: domain.ThreatPhishing,
		Eval: func(fv *domain.FeatureVector) (float64, string, bool) {
			n := count(fv)
			if n <= 0 {
				return 0, "", false
			}
			return delta, fmt.Sprintf("%d %s", n, what), true
		},
	}
}

var urlIndicators = []Indicator{
	countRule("malicious_url", 0.60, "link(s) flagged malicious",
		func(fv *domain.FeatureVector) int { return fv.URL.MaliciousCount }),
	countRule("shortened_url", 0.15, "shortened link(s)",
		func(fv *domain.FeatureVector) int { return fv.URL.ShortenedCount }),
	countRule("ip_address_url", 0.30, "link(s) to a raw IP address",
		func(fv *domain.FeatureVector) int { return fv.URL.IPAddressCount }),
	countRule("mismatched_anchor", 0.25, "link(s) whose text shows another destination",
		func(fv *domain.FeatureVector) int { return fv.URL.MismatchedAnchors }),
	countRule("new_domain_url", 0.20, "link(s) to recently registered domains",
		func(fv *domain.FeatureVector) int { return fv.URL.NewDomainCount }),
	countRule("suspicious_tld", 0.15, "link(s) on abused top-level domains",
		func(fv *domain.FeatureVector) int { return fv.URL.SuspiciousTLDCount }),
	countRule("login_form_link", 0.30, "link(s) to login forms",
		func(fv *domain.FeatureVector) int { return fv.URL.LoginFormLinks }),
}
