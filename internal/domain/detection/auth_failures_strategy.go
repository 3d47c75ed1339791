package detection

import (
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
)

// AuthFailuresStrategy reads the gateway's authentication verdicts
//
// SPF, DKIM and DMARC verify that an email was legitimately sent from the
// claimed domain. Failures indicate potential spoofing.
type AuthFailuresStrategy struct {
	bulkMailers []string
}

// NewAuthFailuresStrategy creates a new email authentication strategy
func NewAuthFailuresStrategy() *AuthFailuresStrategy {
	return &AuthFailuresStrategy{
		bulkMailers: []string{"phpmailer", "swiftmailer", "sendblaster", "atomic mail", "gammadyne"},
	}
}

// Name returns the strategy name
func (s *AuthFailuresStrategy) Name() string {
	return "Authentication Results"
}

// Apply sets the header authentication features
func (s *AuthFailuresStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	h := &fv.Header

	spf := strings.ToLower(msg.Headers.Get("Received-Spf"))
	switch {
	case strings.HasPrefix(spf, "softfail"):
		h.SPFSoftFail = true
	case strings.HasPrefix(spf, "fail"):
		h.SPFFail = true
	}

	results := strings.ToLower(msg.Headers.Get("Authentication-Results"))
	if strings.Contains(results, "spf=fail") {
		h.SPFFail = true
	}
	if strings.Contains(results, "spf=softfail") {
		h.SPFSoftFail = true
	}
	h.DKIMFail = strings.Contains(results, "dkim=fail")
	h.DMARCFail = strings.Contains(results, "dmarc=fail")

	// Authenticated only when every protocol explicitly passed
	h.AuthenticatedSender = strings.Contains(results, "dkim=pass") &&
		strings.Contains(results, "dmarc=pass") &&
		(strings.Contains(results, "spf=pass") || strings.HasPrefix(spf, "pass"))

	h.MissingMessageID = msg.Headers.Get("Message-Id") == ""
	h.SuspiciousMailer = containsAny(strings.ToLower(msg.Headers.Get("X-Mailer")), s.bulkMailers)
	h.HopCount = len(msg.Headers["Received"])
}
