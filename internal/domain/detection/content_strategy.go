package detection

import (
	"strings"
	"unicode"

	"github.com/stoik/threat-engine/internal/domain"
)

// ContentStrategy detects credential lures, threats and marketing language
type ContentStrategy struct {
	credential []string
	threat     []string
	marketing  []string
	suspicious []string
}

// NewContentStrategy creates a new body language strategy
func NewContentStrategy() *ContentStrategy {
	return &ContentStrategy{
		credential: []string{
			"verify your account", "confirm your identity", "password", "sign in to",
			"log in to", "update your credentials", "validate your mailbox",
		},
		threat: []string{
			"suspension", "suspended", "will be closed", "terminated", "legal action", "locked",
		},
		marketing: []string{
			"newsletter", "% off", "deals", "limited offer", "promo", "sale ends",
		},
		suspicious: []string{
			"verify", "account", "click here", "winner", "free", "deal", "bitcoin",
			"refund", "expire", "security alert",
		},
	}
}

// Name returns the strategy name
func (s *ContentStrategy) Name() string {
	return "Body Language"
}

// Apply sets the remaining content features
func (s *ContentStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	c := &fv.Content
	c.CredentialRequest = containsAny(msg.text, s.credential)
	c.ThreatLanguage = containsAny(msg.text, s.threat)
	c.MarketingLanguage = containsAny(msg.text, s.marketing)
	c.SuspiciousKeywords = countKeywords(msg.text, s.suspicious)
	c.HTMLOnly = msg.HTMLOnly
	c.HiddenText = strings.Contains(msg.text, "display:none") || strings.Contains(msg.text, "font-size:0")

	raw := msg.Subject + " " + msg.Body
	c.ExclamationCount = strings.Count(raw, "!")
	c.CapsRatio = capsRatio(raw)
}

// capsRatio is the share of uppercase letters among all letters
func capsRatio(s string) float64 {
	letters, upper := 0, 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
