package detection

import (
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
)

// TyposquattingStrategy detects cousin domains of trusted senders
type TyposquattingStrategy struct{}

// NewTyposquattingStrategy creates a new domain typosquatting strategy
func NewTyposquattingStrategy() *TyposquattingStrategy {
	return &TyposquattingStrategy{}
}

// Name returns the strategy name
func (s *TyposquattingStrategy) Name() string {
	return "Domain Typosquatting"
}

// Apply flags a sender domain that is very similar but not identical to a
// trusted or internal domain
func (s *TyposquattingStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	sender := learning.RegistrableDomain(msg.SenderDomain)
	if sender == "" {
		return
	}
	candidates := append(append([]string{}, dctx.TrustedDomains...), dctx.InternalDomains...)
	for _, trusted := range candidates {
		if similarity(sender, trusted) > 85 && sender != trusted {
			fv.Sender.IsCousinDomain = true
			return
		}
	}
}

// similarity is the Levenshtein similarity of two strings in percent
func similarity(a, b string) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 100
	}
	return (1.0 - float64(levenshteinDistance(a, b))/float64(maxLen)) * 100
}
