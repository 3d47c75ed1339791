package detection

import (
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
)

// newDomainDays is the age under which a registered domain counts as new
const newDomainDays = 30

// SenderStrategy resolves the sender against tenant history
type SenderStrategy struct{}

// NewSenderStrategy creates a new sender identity strategy
func NewSenderStrategy() *SenderStrategy {
	return &SenderStrategy{}
}

// Name returns the strategy name
func (s *SenderStrategy) Name() string {
	return "Sender Identity"
}

// Apply sets sender history, domain age and reputation
func (s *SenderStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	sf := &fv.Sender
	org := learning.RegistrableDomain(msg.SenderDomain)

	sf.IsInternal = !dctx.isExternal(msg.SenderDomain)
	sf.IsFreemail = isFreemail(msg.SenderDomain)
	sf.IsKnownContact = containsString(dctx.KnownSenders, msg.SenderEmail)
	sf.IsFirstContact = !sf.IsKnownContact && !sf.IsInternal

	if age, ok := dctx.DomainAges[org]; ok {
		sf.DomainAgeDays = age
		sf.IsNewDomain = age < newDomainDays
	}
	sf.ReputationScore = dctx.Reputation[org]

	b := &fv.Behavioral
	b.HasUnsubscribe = msg.Headers.Get("List-Unsubscribe") != "" || strings.Contains(msg.text, "unsubscribe")
	b.IsReplyChain = msg.Headers.Get("In-Reply-To") != "" || strings.HasPrefix(strings.ToLower(msg.Subject), "re:")
	if !msg.ReceivedAt.IsZero() {
		hour := msg.ReceivedAt.UTC().Hour()
		b.UnusualSendTime = hour < 6 || hour >= 22
	}
}
