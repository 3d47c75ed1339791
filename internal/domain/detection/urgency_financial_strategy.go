package detection

import (
	"math"

	"github.com/stoik/threat-engine/internal/domain"
)

// UrgencyFinancialStrategy scores urgency and detects payment requests
type UrgencyFinancialStrategy struct {
	urgency   []string
	authority []string
	financial []string
	wire      []string
	giftCard  []string
}

// NewUrgencyFinancialStrategy creates a new urgency + financial language strategy
func NewUrgencyFinancialStrategy() *UrgencyFinancialStrategy {
	return &UrgencyFinancialStrategy{
		urgency: []string{
			"urgent", "immediate", "asap", "right away", "time sensitive",
			"today", "end of day", "within 24 hours", "need this now", "hurry",
			"immédiatement", "au plus vite", "sans délai",
		},
		authority: []string{
			"ceo", "president", "director", "approved", "authorized", "confidential",
			"do not discuss", "between us", "sensitive",
		},
		financial: []string{
			"payment", "invoice", "bank account", "routing number", "pay ",
			"facture", "paiement", "virement",
		},
		wire: []string{
			"wire transfer", "wire the", "swift", "iban", "bank details", "new account",
			"virement", "coordonnées bancaires",
		},
		giftCard: []string{"gift card", "itunes", "google play", "prepaid card", "steam card"},
	}
}

// Name returns the strategy name
func (s *UrgencyFinancialStrategy) Name() string {
	return "Urgency + Financial Keywords"
}

// Apply sets the urgency score and payment request flags.
// Each urgency keyword is worth 30 points and each authority keyword 10, capped at 100.
func (s *UrgencyFinancialStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	urgencyCount := countKeywords(msg.text, s.urgency)
	authorityCount := countKeywords(msg.text, s.authority)
	fv.Content.UrgencyScore = math.Min(float64(urgencyCount)*30+float64(authorityCount)*10, 100)

	fv.Behavioral.WireTransferLanguage = containsAny(msg.text, s.wire)
	fv.Content.GiftCardRequest = containsAny(msg.text, s.giftCard)
	fv.Content.FinancialRequest = fv.Behavioral.WireTransferLanguage || containsAny(msg.text, s.financial)
}
