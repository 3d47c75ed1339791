package detection

import (
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

// Detector turns raw messages into feature vectors using pluggable strategies.
//
// Strategies each own a family of signals (authentication, sender identity,
// language, links, attachments, role targeting). They only ever set fields,
// so the order they run in does not matter.
type Detector struct {
	strategies []Strategy
	context    *Context
}

// NewDetector creates a detector with all standard strategies
func NewDetector(dctx *Context) *Detector {
	if dctx == nil {
		dctx = NewContext(nil, nil)
	}

	strategies := []Strategy{
		NewAuthFailuresStrategy(),
		NewReplyToStrategy(),
		NewDisplayNameStrategy(),
		NewSenderStrategy(),
		NewTyposquattingStrategy(),
		NewUrgencyFinancialStrategy(),
		NewContentStrategy(),
		NewURLStrategy(),
		NewAttachmentStrategy(),
		NewBECRoleStrategy(),
	}

	return &Detector{
		strategies: strategies,
		context:    dctx,
	}
}

// Strategies lists the names of the strategies run on every message
func (d *Detector) Strategies() []string {
	names := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract builds the feature vector of one message.
// It fails with a validation error when the sender cannot be resolved.
func (d *Detector) Extract(tenantID uuid.UUID, msg Message) (domain.FeatureVector, error) {
	if msg.MessageID == "" {
		return domain.FeatureVector{}, domain.NewValidationError("message_id is required")
	}
	addr, err := mail.ParseAddress(msg.From)
	if err != nil {
		return domain.FeatureVector{}, domain.NewValidationError(fmt.Sprintf("unparseable sender %q: %v", msg.From, err))
	}
	if !ValidateEmail(addr.Address) {
		return domain.FeatureVector{}, domain.NewValidationError(fmt.Sprintf("invalid sender address %q", addr.Address))
	}

	parsed := newParsedMessage(msg, addr)
	fv := domain.FeatureVector{
		MessageID: msg.MessageID,
		TenantID:  tenantID,
		Envelope: domain.Envelope{
			SenderEmail:  parsed.SenderEmail,
			SenderDomain: parsed.SenderDomain,
			Subject:      msg.Subject,
			BodyPreview:  preview(msg.Body),
			URLs:         msg.URLs,
			ReceivedAt:   msg.ReceivedAt,
		},
	}

	for _, strategy := range d.strategies {
		strategy.Apply(parsed, d.context, &fv)
	}
	return fv, nil
}

const previewLength = 500

func preview(body string) string {
	r := []rune(body)
	if len(r) <= previewLength {
		return body
	}
	return string(r[:previewLength])
}
