package detection

import (
	"net/mail"
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
)

// ReplyToStrategy detects replies and bounces routed away from the sender
type ReplyToStrategy struct{}

// NewReplyToStrategy creates a new Reply-To mismatch strategy
func NewReplyToStrategy() *ReplyToStrategy {
	return &ReplyToStrategy{}
}

// Name returns the strategy name
func (s *ReplyToStrategy) Name() string {
	return "Reply-To Mismatch"
}

// Apply flags Reply-To and Return-Path headers outside the sending organization
func (s *ReplyToStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	if replyTo := addressDomain(msg.ReplyTo); replyTo != "" {
		fv.Header.ReplyToMismatch = !sameOrganization(replyTo, msg.SenderDomain)
	}
	if returnPath := addressDomain(msg.ReturnPath); returnPath != "" {
		fv.Header.ReturnPathMismatch = !sameOrganization(returnPath, msg.SenderDomain)
	}
}

// addressDomain accepts both "Name <a@b>" and bare addresses
func addressDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return learning.DomainOf(addr.Address)
	}
	return learning.DomainOf(strings.Trim(raw, "<>"))
}
