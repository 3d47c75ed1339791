package samples

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/detection"
	"github.com/stoik/threat-engine/internal/ports"
)

var _ ports.FeatureSource = (*SampleSource)(nil)

// SampleSource implements ports.FeatureSource over a canned mailbox.
// Messages go through the same detection strategies as gateway traffic.
type SampleSource struct {
	logger   *zap.Logger
	detector *detection.Detector
	now      func() time.Time
}

// NewSampleSource creates a source of demo messages
func NewSampleSource(logger *zap.Logger) *SampleSource {
	return &SampleSource{
		logger:   logger,
		detector: detection.NewDetector(demoContext()),
		now:      time.Now,
	}
}

// demoContext is the tenant knowledge shared by all demo tenants
func demoContext() *detection.Context {
	dctx := detection.NewContext(
		[]string{"company.com"},
		[]string{"microsoft.com", "paypal.com", "docusign.net"},
	)
	dctx.KnownSenders = []string{"news@mail.example.com"}
	dctx.DomainAges["external-domain.com"] = 12
	dctx.DomainAges["secure-login-portal.xyz"] = 3
	dctx.DomainAges["example.com"] = 4000
	dctx.Reputation["example.com"] = 80
	return dctx
}

type sample struct {
	msg detection.Message
	age time.Duration
}

var samples = []sample{
	{
		// typosquatted supplier asking for an urgent wire, replies routed to freemail
		msg: detection.Message{
			From:    "Accounts Payable <accounts@companny.com>",
			ReplyTo: "companny.billing@gmail.com",
			Subject: "Invoice #4821 - Payment Required",
			Body:    "Please find attached invoice for immediate payment. Wire transfer to the new account urgently.",
			Headers: mail.Header{
				"Authentication-Results": {"mx.company.com; spf=pass dkim=none dmarc=fail"},
				"Message-Id":             {"<4821@companny.com>"},
			},
			RecipientRole: "Accounts Payable Clerk",
		},
		age: 2 * time.Hour,
	},
	{
		// executive impersonation from an external domain
		msg: detection.Message{
			From:    "CEO John Smith <john@external-domain.com>",
			Subject: "Urgent: Wire Transfer Needed",
			Body:    "I'm in a meeting. Please process this wire transfer immediately, between us.",
			Headers: mail.Header{
				"Message-Id": {"<a1@external-domain.com>"},
			},
			RecipientRole: "CFO",
		},
		age: time.Hour,
	},
	{
		// credential phish with a login form behind a shortener
		msg: detection.Message{
			From:    "IT Helpdesk <support@secure-login-portal.xyz>",
			Subject: "Your mailbox is almost full",
			Body:    "Verify your account within 24 hours to avoid suspension.",
			URLs:    []string{"https://bit.ly/3xYz", "https://secure-login-portal.xyz/owa/login"},
			Headers: mail.Header{
				"Received-Spf":           {"fail (sender not permitted)"},
				"Authentication-Results": {"mx.company.com; spf=fail dkim=fail dmarc=none"},
				"Message-Id":             {"<q9@secure-login-portal.xyz>"},
			},
		},
		age: 30 * time.Minute,
	},
	{
		// legitimate newsletter
		msg: detection.Message{
			From:    "Example News <news@mail.example.com>",
			Subject: "Weekly newsletter: 20% off this week",
			Body:    "Our best deals of the week. Unsubscribe at any time.",
			URLs:    []string{"https://www.example.com/deals"},
			Headers: mail.Header{
				"Authentication-Results": {"mx.company.com; spf=pass dkim=pass dmarc=pass"},
				"List-Unsubscribe":       {"<https://www.example.com/unsubscribe>"},
				"Message-Id":             {"<weekly-12@mail.example.com>"},
			},
		},
		age: 3 * time.Hour,
	},
}

// Fetch returns the feature vectors of the demo messages received after receivedAfter.
// Messages the detector rejects are logged and skipped.
func (s *SampleSource) Fetch(ctx context.Context, tenantID uuid.UUID, receivedAfter time.Time) ([]domain.FeatureVector, error) {
	now := s.now().UTC()
	out := make([]domain.FeatureVector, 0, len(samples))
	for i, smp := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		received := now.Add(-smp.age)
		if !received.After(receivedAfter) {
			continue
		}

		msg := smp.msg
		msg.MessageID = fmt.Sprintf("%s-msg-%03d", tenantID.String()[:8], i+1)
		msg.ReceivedAt = received

		fv, err := s.detector.Extract(tenantID, msg)
		if err != nil {
			s.logger.Warn("Skipping unparseable message",
				zap.String("message_id", msg.MessageID),
				zap.String("from", msg.From),
				zap.Error(err))
			continue
		}
		out = append(out, fv)
	}
	return out, nil
}
