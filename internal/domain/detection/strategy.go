package detection

import (
	"net/mail"
	"strings"
	"time"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
)

// Message is an inbound email as handed over by the mail gateway.
// Header keys follow net/mail canonical form ("Received-Spf", "Message-Id").
type Message struct {
	MessageID     string
	From          string // RFC 5322 From, display name included
	ReplyTo       string
	ReturnPath    string
	Subject       string
	Body          string
	HTMLOnly      bool
	URLs          []string
	Attachments   []string
	Headers       mail.Header
	RecipientRole string
	ReceivedAt    time.Time
}

// ParsedMessage is a message with its sender resolved
type ParsedMessage struct {
	Message
	SenderName   string
	SenderEmail  string
	SenderDomain string

	// text is the lowercased subject and body keyword rules match against
	text string
}

func newParsedMessage(msg Message, addr *mail.Address) *ParsedMessage {
	email := strings.ToLower(addr.Address)
	return &ParsedMessage{
		Message:      msg,
		SenderName:   addr.Name,
		SenderEmail:  email,
		SenderDomain: learning.DomainOf(email),
		text:         strings.ToLower(msg.Subject + " " + msg.Body),
	}
}

// Strategy fills the feature groups it owns from a message.
//
// Each signal family is implemented independently so extraction can be
// extended or tested one family at a time.
type Strategy interface {
	// Apply sets the features this strategy derives on fv
	Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector)

	// Name returns the human-readable name of this strategy
	Name() string
}

// Context is the tenant knowledge extraction needs beyond the message itself
type Context struct {
	// InternalDomains are the organization's own domains (e.g., "company.com")
	InternalDomains []string

	// TrustedDomains are legitimate external domains (e.g., "microsoft.com")
	// used for cousin-domain detection
	TrustedDomains []string

	// KnownSenders are addresses the tenant has corresponded with
	KnownSenders []string

	// DomainAges maps registrable domains to their age in days
	DomainAges map[string]int

	// Reputation maps registrable domains to a 1-100 reputation score
	Reputation map[string]float64
}

// NewContext creates an extraction context with no sender history
func NewContext(internalDomains, trustedDomains []string) *Context {
	return &Context{
		InternalDomains: internalDomains,
		TrustedDomains:  trustedDomains,
		DomainAges:      map[string]int{},
		Reputation:      map[string]float64{},
	}
}

func (c *Context) isExternal(domain string) bool {
	return !isInternalDomain(domain, c.InternalDomains)
}
