package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Category names one of the six signal groups of a feature vector
type Category string

const (
	CategoryHeader     Category = "header"
	CategoryContent    Category = "content"
	CategorySender     Category = "sender"
	CategoryURL        Category = "url"
	CategoryAttachment Category = "attachment"
	CategoryBehavioral Category = "behavioral"
)

// Categories lists every category in scoring order
var Categories = []Category{
	CategoryHeader,
	CategoryContent,
	CategorySender,
	CategoryURL,
	CategoryAttachment,
	CategoryBehavioral,
}

// Envelope carries the identifying values learned rules are matched against.
// It is not scored directly.
type Envelope struct {
	SenderEmail  string    `json:"sender_email"`
	SenderDomain string    `json:"sender_domain"`
	Subject      string    `json:"subject"`
	BodyPreview  string    `json:"body_preview,omitempty"`
	URLs         []string  `json:"urls,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// HeaderFeatures are authentication and routing signals
type HeaderFeatures struct {
	SPFFail             bool `json:"spf_fail"`
	SPFSoftFail         bool `json:"spf_softfail"`
	DKIMFail            bool `json:"dkim_fail"`
	DMARCFail           bool `json:"dmarc_fail"`
	ReplyToMismatch     bool `json:"reply_to_mismatch"`
	ReturnPathMismatch  bool `json:"return_path_mismatch"`
	DisplayNameSpoof    bool `json:"display_name_spoof"`
	MissingMessageID    bool `json:"missing_message_id"`
	SuspiciousMailer    bool `json:"suspicious_mailer"`
	HopCount            int  `json:"hop_count"`
	AuthenticatedSender bool `json:"authenticated_sender"`
}

// ContentFeatures are language and body-structure signals
type ContentFeatures struct {
	UrgencyScore         float64 `json:"urgency_score"` // 0-100
	CredentialRequest    bool    `json:"credential_request"`
	FinancialRequest     bool    `json:"financial_request"`
	GiftCardRequest      bool    `json:"gift_card_request"`
	ThreatLanguage       bool    `json:"threat_language"`
	ImpersonationPhrases int     `json:"impersonation_phrases"`
	SuspiciousKeywords   int     `json:"suspicious_keywords"`
	HiddenText           bool    `json:"hidden_text"`
	HTMLOnly             bool    `json:"html_only"`
	CapsRatio            float64 `json:"caps_ratio"` // 0-1
	ExclamationCount     int     `json:"exclamation_count"`
	MarketingLanguage    bool    `json:"marketing_language"`
}

// SenderFeatures describe the sending identity
type SenderFeatures struct {
	IsNewDomain     bool    `json:"is_new_domain"`
	DomainAgeDays   int     `json:"domain_age_days"` // 0 when unknown
	IsCousinDomain  bool    `json:"is_cousin_domain"`
	IsFreemail      bool    `json:"is_freemail"`
	IsFirstContact  bool    `json:"is_first_contact"`
	IsKnownContact  bool    `json:"is_known_contact"`
	IsInternal      bool    `json:"is_internal"`
	ReputationScore float64 `json:"reputation_score"` // 1-100, 0 when not looked up
	PreviousThreats int     `json:"previous_threats"`
}

// URLFeatures summarize the links in the message
type URLFeatures struct {
	Count              int `json:"count"`
	MaliciousCount     int `json:"malicious_count"`
	ShortenedCount     int `json:"shortened_count"`
	IPAddressCount     int `json:"ip_address_count"`
	MismatchedAnchors  int `json:"mismatched_anchors"`
	NewDomainCount     int `json:"new_domain_count"`
	SuspiciousTLDCount int `json:"suspicious_tld_count"`
	LoginFormLinks     int `json:"login_form_links"`
}

// AttachmentFeatures summarize attached files
type AttachmentFeatures struct {
	Count                       int  `json:"count"`
	HasExecutable               bool `json:"has_executable"`
	HasMacro                    bool `json:"has_macro"`
	HasDoubleExtension          bool `json:"has_double_extension"`
	HasArchive                  bool `json:"has_archive"`
	HasPasswordProtectedArchive bool `json:"has_password_protected_archive"`
	MaliciousHash               bool `json:"malicious_hash"`
	HasHTMLAttachment           bool `json:"has_html_attachment"`
}

// BehavioralFeatures are conversation-level signals
type BehavioralFeatures struct {
	BECPattern                bool `json:"bec_pattern"`
	WireTransferLanguage      bool `json:"wire_transfer_language"`
	ExecutiveImpersonation    bool `json:"executive_impersonation"`
	UnusualSendTime           bool `json:"unusual_send_time"`
	FirstTimeRecipientPattern bool `json:"first_time_recipient_pattern"`
	VolumeAnomaly             bool `json:"volume_anomaly"`
	IsReplyChain              bool `json:"is_reply_chain"`
	HasUnsubscribe            bool `json:"has_unsubscribe"`
}

// FeatureVector is the immutable per-email snapshot consumed by the scoring engine.
// It is stored verbatim inside verdict records for replay.
type FeatureVector struct {
	MessageID  string             `json:"message_id"`
	TenantID   uuid.UUID          `json:"tenant_id"`
	Envelope   Envelope           `json:"envelope"`
	Header     HeaderFeatures     `json:"header"`
	Content    ContentFeatures    `json:"content"`
	Sender     SenderFeatures     `json:"sender"`
	URL        URLFeatures        `json:"url"`
	Attachment AttachmentFeatures `json:"attachment"`
	Behavioral BehavioralFeatures `json:"behavioral"`
}

// Fingerprint identifies the scored signals of a feature vector.
// Message and tenant identity are excluded so identical emails share cache entries.
func (fv *FeatureVector) Fingerprint() string {
	signals := struct {
		Header     HeaderFeatures     `json:"h"`
		Content    ContentFeatures    `json:"c"`
		Sender     SenderFeatures     `json:"s"`
		URL        URLFeatures        `json:"u"`
		Attachment AttachmentFeatures `json:"a"`
		Behavioral BehavioralFeatures `json:"b"`
	}{fv.Header, fv.Content, fv.Sender, fv.URL, fv.Attachment, fv.Behavioral}

	// Marshalling plain structs of scalars cannot fail
	data, _ := json.Marshal(signals)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
