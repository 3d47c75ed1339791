package scoring

import (
	"github.com/stoik/threat-engine/internal/domain"
)

// AttachmentScorer scores attached files
//
// Attack pattern: malicious attachments are the main malware delivery method.
// Executables and known-bad hashes dominate; archives only matter when
// password protected, which defeats gateway scanning.
type AttachmentScorer struct{}

// NewAttachmentScorer creates a new attachment scorer
func NewAttachmentScorer() *AttachmentScorer {
	return &AttachmentScorer{}
}

// Category returns the attachment category
func (s *AttachmentScorer) Category() domain.Category {
	return domain.CategoryAttachment
}

// Indicators returns the attachment rule table
func (s *AttachmentScorer) Indicators() []Indicator {
	return attachmentIndicators
}

var attachmentIndicators = []Indicator{
	flag("malicious_hash", 0.90, domain.ThreatMalware, "Attachment hash matches known malware",
		func(fv *domain.FeatureVector) bool { return fv.Attachment.MaliciousHash }),
	flag("executable", 0.70, domain.ThreatMalware, "Executable or script attached",
		func(fv *domain.FeatureVector) bool { return fv.Attachment.HasExecutable }),
	// invoice.pdf.exe
	flag("double_extension", 0.50, domain.ThreatMalware, "Attachment uses a double extension",
		func(fv *domain.FeatureVector) bool { return fv.Attachment.HasDoubleExtension }),
	flag("macro", 0.45, domain.ThreatMalware, "Office document with macros",
		func(fv *domain.FeatureVector) bool { return fv.Attachment.HasMacro }),
	flag("password_protected_archive", 0.35, domain.ThreatMalware, "Password-protected archive",
		func(fv *domain.FeatureVector) bool { return fv.Attachment.HasPasswordProtectedArchive }),
	flag("archive", 0.10, domain.ThreatMalware, "Archive attached",
		func(fv *domain.FeatureVector) bool {
			return fv.Attachment.HasArchive && !fv.Attachment.HasPasswordProtectedArchive
		}),
	flag("html_attachment", 0.30, domain.ThreatPhishing, "HTML file attached",
		func(fv *domain.FeatureVector) bool { return fv.Attachment.HasHTMLAttachment }),
}
