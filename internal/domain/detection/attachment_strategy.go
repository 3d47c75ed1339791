package detection

import (
	"path"
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
)

// AttachmentStrategy classifies attachment file names
//
// Attack pattern: malicious attachments are the #1 malware delivery method
type AttachmentStrategy struct {
	executable []string
	macro      []string
	archive    []string
	html       []string
}

// NewAttachmentStrategy creates a new attachment strategy
func NewAttachmentStrategy() *AttachmentStrategy {
	return &AttachmentStrategy{
		// Can run arbitrary code on the victim's machine
		executable: []string{
			".exe", ".scr", ".bat", ".cmd", ".com", ".pif",
			".vbs", ".js", ".jar", ".msi", ".app", ".ps1", ".lnk",
		},
		// Office formats with macro support
		macro:   []string{".doc", ".xls", ".xlsm", ".docm", ".pptm"},
		archive: []string{".zip", ".rar", ".7z", ".iso", ".img"},
		html:    []string{".html", ".htm", ".shtml"},
	}
}

// Name returns the strategy name
func (s *AttachmentStrategy) Name() string {
	return "Attachments"
}

// Apply sets attachment features from the file names
func (s *AttachmentStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	a := &fv.Attachment
	a.Count = len(msg.Attachments)

	for _, name := range msg.Attachments {
		filename := strings.ToLower(strings.TrimSpace(name))
		ext := path.Ext(filename)

		a.HasExecutable = a.HasExecutable || containsString(s.executable, ext)
		a.HasMacro = a.HasMacro || containsString(s.macro, ext)
		a.HasArchive = a.HasArchive || containsString(s.archive, ext)
		a.HasHTMLAttachment = a.HasHTMLAttachment || containsString(s.html, ext)

		// invoice.pdf.exe; legitimate files rarely carry two extensions
		if strings.Count(strings.TrimPrefix(filename, "."), ".") > 1 {
			a.HasDoubleExtension = true
		}
	}

	// The password for an encrypted archive travels in the body
	a.HasPasswordProtectedArchive = a.HasArchive && containsAny(msg.text, []string{"password", "mot de passe"})
}
