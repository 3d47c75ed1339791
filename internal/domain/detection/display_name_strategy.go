package detection

import (
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
)

// DisplayNameStrategy detects CEO fraud via display name impersonation
type DisplayNameStrategy struct {
	execTitles []string
	phrases    []string
}

// NewDisplayNameStrategy creates a new display name impersonation strategy
func NewDisplayNameStrategy() *DisplayNameStrategy {
	return &DisplayNameStrategy{
		execTitles: []string{"ceo", "cfo", "president", "director", "chief", "vp", "pdg", "daf"},
		phrases: []string{
			"on behalf of", "from the desk of", "i'm in a meeting", "i am in a meeting",
			"can't talk", "do not discuss", "between us", "keep this confidential",
		},
	}
}

// Name returns the strategy name
func (s *DisplayNameStrategy) Name() string {
	return "Display Name Impersonation"
}

// Apply flags an authority display name on an external address
func (s *DisplayNameStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	name := strings.ToLower(msg.SenderName)
	hasExecTitle := false
	for _, word := range strings.FieldsFunc(name, isNameSeparator) {
		if containsString(s.execTitles, word) {
			hasExecTitle = true
			break
		}
	}

	if hasExecTitle && dctx.isExternal(msg.SenderDomain) {
		fv.Header.DisplayNameSpoof = true
		fv.Behavioral.ExecutiveImpersonation = true
	}
	fv.Content.ImpersonationPhrases = countKeywords(msg.text, s.phrases)
}

func isNameSeparator(r rune) bool {
	return r == ' ' || r == ',' || r == '-' || r == '(' || r == ')' || r == '.'
}
