package detection

import (
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
)

// BECRoleStrategy detects Business Email Compromise attempts targeting high-value roles.
// Roles and keywords cover English and French mail.
type BECRoleStrategy struct {
	cSuiteRoles  []string
	financeRoles []string
	hrRoles      []string

	urgency     []string
	payment     []string
	payrollDocs []string
}

// NewBECRoleStrategy creates a new BEC role targeting strategy
func NewBECRoleStrategy() *BECRoleStrategy {
	return &BECRoleStrategy{
		cSuiteRoles: []string{
			"ceo", "cfo", "cto", "coo", "president", "chief", "vice president", "vp",
			"pdg", "président directeur général", "directeur général", "dg",
			"daf", "directeur administratif et financier", "directeur financier",
			"dsi", "direction générale",
		},
		financeRoles: []string{
			"finance", "accounting", "treasurer", "controller", "payroll", "accounts payable",
			"comptabilité", "comptable", "trésorier", "trésorerie",
			"contrôleur de gestion", "responsable financier", "paie",
		},
		hrRoles: []string{
			"hr", "human resources", "recruiting", "talent",
			"drh", "ressources humaines", "rh", "recrutement",
		},
		urgency: []string{
			"urgent", "immediately", "asap", "today", "right away",
			"immédiatement", "rapidement", "aujourd'hui", "tout de suite", "au plus vite",
			"sans délai", "en urgence",
		},
		payment: []string{
			"wire transfer", "payment", "invoice", "bank account", "routing", "iban", "swift",
			"virement", "paiement", "facture", "compte bancaire", "coordonnées bancaires",
		},
		payrollDocs: []string{
			"tax form", "w-2", "payroll",
			"bulletin de paie", "bulletin de salaire", "fiche de paie",
			"numéro de sécurité sociale", "attestation fiscale",
		},
	}
}

// Name returns the strategy name
func (s *BECRoleStrategy) Name() string {
	return "BEC Role Targeting"
}

// Apply flags an external message matching the attack pattern of its
// recipient's role: urgent wires to executives, payment requests to finance,
// payroll documents from HR
func (s *BECRoleStrategy) Apply(msg *ParsedMessage, dctx *Context, fv *domain.FeatureVector) {
	if msg.RecipientRole == "" || !dctx.isExternal(msg.SenderDomain) {
		return
	}

	role := strings.ToLower(msg.RecipientRole)
	words := strings.FieldsFunc(role, isNameSeparator)
	isCsuite := roleMatches(role, words, s.cSuiteRoles)
	isFinance := roleMatches(role, words, s.financeRoles)
	isHR := roleMatches(role, words, s.hrRoles)

	hasUrgency := containsAny(msg.text, s.urgency)
	hasPayment := containsAny(msg.text, s.payment)
	hasPayrollDoc := containsAny(msg.text, s.payrollDocs)

	switch {
	case isCsuite && hasUrgency && hasPayment:
		fv.Behavioral.BECPattern = true
	case isFinance && hasPayment:
		fv.Behavioral.BECPattern = true
	case isHR && hasPayrollDoc:
		fv.Behavioral.BECPattern = true
	}
}

// roleMatches matches short titles ("hr", "vp") as whole words and longer
// ones as substrings
func roleMatches(role string, words, titles []string) bool {
	for _, title := range titles {
		if len(title) <= 3 {
			if containsString(words, title) {
				return true
			}
			continue
		}
		if strings.Contains(role, title) {
			return true
		}
	}
	return false
}
