package decision

import "github.com/stoik/threat-engine/internal/domain"

// VerdictFor is the verdict an operator sees for a risk level
func VerdictFor(level domain.RiskLevel) domain.AdminVerdict {
	switch level {
	case domain.RiskCritical:
		return domain.VerdictBlock
	case domain.RiskHigh:
		return domain.VerdictQuarantine
	case domain.RiskMedium:
		return domain.VerdictSuspicious
	default:
		return domain.VerdictPass
	}
}

// SnapshotOf extracts the mined values from a stored verdict.
// The deterministic score is the weighted sum before calibration, the ML
// score the calibrated output before learned rules.
func SnapshotOf(rec domain.VerdictRecord) domain.DecisionSnapshot {
	fv := rec.Features
	return domain.DecisionSnapshot{
		SenderEmail:          fv.Envelope.SenderEmail,
		SenderDomain:         fv.Envelope.SenderDomain,
		Subject:              fv.Envelope.Subject,
		ThreatScore:          round(rec.Result.ThreatScore*100, 2),
		DeterministicScore:   round(rec.Result.RawCombined*100, 2),
		MLScore:              round(rec.Result.BaseScore*100, 2),
		UrgencyScore:         fv.Content.UrgencyScore,
		URLCount:             fv.URL.Count,
		AttachmentCount:      fv.Attachment.Count,
		HasFinancialRequest:  fv.Content.FinancialRequest || fv.Content.GiftCardRequest || fv.Behavioral.WireTransferLanguage,
		HasCredentialRequest: fv.Content.CredentialRequest || fv.URL.LoginFormLinks > 0,
	}
}
