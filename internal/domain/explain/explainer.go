package explain

import (
	"fmt"
	"math"
	"strings"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/scoring"
)

// Explainer renders verdicts for different audiences.
// It only reads verdicts; the engine is used to replay them for counterfactuals.
type Explainer struct {
	engine *scoring.Engine
}

// New creates an explainer replaying verdicts with engine
func New(engine *scoring.Engine) *Explainer {
	return &Explainer{engine: engine}
}

var (
	validAudiences = map[domain.Audience]bool{
		domain.AudienceEndUser:   true,
		domain.AudienceAnalyst:   true,
		domain.AudienceAdmin:     true,
		domain.AudienceExecutive: true,
	}
	validLevels = map[domain.DetailLevel]bool{
		domain.DetailBrief:     true,
		domain.DetailDetailed:  true,
		domain.DetailTechnical: true,
	}
)

// ValidateRequest rejects unknown audiences and detail levels
func ValidateRequest(audience domain.Audience, level domain.DetailLevel) error {
	if !validAudiences[audience] {
		return domain.NewValidationError(fmt.Sprintf("unknown audience %q", audience))
	}
	if !validLevels[level] {
		return domain.NewValidationError(fmt.Sprintf("unknown detail level %q", level))
	}
	return nil
}

// FactorLimit is how many top factors an audience sees at a detail level.
// Zero means no limit.
func FactorLimit(audience domain.Audience, level domain.DetailLevel) int {
	switch audience {
	case domain.AudienceEndUser, domain.AudienceExecutive:
		return 3
	}
	switch level {
	case domain.DetailBrief:
		return 5
	case domain.DetailDetailed:
		return 10
	default:
		return 0
	}
}

func isTechnicalAudience(a domain.Audience) bool {
	return a == domain.AudienceAnalyst || a == domain.AudienceAdmin
}

// Explain renders a stored verdict for an audience
func (x *Explainer) Explain(rec domain.VerdictRecord, audience domain.Audience, level domain.DetailLevel) (domain.Explanation, error) {
	if err := ValidateRequest(audience, level); err != nil {
		return domain.Explanation{}, err
	}
	res := rec.Result

	exp := domain.Explanation{
		VerdictID:       res.VerdictID,
		Audience:        audience,
		Level:           level,
		ThreatType:      res.ThreatType,
		RiskLevel:       res.RiskLevel,
		Confidence:      res.Confidence,
		TopFactors:      factors(rec, audience, level),
		Recommendations: recommendations(rec, audience),
	}
	exp.Summary = summary(rec, audience, exp.TopFactors)

	if isTechnicalAudience(audience) && level != domain.DetailBrief {
		exp.Technical = &domain.TechnicalDetails{
			FeatureImportance: res.FeatureImportance,
			RawScores:         res.RawScores,
			RawCombined:       res.RawCombined,
			Thresholds:        rec.Thresholds,
			ModelVersion:      res.ModelVersion,
			ABTestVariant:     res.ABTestVariant,
			RuleAdjustment:    res.RuleAdjustment,
		}
	}
	return exp, nil
}

func factors(rec domain.VerdictRecord, audience domain.Audience, level domain.DetailLevel) []domain.Factor {
	evidence := make(map[string]string, len(rec.Indicators))
	for _, f := range rec.Indicators {
		evidence[f.Key()] = f.Evidence
	}

	limit := FactorLimit(audience, level)
	out := make([]domain.Factor, 0)
	for _, c := range rec.Result.FeatureImportance {
		// end users and executives only hear about what made the mail risky
		if !isTechnicalAudience(audience) && (c.Direction != domain.IncreasesRisk || c.Contribution == 0) {
			continue
		}
		desc := evidence[c.Feature]
		if desc == "" {
			desc = c.Feature
		}
		out = append(out, domain.Factor{
			Feature:      c.Feature,
			Category:     c.Category,
			Description:  desc,
			Contribution: c.Contribution,
			Direction:    c.Direction,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

var threatNames = map[domain.ThreatType]string{
	domain.ThreatPhishing: "phishing",
	domain.ThreatBEC:      "business email compromise",
	domain.ThreatMalware:  "malware",
	domain.ThreatSpam:     "spam",
	domain.ThreatClean:    "no threat",
}

var endUserNouns = map[domain.ThreatType]string{
	domain.ThreatPhishing: "a phishing attempt",
	domain.ThreatBEC:      "a business email compromise attempt",
	domain.ThreatMalware:  "carrying malware",
	domain.ThreatSpam:     "spam",
	domain.ThreatClean:    "safe",
}

func summary(rec domain.VerdictRecord, audience domain.Audience, top []domain.Factor) string {
	res := rec.Result
	threat := threatNames[res.ThreatType]

	switch audience {
	case domain.AudienceEndUser:
		switch res.RiskLevel {
		case domain.RiskCritical, domain.RiskHigh:
			return fmt.Sprintf("This email is very likely %s and was stopped to protect you.", endUserNouns[res.ThreatType])
		case domain.RiskMedium:
			return fmt.Sprintf("This email shows signs of %s. Be careful with its links, attachments and requests.", threat)
		case domain.RiskLow:
			return "This email looks mostly safe but has minor warning signs."
		default:
			return "No threats were detected in this email."
		}
	case domain.AudienceExecutive:
		if res.ThreatType == domain.ThreatClean {
			return "Email analyzed, no threat detected."
		}
		return fmt.Sprintf("%s threat with %s risk, detected with %.0f%% confidence.",
			capitalize(threat), res.RiskLevel, res.Confidence*100)
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "%s/%s verdict: score %.3f (base %.3f", res.RiskLevel, res.ThreatType, res.ThreatScore, res.BaseScore)
		if adj := res.RuleAdjustment.Adjustment; adj != 0 {
			fmt.Fprintf(&b, ", learned rules %+.1f pts", adj)
		}
		fmt.Fprintf(&b, "), confidence %.2f, model %s", res.Confidence, res.ModelVersion)
		if res.ABTestVariant != "" {
			fmt.Fprintf(&b, " (A/B variant %s)", res.ABTestVariant)
		}
		if len(top) > 0 {
			fmt.Fprintf(&b, ". Top signal: %s", top[0].Feature)
		}
		b.WriteString(".")
		return b.String()
	}
}

func recommendations(rec domain.VerdictRecord, audience domain.Audience) []string {
	res := rec.Result
	severe := res.RiskLevel == domain.RiskCritical || res.RiskLevel == domain.RiskHigh

	switch audience {
	case domain.AudienceEndUser:
		switch res.ThreatType {
		case domain.ThreatPhishing:
			return []string{"Do not click links or enter your password.", "Report the message to your security team."}
		case domain.ThreatBEC:
			return []string{"Verify any payment or data request by calling the sender on a known number.", "Report the message to your security team."}
		case domain.ThreatMalware:
			return []string{"Do not open the attachments.", "Report the message to your security team."}
		case domain.ThreatSpam:
			return []string{"Mark the message as spam."}
		default:
			return []string{"No action needed."}
		}
	case domain.AudienceExecutive:
		if severe {
			return []string{"No action required, the threat was contained automatically."}
		}
		return []string{"No action required."}
	case domain.AudienceAdmin:
		out := make([]string, 0, 3)
		if severe && rec.Features.Envelope.SenderDomain != "" {
			out = append(out, fmt.Sprintf("Consider blocking sender domain %s.", rec.Features.Envelope.SenderDomain))
		}
		if res.RiskLevel == domain.RiskMedium {
			out = append(out, "If this sender is legitimate, add a policy exception instead of releasing messages one by one.")
		}
		out = append(out, "Tune thresholds if verdicts like this one are frequently overridden.")
		return out
	default:
		out := []string{"Review the top indicators against the message content."}
		if severe {
			out = append(out, "Search for other recipients of messages from this sender.")
		}
		if res.RiskLevel == domain.RiskMedium {
			out = append(out, "Confirm or release the message after review.")
		}
		if res.RuleAdjustment.Adjustment != 0 {
			out = append(out, "Check the learned rules that adjusted this verdict.")
		}
		return out
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
