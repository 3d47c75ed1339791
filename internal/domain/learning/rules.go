package learning

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

const (
	PromotionMinOccurrences = 5
	PromotionMinConfidence  = 70.0

	TrustBoostAdjustment     = -15.0
	SuspicionBoostAdjustment = 20.0
	MaxTotalAdjustment       = 30.0

	RuleLifetime       = 90 * 24 * time.Hour
	PatternDecayAfter  = 30 * 24 * time.Hour
	PatternRetireAfter = 60 * 24 * time.Hour
)

// Promotable reports whether a pattern has earned a learned rule
func Promotable(p domain.FeedbackPattern) bool {
	return p.IsActive && p.OccurrenceCount >= PromotionMinOccurrences && p.Confidence >= PromotionMinConfidence
}

// ConditionFor maps a pattern to the condition its rule will test
func ConditionFor(p domain.FeedbackPattern) (domain.RuleCondition, bool) {
	switch p.PatternType {
	case domain.PatternDomain:
		return domain.RuleCondition{Field: domain.FieldSenderDomain, Operator: domain.OpEquals, Value: p.PatternValue}, true
	case domain.PatternURL:
		return domain.RuleCondition{Field: domain.FieldURLDomain, Operator: domain.OpEquals, Value: p.PatternValue}, true
	case domain.PatternSubject:
		return domain.RuleCondition{Field: domain.FieldSubject, Operator: domain.OpContains, Value: p.PatternValue}, true
	case domain.PatternContent:
		return domain.RuleCondition{Field: domain.FieldContent, Operator: domain.OpContains, Value: p.PatternValue}, true
	default:
		return domain.RuleCondition{}, false
	}
}

// RuleFromPattern synthesizes the rule for a promotable pattern
//
// False-positive patterns become trust boosts, everything else becomes a
// suspicion boost. The rule inherits the pattern's confidence.
func RuleFromPattern(p domain.FeedbackPattern, now time.Time) (domain.LearnedRule, bool) {
	if !Promotable(p) {
		return domain.LearnedRule{}, false
	}
	cond, ok := ConditionFor(p)
	if !ok {
		return domain.LearnedRule{}, false
	}

	rule := domain.LearnedRule{
		ID:                  uuid.New(),
		TenantID:            p.TenantID,
		RuleType:            domain.RuleSuspicionBoost,
		Condition:           cond,
		ScoreAdjustment:     SuspicionBoostAdjustment,
		Confidence:          p.Confidence,
		SourceFeedbackCount: p.OccurrenceCount,
		SourcePatternID:     p.ID,
		IsActive:            true,
		CreatedAt:           now,
	}
	if p.FeedbackType == domain.FeedbackFalsePositive {
		rule.RuleType = domain.RuleTrustBoost
		rule.ScoreAdjustment = TrustBoostAdjustment
	}
	expires := now.Add(RuleLifetime)
	rule.ExpiresAt = &expires
	return rule, true
}

// Matches evaluates a condition against a message envelope.
// A multi-valued field matches when any of its values does.
func Matches(cond domain.RuleCondition, env domain.Envelope) bool {
	want := strings.ToLower(cond.Value)
	for _, v := range fieldValues(cond.Field, env) {
		v = strings.ToLower(v)
		switch cond.Operator {
		case domain.OpEquals:
			if v == want {
				return true
			}
		case domain.OpContains:
			if strings.Contains(v, want) {
				return true
			}
		case domain.OpStartsWith:
			if strings.HasPrefix(v, want) {
				return true
			}
		case domain.OpEndsWith:
			if strings.HasSuffix(v, want) {
				return true
			}
		case domain.OpMatches:
			if re := compiled(cond.Value); re != nil && re.MatchString(v) {
				return true
			}
		}
	}
	return false
}

func fieldValues(field domain.RuleField, env domain.Envelope) []string {
	switch field {
	case domain.FieldSenderDomain:
		return []string{SenderDomain(env.SenderDomain, env.SenderEmail)}
	case domain.FieldSenderEmail:
		return []string{env.SenderEmail}
	case domain.FieldURLDomain:
		out := make([]string, 0, len(env.URLs))
		for _, u := range env.URLs {
			if d := URLDomain(u); d != "" {
				out = append(out, d)
			}
		}
		return out
	case domain.FieldSubject:
		return []string{env.Subject}
	case domain.FieldContent:
		return []string{env.BodyPreview}
	default:
		return nil
	}
}

var regexCache sync.Map // string -> *regexp.Regexp, nil for invalid patterns

func compiled(pattern string) *regexp.Regexp {
	if v, ok := regexCache.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	regexCache.Store(pattern, re)
	return re
}

// ApplicableRules keeps the active, unexpired rules whose condition matches env
func ApplicableRules(rules []domain.LearnedRule, env domain.Envelope, now time.Time) []domain.LearnedRule {
	out := make([]domain.LearnedRule, 0)
	for _, r := range rules {
		if !r.IsActive || (r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)) {
			continue
		}
		if Matches(r.Condition, env) {
			out = append(out, r)
		}
	}
	return out
}

// CalculateRuleAdjustment sums confidence-weighted rule adjustments into [-30, 30]
func CalculateRuleAdjustment(rules []domain.LearnedRule) domain.RuleAdjustment {
	if len(rules) == 0 {
		return domain.RuleAdjustment{}
	}

	total := 0.0
	lines := make([]string, 0, len(rules))
	for _, r := range rules {
		weighted := r.ScoreAdjustment * r.Confidence / 100
		total += weighted

		verb := "increased"
		if weighted < 0 {
			verb = "reduced"
		}
		lines = append(lines, fmt.Sprintf("%s rule on %s %s %q %s risk by %.1f points (confidence %.0f%%, %d reports)",
			r.RuleType, r.Condition.Field, r.Condition.Operator, r.Condition.Value,
			verb, math.Abs(weighted), r.Confidence, r.SourceFeedbackCount))
	}

	total = math.Max(-MaxTotalAdjustment, math.Min(MaxTotalAdjustment, total))
	total = math.Round(total*1000) / 1000

	summary := "Learned rules left the score unchanged"
	switch {
	case total < 0:
		summary = fmt.Sprintf("Learned rules reduced the score by %.1f points", -total)
	case total > 0:
		summary = fmt.Sprintf("Learned rules increased the score by %.1f points", total)
	}

	return domain.RuleAdjustment{
		Adjustment:   total,
		AppliedRules: rules,
		Explanation:  summary + ": " + strings.Join(lines, "; "),
	}
}
