package learning

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		feedbackType  string
		verdict       string
		expectedClass domain.FeedbackClass
		expectErr     bool
	}{
		{name: "released by user", feedbackType: "not_spam", verdict: "quarantine", expectedClass: domain.FeedbackFalsePositive},
		{name: "explicit false negative", feedbackType: "false_negative", verdict: "high", expectedClass: domain.FeedbackFalseNegative},
		{name: "phish reported after pass", feedbackType: "reported_phish", verdict: "safe", expectedClass: domain.FeedbackFalseNegative},
		{name: "phish reported after block", feedbackType: "phishing", verdict: "critical", expectedClass: domain.FeedbackConfirmedThreat},
		{name: "case insensitive", feedbackType: "Marked_Safe", verdict: "HIGH", expectedClass: domain.FeedbackFalsePositive},
		{name: "unknown type", feedbackType: "meh", verdict: "safe", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, err := Classify(tt.feedbackType, tt.verdict)
			if tt.expectErr {
				assert.True(t, domain.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedClass, class)
		})
	}
}

func TestReputationDeltaFor(t *testing.T) {
	tests := []struct {
		feedbackType string
		class        domain.FeedbackClass
		expected     domain.ReputationDelta
	}{
		{"safe", domain.FeedbackFalsePositive, domain.ReputationDelta{Safe: 1}},
		{"spam", domain.FeedbackFalseNegative, domain.ReputationDelta{Spam: 1}},
		{" SPAM ", domain.FeedbackConfirmedThreat, domain.ReputationDelta{Spam: 1}},
		{"phishing", domain.FeedbackConfirmedThreat, domain.ReputationDelta{Threat: 1}},
		{"missed_threat", domain.FeedbackFalseNegative, domain.ReputationDelta{Threat: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.feedbackType, func(t *testing.T) {
			got := ReputationDeltaFor(tt.feedbackType, tt.class)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, 1, got.Safe+got.Threat+got.Spam, "one report moves one counter")
		})
	}
}

func TestEvaluateReputation_SpamReportsCountOnce(t *testing.T) {
	rep := domain.SenderReputation{Category: domain.ReputationUnknown, TrustScore: 50}
	for i := 0; i < 3; i++ {
		d := ReputationDeltaFor("spam", domain.FeedbackConfirmedThreat)
		rep.SafeCount += d.Safe
		rep.ThreatCount += d.Threat
		rep.SpamCount += d.Spam
	}
	rep.SafeCount = 3

	// 3 spam out of 6 reports is exactly the 50% demotion ratio
	category, trust, changed := EvaluateReputation(rep)
	assert.True(t, changed)
	assert.Equal(t, domain.ReputationSuspicious, category)
	assert.Equal(t, 30.0, trust)
}

func TestExtractCandidates(t *testing.T) {
	ev := domain.FeedbackEvent{
		SenderEmail: "news@mail.shop.example.co.uk",
		Subject:     "Weekly Newsletter: 20% off everything",
		URLs: []string{
			"https://click.shop.example.co.uk/track?id=1",
			"https://cdn.shop.example.co.uk/img.png",
			"http://192.0.2.1/login",
			"not a url at all",
		},
	}

	t.Run("false positive mines subject keywords", func(t *testing.T) {
		got := ExtractCandidates(ev, domain.FeedbackFalsePositive)
		assert.Contains(t, got, Candidate{Type: domain.PatternDomain, Value: "example.co.uk"})
		assert.Contains(t, got, Candidate{Type: domain.PatternSubject, Value: "newsletter"})
		assert.Contains(t, got, Candidate{Type: domain.PatternSubject, Value: "% off"})
		assert.Contains(t, got, Candidate{Type: domain.PatternURL, Value: "192.0.2.1"})

		urlCount := 0
		for _, c := range got {
			if c.Type == domain.PatternURL && c.Value == "example.co.uk" {
				urlCount++
			}
		}
		assert.Equal(t, 1, urlCount, "link domains are deduplicated")
	})

	t.Run("false negative skips subject keywords", func(t *testing.T) {
		for _, c := range ExtractCandidates(ev, domain.FeedbackFalseNegative) {
			assert.NotEqual(t, domain.PatternSubject, c.Type)
		}
	})
}

func TestCalculateRuleAdjustment(t *testing.T) {
	trust := func(adj, conf float64, value string) domain.LearnedRule {
		return domain.LearnedRule{
			RuleType:            domain.RuleTrustBoost,
			Condition:           domain.RuleCondition{Field: domain.FieldSenderDomain, Operator: domain.OpEquals, Value: value},
			ScoreAdjustment:     adj,
			Confidence:          conf,
			SourceFeedbackCount: 7,
		}
	}

	t.Run("single trust boost", func(t *testing.T) {
		result := CalculateRuleAdjustment([]domain.LearnedRule{trust(-15, 80, "example.com")})
		assert.InDelta(t, -12.0, result.Adjustment, 1e-9)
		assert.Contains(t, result.Explanation, "reduced")
		assert.Contains(t, result.Explanation, "example.com")
		assert.Contains(t, result.Explanation, "7 reports")
	})

	t.Run("sum is clamped", func(t *testing.T) {
		result := CalculateRuleAdjustment([]domain.LearnedRule{trust(-20, 100, "a.com"), trust(-20, 100, "b.com")})
		assert.Equal(t, -30.0, result.Adjustment)
	})

	t.Run("positive clamp", func(t *testing.T) {
		rules := []domain.LearnedRule{
			{RuleType: domain.RuleSuspicionBoost, ScoreAdjustment: 50, Confidence: 100},
			{RuleType: domain.RuleAutoFlag, ScoreAdjustment: 50, Confidence: 90},
		}
		result := CalculateRuleAdjustment(rules)
		assert.Equal(t, 30.0, result.Adjustment)
		assert.Contains(t, result.Explanation, "increased")
	})

	t.Run("no rules", func(t *testing.T) {
		assert.Equal(t, 0.0, CalculateRuleAdjustment(nil).Adjustment)
	})
}

func TestMatches(t *testing.T) {
	env := domain.Envelope{
		SenderEmail:  "billing@accounts.vendor.com",
		SenderDomain: "accounts.vendor.com",
		Subject:      "Invoice 4821 overdue",
		BodyPreview:  "Please settle the attached invoice",
		URLs:         []string{"https://pay.vendor-secure.net/x"},
	}

	tests := []struct {
		name     string
		cond     domain.RuleCondition
		expected bool
	}{
		{name: "sender domain reduced to registrable", cond: domain.RuleCondition{Field: domain.FieldSenderDomain, Operator: domain.OpEquals, Value: "vendor.com"}, expected: true},
		{name: "sender email prefix", cond: domain.RuleCondition{Field: domain.FieldSenderEmail, Operator: domain.OpStartsWith, Value: "billing@"}, expected: true},
		{name: "url domain", cond: domain.RuleCondition{Field: domain.FieldURLDomain, Operator: domain.OpEquals, Value: "vendor-secure.net"}, expected: true},
		{name: "subject contains is case insensitive", cond: domain.RuleCondition{Field: domain.FieldSubject, Operator: domain.OpContains, Value: "INVOICE"}, expected: true},
		{name: "subject suffix", cond: domain.RuleCondition{Field: domain.FieldSubject, Operator: domain.OpEndsWith, Value: "paid"}, expected: false},
		{name: "content regex", cond: domain.RuleCondition{Field: domain.FieldContent, Operator: domain.OpMatches, Value: `settle\s+the`}, expected: true},
		{name: "invalid regex never matches", cond: domain.RuleCondition{Field: domain.FieldContent, Operator: domain.OpMatches, Value: `(`}, expected: false},
		{name: "unknown operator never matches", cond: domain.RuleCondition{Field: domain.FieldSubject, Operator: "like", Value: "invoice"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(tt.cond, env))
		})
	}
}

func TestRuleFromPattern(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pattern := domain.FeedbackPattern{
		ID:              uuid.New(),
		TenantID:        uuid.New(),
		PatternType:     domain.PatternDomain,
		PatternValue:    "newsletter.example.com",
		FeedbackType:    domain.FeedbackFalsePositive,
		Confidence:      70,
		OccurrenceCount: 5,
		IsActive:        true,
	}

	rule, ok := RuleFromPattern(pattern, now)
	require.True(t, ok)
	assert.Equal(t, domain.RuleTrustBoost, rule.RuleType)
	assert.Equal(t, -15.0, rule.ScoreAdjustment)
	assert.Equal(t, domain.FieldSenderDomain, rule.Condition.Field)
	assert.Equal(t, now.Add(90*24*time.Hour), *rule.ExpiresAt)

	pattern.FeedbackType = domain.FeedbackFalseNegative
	rule, ok = RuleFromPattern(pattern, now)
	require.True(t, ok)
	assert.Equal(t, domain.RuleSuspicionBoost, rule.RuleType)
	assert.Equal(t, 20.0, rule.ScoreAdjustment)

	pattern.Confidence = 65
	_, ok = RuleFromPattern(pattern, now)
	assert.False(t, ok, "below confidence threshold")
}

func TestApplicableRules_SkipsExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	cond := domain.RuleCondition{Field: domain.FieldSenderDomain, Operator: domain.OpEquals, Value: "example.com"}
	rules := []domain.LearnedRule{
		{ID: uuid.New(), Condition: cond, IsActive: true},
		{ID: uuid.New(), Condition: cond, IsActive: true, ExpiresAt: &past},
		{ID: uuid.New(), Condition: cond, IsActive: false},
	}

	got := ApplicableRules(rules, domain.Envelope{SenderDomain: "example.com"}, now)
	require.Len(t, got, 1)
	assert.Equal(t, rules[0].ID, got[0].ID)
}

func TestEvaluateReputation(t *testing.T) {
	tests := []struct {
		name             string
		rep              domain.SenderReputation
		expectedCategory domain.ReputationCategory
		expectedTrust    float64
		expectChange     bool
	}{
		{
			name:             "promoted to marketing",
			rep:              domain.SenderReputation{SafeCount: 5, Category: domain.ReputationUnknown, TrustScore: 50},
			expectedCategory: domain.ReputationMarketing,
			expectedTrust:    85,
			expectChange:     true,
		},
		{
			name:             "not enough safe samples",
			rep:              domain.SenderReputation{SafeCount: 4, Category: domain.ReputationUnknown, TrustScore: 50},
			expectedCategory: domain.ReputationUnknown,
			expectedTrust:    50,
		},
		{
			name:             "demoted to suspicious",
			rep:              domain.SenderReputation{SafeCount: 1, ThreatCount: 2, SpamCount: 1, Category: domain.ReputationMarketing, TrustScore: 80},
			expectedCategory: domain.ReputationSuspicious,
			expectedTrust:    20,
			expectChange:     true,
		},
		{
			name:             "already suspicious",
			rep:              domain.SenderReputation{ThreatCount: 6, Category: domain.ReputationSuspicious, TrustScore: 10},
			expectedCategory: domain.ReputationSuspicious,
			expectedTrust:    10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, trust, changed := EvaluateReputation(tt.rep)
			assert.Equal(t, tt.expectedCategory, category)
			assert.InDelta(t, tt.expectedTrust, trust, 1e-9)
			assert.Equal(t, tt.expectChange, changed)
		})
	}
}
