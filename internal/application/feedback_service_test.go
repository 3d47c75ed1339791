package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/adapters/metrics"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errConnectionReset = errors.New("connection reset by peer")

// flakyStore fails the first calls of the steps that run after the feedback
// event is committed
type flakyStore struct {
	ports.Store
	ruleFailures    atomic.Int32
	outcomeFailures atomic.Int32
}

func (f *flakyStore) InsertRule(ctx context.Context, rule *domain.LearnedRule) (bool, error) {
	if f.ruleFailures.Add(-1) >= 0 {
		return false, errConnectionReset
	}
	return f.Store.InsertRule(ctx, rule)
}

func (f *flakyStore) SetVerdictOutcome(ctx context.Context, tenantID uuid.UUID, messageID string, outcome domain.Outcome) (int64, error) {
	if f.outcomeFailures.Add(-1) >= 0 {
		return 0, errConnectionReset
	}
	return f.Store.SetVerdictOutcome(ctx, tenantID, messageID, outcome)
}

func newFlakyFeedback(env *testEnv) (*FeedbackService, *flakyStore) {
	store := &flakyStore{Store: env.store}
	svc := NewFeedbackService(store, env.sink, env.sink, metrics.Nop{}, zap.NewNop(), DefaultLearningConfig())
	svc.now = env.feedback.now
	return svc, store
}

func safeReport(tenant uuid.UUID, id string) *domain.FeedbackEvent {
	return &domain.FeedbackEvent{
		FeedbackID:      id,
		TenantID:        tenant,
		SenderDomain:    "mail.example.com",
		SenderEmail:     "news@mail.example.com",
		FeedbackType:    "not_spam",
		OriginalVerdict: "quarantine",
		OriginalScore:   0.62,
		ReceivedAt:      testNow.Add(-time.Hour),
	}
}

func TestFeedbackService_ProcessFeedback_Validation(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()

	tests := []struct {
		name string
		ev   *domain.FeedbackEvent
	}{
		{name: "nil event", ev: nil},
		{name: "missing feedback id", ev: &domain.FeedbackEvent{TenantID: tenant, FeedbackType: "safe"}},
		{name: "missing tenant", ev: &domain.FeedbackEvent{FeedbackID: "fb-1", FeedbackType: "safe"}},
		{name: "unknown feedback type", ev: &domain.FeedbackEvent{FeedbackID: "fb-1", TenantID: tenant, FeedbackType: "meh"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.feedback.ProcessFeedback(context.Background(), tt.ev)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}

func TestFeedbackService_ProcessFeedback_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	res, err := env.feedback.ProcessFeedback(ctx, safeReport(tenant, "fb-1"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.FeedbackFalsePositive, res.Class)
	assert.True(t, res.ReputationUpdated)
	assert.Equal(t, 1, res.PatternsExtracted)

	res, err = env.feedback.ProcessFeedback(ctx, safeReport(tenant, "fb-1"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Zero(t, res.PatternsExtracted)

	rep, err := env.store.GetReputation(ctx, tenant, "example.com")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 1, rep.SafeCount, "a replay does not count twice")
}

func TestFeedbackService_ProcessFeedback_Candidates(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()

	ev := safeReport(tenant, "fb-1")
	ev.Subject = "Weekly newsletter: 20% off"
	ev.URLs = []string{"https://deals.example.com/a", "https://cdn.example.net/b", "https://deals.example.com/c"}

	res, err := env.feedback.ProcessFeedback(context.Background(), ev)
	require.NoError(t, err)
	// domain, two subject keywords, two link domains
	assert.Equal(t, 5, res.PatternsExtracted)
}

func TestFeedbackService_PromotesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	created := 0
	for i := 1; i <= 14; i++ {
		res, err := env.feedback.ProcessFeedback(ctx, safeReport(tenant, fmt.Sprintf("fb-%d", i)))
		require.NoError(t, err)
		if i < 13 {
			assert.Zero(t, res.RulesCreated, "event %d", i)
		}
		created += res.RulesCreated
	}
	assert.Equal(t, 1, created, "the 13th report promotes the pattern, later ones are idempotent")

	rules, err := env.feedback.GetApplicableRules(ctx, tenant, "example.com", nil)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.RuleTrustBoost, rules[0].RuleType)
	assert.Equal(t, -15.0, rules[0].ScoreAdjustment)
	assert.Equal(t, 70.0, rules[0].Confidence)

	adj := env.feedback.CalculateRuleAdjustment(rules)
	assert.Equal(t, -10.5, adj.Adjustment)
	assert.Contains(t, adj.Explanation, "reduced")

	rep, err := env.store.GetReputation(ctx, tenant, "example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ReputationMarketing, rep.Category)

	kinds := env.sink.kinds()
	emerging, ruleCreated := 0, 0
	for _, k := range kinds {
		switch k {
		case domain.NotifyEmergingPattern:
			emerging++
		case domain.NotifyRuleCreated:
			ruleCreated++
		}
	}
	assert.Equal(t, 1, emerging)
	assert.Equal(t, 1, ruleCreated)
	assert.Contains(t, env.sink.actions(), "learned_rule_created")

	// the learned rule lowers the next verdict for this sender
	fv := newsletterVector(tenant, "msg-1")
	fv.Envelope.SenderDomain = "example.com"
	pred, err := env.scoring.Predict(ctx, &fv)
	require.NoError(t, err)
	assert.Equal(t, -10.5, pred.RuleAdjustment.Adjustment)
}

func TestFeedbackService_RetryAfterPromotionFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()
	svc, store := newFlakyFeedback(env)

	for i := 1; i <= 12; i++ {
		_, err := svc.ProcessFeedback(ctx, safeReport(tenant, fmt.Sprintf("fb-%d", i)))
		require.NoError(t, err)
	}

	store.ruleFailures.Store(1)
	_, err := svc.ProcessFeedback(ctx, safeReport(tenant, "fb-13"))
	require.ErrorIs(t, err, errConnectionReset)

	res, err := svc.ProcessFeedback(ctx, safeReport(tenant, "fb-13"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate, "an unfinished event is resumed, not skipped")
	assert.Equal(t, 1, res.RulesCreated)

	res, err = svc.ProcessFeedback(ctx, safeReport(tenant, "fb-13"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Zero(t, res.RulesCreated)

	rules, err := svc.GetApplicableRules(ctx, tenant, "example.com", nil)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	rep, err := env.store.GetReputation(ctx, tenant, "example.com")
	require.NoError(t, err)
	assert.Equal(t, 13, rep.SafeCount, "the retry does not count the event twice")
	assert.Equal(t, domain.ReputationMarketing, rep.Category)
}

func TestFeedbackService_RetryAfterOutcomeFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()
	svc, store := newFlakyFeedback(env)

	fv := phishingVector(tenant, "msg-1")
	pred, err := env.scoring.Predict(ctx, &fv)
	require.NoError(t, err)

	ev := func() *domain.FeedbackEvent {
		return &domain.FeedbackEvent{
			FeedbackID:      "fb-1",
			TenantID:        tenant,
			MessageID:       "msg-1",
			SenderEmail:     "security@paypa1-support.com",
			FeedbackType:    "reported_phish",
			OriginalVerdict: "quarantine",
		}
	}

	store.outcomeFailures.Store(1)
	_, err = svc.ProcessFeedback(ctx, ev())
	require.ErrorIs(t, err, errConnectionReset)

	rec, err := env.store.GetVerdict(ctx, tenant, pred.VerdictID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnknown, rec.Outcome)

	res, err := svc.ProcessFeedback(ctx, ev())
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, res.ReputationUpdated)

	rec, err = env.store.GetVerdict(ctx, tenant, pred.VerdictID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmedThreat, rec.Outcome)

	rep, err := env.store.GetReputation(ctx, tenant, "paypa1-support.com")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ThreatCount)
}

func TestFeedbackService_ConcurrentPromotion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	const n = 24
	results := make([]*domain.FeedbackResult, n)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			res, err := env.feedback.ProcessFeedback(ctx, safeReport(tenant, fmt.Sprintf("fb-%d", i)))
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	created := 0
	for _, res := range results {
		assert.False(t, res.Duplicate)
		created += res.RulesCreated
	}
	assert.Equal(t, 1, created, "exactly one caller reports the rule")

	rules, err := env.feedback.GetApplicableRules(ctx, tenant, "example.com", nil)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	rep, err := env.store.GetReputation(ctx, tenant, "example.com")
	require.NoError(t, err)
	assert.Equal(t, n, rep.SafeCount)
	assert.Equal(t, domain.ReputationMarketing, rep.Category)

	emerging, ruleCreated := 0, 0
	for _, k := range env.sink.kinds() {
		switch k {
		case domain.NotifyEmergingPattern:
			emerging++
		case domain.NotifyRuleCreated:
			ruleCreated++
		}
	}
	assert.Equal(t, 1, emerging)
	assert.Equal(t, 1, ruleCreated)
}

func TestFeedbackService_SpamReportsDemoteSender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := env.feedback.ProcessFeedback(ctx, &domain.FeedbackEvent{
			FeedbackID:      fmt.Sprintf("fb-%d", i),
			TenantID:        tenant,
			SenderEmail:     "offers@bulk.example.net",
			FeedbackType:    "spam",
			OriginalVerdict: "pass",
		})
		require.NoError(t, err)
	}

	rep, err := env.store.GetReputation(ctx, tenant, "example.net")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 3, rep.SpamCount)
	assert.Zero(t, rep.ThreatCount, "a spam report moves the spam counter only")
	assert.Equal(t, domain.ReputationSuspicious, rep.Category)
	assert.Equal(t, 10.0, rep.TrustScore)
}

func TestFeedbackService_RecordsVerdictOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	fv := phishingVector(tenant, "msg-1")
	pred, err := env.scoring.Predict(ctx, &fv)
	require.NoError(t, err)

	res, err := env.feedback.ProcessFeedback(ctx, &domain.FeedbackEvent{
		FeedbackID:      "fb-1",
		TenantID:        tenant,
		MessageID:       "msg-1",
		SenderEmail:     "security@paypa1-support.com",
		FeedbackType:    "reported_phish",
		OriginalVerdict: "quarantine",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackConfirmedThreat, res.Class)

	rec, err := env.store.GetVerdict(ctx, tenant, pred.VerdictID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmedThreat, rec.Outcome)

	rep, err := env.store.GetReputation(ctx, tenant, "paypa1-support.com")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ThreatCount)
}

func TestFeedbackService_GetFeedback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := env.feedback.ProcessFeedback(ctx, safeReport(tenant, "fb-1"))
	require.NoError(t, err)

	ev, err := env.feedback.GetFeedback(ctx, tenant, "fb-1")
	require.NoError(t, err)
	assert.Equal(t, "not_spam", ev.FeedbackType)

	_, err = env.feedback.GetFeedback(ctx, tenant, "fb-2")
	assert.True(t, domain.IsNotFound(err))
	_, err = env.feedback.GetFeedback(ctx, uuid.New(), "fb-1")
	assert.True(t, domain.IsNotFound(err), "feedback is tenant scoped")
}

func TestFeedbackService_SweepPatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := env.store.UpsertPattern(ctx, tenant, domain.PatternDomain, "fresh.com", domain.FeedbackFalsePositive, testNow)
	require.NoError(t, err)
	_, err = env.store.UpsertPattern(ctx, tenant, domain.PatternDomain, "ancient.com", domain.FeedbackFalsePositive, testNow.Add(-70*24*time.Hour))
	require.NoError(t, err)
	for i := 0; i < 19; i++ {
		_, err = env.store.UpsertPattern(ctx, tenant, domain.PatternDomain, "strong-old.com", domain.FeedbackFalsePositive, testNow.Add(-61*24*time.Hour))
		require.NoError(t, err)
	}

	expired := testNow.Add(-time.Hour)
	_, err = env.store.InsertRule(ctx, &domain.LearnedRule{
		ID:        uuid.New(),
		TenantID:  tenant,
		RuleType:  domain.RuleTrustBoost,
		Condition: domain.RuleCondition{Field: domain.FieldSenderDomain, Operator: domain.OpEquals, Value: "old.com"},
		IsActive:  true,
		CreatedAt: testNow.Add(-100 * 24 * time.Hour),
		ExpiresAt: &expired,
	})
	require.NoError(t, err)

	res, err := env.feedback.SweepPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Decayed: 2, Deactivated: 1, RulesExpired: 1}, res)

	// a strong pattern survives a long silence, only weak retired ones go
	n, err := env.store.CountActivePatterns(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFeedbackService_FeedbackAnalytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	for i := 0; i < 3; i++ {
		ev := safeReport(tenant, fmt.Sprintf("fp-%d", i))
		ev.ReceivedAt = testNow.Add(-time.Duration(i) * 24 * time.Hour)
		_, err := env.feedback.ProcessFeedback(ctx, ev)
		require.NoError(t, err)
	}
	_, err := env.feedback.ProcessFeedback(ctx, &domain.FeedbackEvent{
		FeedbackID:      "fn-1",
		TenantID:        tenant,
		SenderEmail:     "ceo@freemail.example.org",
		FeedbackType:    "phishing",
		OriginalVerdict: "pass",
		ReceivedAt:      testNow.Add(-2 * time.Hour),
	})
	require.NoError(t, err)

	a := env.feedback.FeedbackAnalytics(ctx, tenant)
	assert.Equal(t, 4, a.Total)
	assert.Equal(t, 3, a.FalsePositives)
	assert.Equal(t, 1, a.FalseNegatives)
	assert.Equal(t, 2, a.ActivePatterns)
	require.NotEmpty(t, a.TopFalsePositiveDomains)
	assert.Equal(t, 3, a.TopFalsePositiveDomains[0].Count)
	require.Len(t, a.TopFalseNegativeSenders, 1)
	assert.Equal(t, "ceo@freemail.example.org", a.TopFalseNegativeSenders[0].Value)

	require.Len(t, a.Trend, 7)
	assert.Equal(t, testNow.Truncate(24*time.Hour), a.Trend[6].Day)
	assert.Equal(t, 1, a.Trend[6].FalsePositives)
	assert.Equal(t, 1, a.Trend[6].FalseNegatives)
	assert.Equal(t, 1, a.Trend[5].FalsePositives)
	assert.Equal(t, 1, a.Trend[4].FalsePositives)
}

func TestFeedbackService_FeedbackAnalytics_DegradesToZero(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())

	a := env.feedback.FeedbackAnalytics(context.Background(), uuid.New())
	assert.Zero(t, a.Total)
	assert.Empty(t, a.TopFalsePositiveDomains)
	assert.Len(t, a.Trend, 7)
}

func TestFeedbackService_CrossTenantPatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.feedback.ProcessFeedback(ctx, safeReport(uuid.New(), "fb-1"))
		require.NoError(t, err)
	}

	_, err := env.feedback.CrossTenantPatterns(ctx, 1, "analyst@stoik.io")
	assert.True(t, domain.IsValidation(err))

	patterns, err := env.feedback.CrossTenantPatterns(ctx, 3, "analyst@stoik.io")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "example.com", patterns[0].PatternValue)
	assert.Equal(t, 3, patterns[0].TenantCount)
	assert.Contains(t, env.sink.actions(), "cross_tenant_patterns_read")
}
