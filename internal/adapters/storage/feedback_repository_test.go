package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertFeedbackEvent_Replay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	ev := &domain.FeedbackEvent{
		FeedbackID:      "fb-1",
		TenantID:        tenant,
		MessageID:       "msg-1",
		SenderDomain:    "example.com",
		SenderEmail:     "news@example.com",
		FeedbackType:    "not_spam",
		OriginalVerdict: "quarantine",
		OriginalScore:   0.62,
		Subject:         "Weekly newsletter",
		URLs:            []string{"https://example.com/a"},
		ReceivedAt:      testNow,
	}

	inserted, err := store.InsertFeedbackEvent(ctx, ev, domain.FeedbackFalsePositive)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertFeedbackEvent(ctx, ev, domain.FeedbackFalsePositive)
	require.NoError(t, err)
	assert.False(t, inserted, "replayed feedback is ignored")

	got, err := store.GetFeedbackEvent(ctx, tenant, "fb-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ev.URLs, got.URLs)
	assert.Equal(t, "Weekly newsletter", got.Subject)
	assert.True(t, got.ReceivedAt.Equal(testNow))

	missing, err := store.GetFeedbackEvent(ctx, tenant, "fb-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIncrementReputation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	rep, err := store.IncrementReputation(ctx, tenant, "example.com", domain.ReputationDelta{Safe: 1}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SafeCount)
	assert.Equal(t, domain.ReputationUnknown, rep.Category)
	assert.Equal(t, 50.0, rep.TrustScore)

	rep, err = store.IncrementReputation(ctx, tenant, "example.com", domain.ReputationDelta{Threat: 1, Spam: 1}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SafeCount)
	assert.Equal(t, 1, rep.ThreatCount)
	assert.Equal(t, 1, rep.SpamCount)

	changed, err := store.SetReputationCategory(ctx, tenant, "example.com", domain.ReputationUnknown, domain.ReputationSuspicious, 23.3, testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	got, err := store.GetReputation(ctx, tenant, "example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.ReputationSuspicious, got.Category)
	assert.Equal(t, 23.3, got.TrustScore)
}

func TestSetReputationCategory_StaleEvaluation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	_, err := store.IncrementReputation(ctx, tenant, "example.com", domain.ReputationDelta{Safe: 5}, testNow)
	require.NoError(t, err)

	// two evaluations both read unknown, the second one loses
	changed, err := store.SetReputationCategory(ctx, tenant, "example.com", domain.ReputationUnknown, domain.ReputationMarketing, 82, testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = store.SetReputationCategory(ctx, tenant, "example.com", domain.ReputationUnknown, domain.ReputationSuspicious, 30, testNow)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.GetReputation(ctx, tenant, "example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ReputationMarketing, got.Category)
	assert.Equal(t, 82.0, got.TrustScore)

	changed, err = store.SetReputationCategory(ctx, tenant, "missing.com", domain.ReputationUnknown, domain.ReputationMarketing, 82, testNow)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRecordFeedback(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	w := &domain.FeedbackWrite{
		Event: &domain.FeedbackEvent{
			FeedbackID:   "fb-1",
			TenantID:     tenant,
			SenderDomain: "example.com",
			SenderEmail:  "news@example.com",
			FeedbackType: "not_spam",
			ReceivedAt:   testNow,
		},
		Class:        domain.FeedbackFalsePositive,
		SenderDomain: "example.com",
		Reputation:   domain.ReputationDelta{Safe: 1},
		Candidates: []domain.PatternCandidate{
			{Type: domain.PatternDomain, Value: "example.com"},
			{Type: domain.PatternSubject, Value: "newsletter"},
		},
		At: testNow,
	}

	rec, err := store.RecordFeedback(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackNew, rec.Status)
	require.NotNil(t, rec.Reputation)
	assert.Equal(t, 1, rec.Reputation.SafeCount)
	require.Len(t, rec.Patterns, 2)
	assert.Equal(t, 1, rec.Patterns[0].OccurrenceCount)

	rec, err = store.RecordFeedback(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackPending, rec.Status, "not marked processed yet")
	assert.Nil(t, rec.Reputation)
	assert.Empty(t, rec.Patterns)

	require.NoError(t, store.MarkFeedbackProcessed(ctx, tenant, "fb-1", testNow))
	rec, err = store.RecordFeedback(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackProcessed, rec.Status)

	rep, err := store.GetReputation(ctx, tenant, "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SafeCount, "replays never count twice")
	n, err := store.CountActivePatterns(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecordFeedback_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	w := &domain.FeedbackWrite{
		Event:        &domain.FeedbackEvent{FeedbackID: "fb-1", TenantID: tenant, FeedbackType: "safe", ReceivedAt: testNow},
		Class:        domain.FeedbackFalsePositive,
		SenderDomain: "example.com",
		Reputation:   domain.ReputationDelta{Safe: 1},
		At:           testNow,
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := store.RecordFeedback(cctx, w)
	require.Error(t, err)

	ev, err := store.GetFeedbackEvent(ctx, tenant, "fb-1")
	require.NoError(t, err)
	assert.Nil(t, ev, "nothing committed")

	rec, err := store.RecordFeedback(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackNew, rec.Status)
}

func TestUpsertPattern_Confidence(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	var p *domain.FeedbackPattern
	var err error
	for i := 0; i < 20; i++ {
		p, err = store.UpsertPattern(ctx, tenant, domain.PatternDomain, "example.com", domain.FeedbackFalsePositive, testNow.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, learning.PatternInitialConfidence, p.Confidence)
			assert.Equal(t, 1, p.OccurrenceCount)
		}
	}
	assert.Equal(t, 20, p.OccurrenceCount)
	assert.Equal(t, learning.PatternConfidenceCeiling, p.Confidence, "confidence is capped")
	assert.True(t, p.FirstSeen.Equal(testNow))
	assert.True(t, p.LastSeen.Equal(testNow.Add(19*time.Minute)))

	other, err := store.UpsertPattern(ctx, tenant, domain.PatternDomain, "example.com", domain.FeedbackFalseNegative, testNow)
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, other.ID, "feedback class is part of the pattern key")
}

func TestPromotablePatterns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	// 13 occurrences reach 70 confidence
	for i := 0; i < 13; i++ {
		_, err := store.UpsertPattern(ctx, tenant, domain.PatternDomain, "ready.com", domain.FeedbackFalsePositive, testNow)
		require.NoError(t, err)
	}
	for i := 0; i < 6; i++ {
		_, err := store.UpsertPattern(ctx, tenant, domain.PatternDomain, "young.com", domain.FeedbackFalsePositive, testNow)
		require.NoError(t, err)
	}

	got, err := store.PromotablePatterns(ctx, tenant, learning.PromotionMinOccurrences, learning.PromotionMinConfidence, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ready.com", got[0].PatternValue)
	assert.Equal(t, 70.0, got[0].Confidence)
}

func TestDecayPatterns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	upsert := func(value string, times int, lastSeen time.Time) {
		for i := 0; i < times; i++ {
			_, err := store.UpsertPattern(ctx, tenant, domain.PatternDomain, value, domain.FeedbackFalsePositive, lastSeen)
			require.NoError(t, err)
		}
	}
	upsert("fresh.com", 1, testNow)
	// confidence 10, stale but not yet retired
	upsert("weak-recent.com", 1, testNow.Add(-35*24*time.Hour))
	// confidence 95, long unseen but still strong
	upsert("strong-old.com", 19, testNow.Add(-61*24*time.Hour))
	// confidence 10 and unseen past the retirement horizon
	upsert("ancient.com", 1, testNow.Add(-70*24*time.Hour))

	decayed, deactivated, err := store.DecayPatterns(ctx,
		testNow.Add(-learning.PatternDecayAfter), testNow.Add(-learning.PatternRetireAfter),
		learning.PatternDecayStep, learning.PatternDecayFloor, learning.PatternDeactivateBelow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), decayed)
	assert.Equal(t, int64(1), deactivated, "only weak and retired patterns go")

	active := map[string]float64{}
	patterns, err := store.PromotablePatterns(ctx, tenant, 0, 0, 10)
	require.NoError(t, err)
	for _, p := range patterns {
		active[p.PatternValue] = p.Confidence
	}
	assert.Equal(t, map[string]float64{
		"fresh.com":       learning.PatternInitialConfidence,
		"weak-recent.com": learning.PatternDecayFloor,
		"strong-old.com":  90,
	}, active)
}

func TestRules(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	expires := testNow.Add(learning.RuleLifetime)
	rule := &domain.LearnedRule{
		ID:                  uuid.New(),
		TenantID:            tenant,
		RuleType:            domain.RuleTrustBoost,
		Condition:           domain.RuleCondition{Field: domain.FieldSenderDomain, Operator: domain.OpEquals, Value: "example.com"},
		ScoreAdjustment:     learning.TrustBoostAdjustment,
		Confidence:          80,
		SourceFeedbackCount: 7,
		SourcePatternID:     uuid.New(),
		IsActive:            true,
		CreatedAt:           testNow,
		ExpiresAt:           &expires,
	}

	inserted, err := store.InsertRule(ctx, rule)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *rule
	dup.ID = uuid.New()
	inserted, err = store.InsertRule(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted, "one rule per (tenant, field, value)")

	rules, err := store.ActiveRules(ctx, tenant, testNow, 100)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.Condition, rules[0].Condition)
	assert.Equal(t, -15.0, rules[0].ScoreAdjustment)
	require.NotNil(t, rules[0].ExpiresAt)
	assert.True(t, rules[0].ExpiresAt.Equal(expires))

	n, err := store.ExpireRules(ctx, expires.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rules, err = store.ActiveRules(ctx, tenant, testNow, 100)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestFeedbackAggregates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenantA, tenantB := uuid.New(), uuid.New()

	insert := func(tenant uuid.UUID, id, senderDomain, sender string, class domain.FeedbackClass) {
		_, err := store.InsertFeedbackEvent(ctx, &domain.FeedbackEvent{
			FeedbackID: id, TenantID: tenant, MessageID: id, SenderDomain: senderDomain, SenderEmail: sender,
			FeedbackType: string(class), OriginalVerdict: "block", ReceivedAt: testNow,
		}, class)
		require.NoError(t, err)
	}
	insert(tenantA, "1", "a.com", "x@a.com", domain.FeedbackFalsePositive)
	insert(tenantA, "2", "a.com", "y@a.com", domain.FeedbackFalsePositive)
	insert(tenantA, "3", "b.com", "z@b.com", domain.FeedbackFalsePositive)
	insert(tenantA, "4", "evil.com", "ceo@evil.com", domain.FeedbackFalseNegative)

	counts, err := store.FeedbackClassCounts(ctx, tenantA, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.FeedbackFalsePositive])
	assert.Equal(t, 1, counts[domain.FeedbackFalseNegative])

	domains, err := store.TopFeedbackDomains(ctx, tenantA, domain.FeedbackFalsePositive, testNow.Add(-time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, []domain.DomainCount{{Value: "a.com", Count: 2}, {Value: "b.com", Count: 1}}, domains)

	senders, err := store.TopFeedbackSenders(ctx, tenantA, domain.FeedbackFalseNegative, testNow.Add(-time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, []domain.DomainCount{{Value: "ceo@evil.com", Count: 1}}, senders)

	events, classes, err := store.FeedbackSince(ctx, tenantA, testNow.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, events, 4)
	assert.Len(t, classes, 4)

	for _, tenant := range []uuid.UUID{tenantA, tenantB} {
		_, err := store.UpsertPattern(ctx, tenant, domain.PatternDomain, "shared.com", domain.FeedbackFalseNegative, testNow)
		require.NoError(t, err)
	}
	_, err = store.UpsertPattern(ctx, tenantA, domain.PatternDomain, "only-a.com", domain.FeedbackFalseNegative, testNow)
	require.NoError(t, err)

	cross, err := store.CrossTenantPatterns(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, cross, 1)
	assert.Equal(t, "shared.com", cross[0].PatternValue)
	assert.Equal(t, 2, cross[0].TenantCount)
	assert.Equal(t, 2, cross[0].TotalOccurrences)
}
