package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quarantineDecision(tenant uuid.UUID, action domain.AdminAction, at time.Time) *domain.AdminDecision {
	return &domain.AdminDecision{
		TenantID:        tenant,
		VerdictID:       uuid.New(),
		AdminID:         "alice",
		OriginalVerdict: domain.VerdictQuarantine,
		Action:          action,
		DecidedAt:       at,
		Snapshot: domain.DecisionSnapshot{
			SenderEmail:        "billing@partner.com",
			SenderDomain:       "partner.com",
			ThreatScore:        62,
			DeterministicScore: 80,
			MLScore:            20,
			UrgencyScore:       10,
		},
	}
}

func recordAll(t *testing.T, env *testEnv, decisions ...*domain.AdminDecision) {
	t.Helper()
	for _, d := range decisions {
		require.NoError(t, env.decisions.RecordDecision(context.Background(), d))
	}
}

// overrideMix records 12 releases and 8 confirmations over the last week
func overrideMix(t *testing.T, env *testEnv, tenant uuid.UUID) {
	t.Helper()
	for i := 0; i < 20; i++ {
		action := domain.ActionConfirm
		if i < 12 {
			action = domain.ActionRelease
		}
		recordAll(t, env, quarantineDecision(tenant, action, testNow.Add(-time.Duration(i+1)*6*time.Hour)))
	}
}

func TestDecisionService_RecordDecision(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()

	tests := []struct {
		name   string
		mutate func(d *domain.AdminDecision)
	}{
		{name: "missing tenant", mutate: func(d *domain.AdminDecision) { d.TenantID = uuid.Nil }},
		{name: "missing verdict", mutate: func(d *domain.AdminDecision) { d.VerdictID = uuid.Nil }},
		{name: "missing admin", mutate: func(d *domain.AdminDecision) { d.AdminID = "" }},
		{name: "unknown verdict", mutate: func(d *domain.AdminDecision) { d.OriginalVerdict = "maybe" }},
		{name: "unknown action", mutate: func(d *domain.AdminDecision) { d.Action = "snooze" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := quarantineDecision(tenant, domain.ActionRelease, testNow)
			tt.mutate(d)
			err := env.decisions.RecordDecision(context.Background(), d)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}

	t.Run("nil decision", func(t *testing.T) {
		assert.True(t, domain.IsValidation(env.decisions.RecordDecision(context.Background(), nil)))
	})

	t.Run("defaults id and time", func(t *testing.T) {
		d := quarantineDecision(tenant, domain.ActionRelease, time.Time{})
		require.NoError(t, env.decisions.RecordDecision(context.Background(), d))
		assert.NotEqual(t, uuid.Nil, d.ID)
		assert.Equal(t, testNow, d.DecidedAt)
		assert.Contains(t, env.sink.actions(), "admin_decision_recorded")

		err := env.decisions.RecordDecision(context.Background(), d)
		assert.True(t, domain.IsAlreadyExists(err), "decisions are immutable")
	})
}

func TestDecisionService_Rates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	var released *domain.AdminDecision
	for i := 0; i < 10; i++ {
		action := domain.ActionConfirm
		if i < 4 {
			action = domain.ActionRelease
		}
		d := quarantineDecision(tenant, action, testNow.Add(-time.Duration(i+1)*time.Hour))
		recordAll(t, env, d)
		if released == nil {
			released = d
		}
	}

	fp, err := env.decisions.GetFalsePositiveRate(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0.4, fp.Rate)
	assert.Equal(t, 10, fp.Total)
	assert.Less(t, fp.Lower, fp.Rate)
	assert.Greater(t, fp.Upper, fp.Rate)

	fn, err := env.decisions.GetFalseNegativeRate(ctx, tenant)
	require.NoError(t, err)
	assert.Zero(t, fn.Successes)

	n, err := env.decisions.RecordOutcome(ctx, tenant, released.VerdictID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	fn, err = env.decisions.GetFalseNegativeRate(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, fn.Successes)
	assert.Equal(t, 0.1, fn.Rate)
}

func TestDecisionService_AnalyzeAndSuggest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	recordAll(t, env, quarantineDecision(tenant, domain.ActionRelease, testNow.Add(-time.Hour)))
	analysis, err := env.decisions.AnalyzePatterns(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, analysis.InsufficientData)
	assert.Equal(t, 1, analysis.TotalDecisions)

	suggestions, err := env.decisions.SuggestPolicyAdjustments(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, suggestions)

	overrideMix(t, env, tenant)
	analysis, err = env.decisions.AnalyzePatterns(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, analysis.InsufficientData)
	assert.Equal(t, 21, analysis.TotalDecisions)
	assert.Equal(t, 13, analysis.OverrideCount)
	require.NotEmpty(t, analysis.FalsePositivePatterns)

	var domainPattern *domain.Pattern
	for i, p := range analysis.FalsePositivePatterns {
		if p.Type == domain.PatternKindDomain {
			domainPattern = &analysis.FalsePositivePatterns[i]
		}
	}
	require.NotNil(t, domainPattern)
	assert.Equal(t, "partner.com", domainPattern.Key)
	assert.Equal(t, 13, domainPattern.Occurrences)

	suggestions, err = env.decisions.SuggestPolicyAdjustments(ctx, tenant)
	require.NoError(t, err)
	types := make([]domain.SuggestionType, 0, len(suggestions))
	for _, s := range suggestions {
		types = append(types, s.Type)
	}
	assert.Contains(t, types, domain.SuggestWhitelistDomain)
	assert.Contains(t, types, domain.SuggestThresholdIncrease)
	assert.NotEqual(t, domain.SuggestThresholdIncrease, suggestions[0].Type)
}

func TestDecisionService_AutoTuneApplyRollback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	res, err := env.decisions.AutoTuneThresholds(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, res.InsufficientData)
	assert.Empty(t, res.Adjustments)

	overrideMix(t, env, tenant)
	res, err = env.decisions.AutoTuneThresholds(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, res.Adjustments, 1)
	proposal := res.Adjustments[0]
	assert.Equal(t, domain.LevelMedium, proposal.Level)
	assert.Equal(t, 0.55, proposal.SuggestedValue)
	assert.Equal(t, domain.AdjustmentProposed, proposal.Status)

	before, err := env.scoring.GetThresholds(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0.5, before.Medium, "proposals are not applied automatically")

	applied, err := env.decisions.ApplyThresholdAdjustment(ctx, tenant, proposal.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.AdjustmentApplied, applied.Status)
	require.NotNil(t, applied.PreviousConfig)
	assert.Equal(t, 0.5, applied.PreviousConfig.Medium)

	after, err := env.scoring.GetThresholds(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0.55, after.Medium)
	assert.Equal(t, 0.85, after.Critical)

	_, err = env.decisions.ApplyThresholdAdjustment(ctx, tenant, proposal.ID, "alice")
	assert.True(t, domain.IsConflict(err), "an adjustment applies once")

	_, err = env.decisions.RollbackThresholdAdjustment(ctx, tenant, proposal.ID, "alice")
	require.NoError(t, err)
	restored, err := env.scoring.GetThresholds(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0.5, restored.Medium)

	_, err = env.decisions.RollbackThresholdAdjustment(ctx, tenant, proposal.ID, "alice")
	assert.True(t, domain.IsConflict(err))

	_, err = env.decisions.ApplyThresholdAdjustment(ctx, uuid.New(), proposal.ID, "alice")
	assert.True(t, domain.IsNotFound(err), "adjustments are tenant scoped")

	actions := env.sink.actions()
	assert.Contains(t, actions, "threshold_adjustment_applied")
	assert.Contains(t, actions, "threshold_adjustment_rolled_back")
}

func TestDecisionService_DetectDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	report, err := env.decisions.DetectDrift(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, report.InsufficientData)
	assert.False(t, report.HasDrift)

	for i := 0; i < 10; i++ {
		old := quarantineDecision(tenant, domain.ActionConfirm, testNow.Add(-45*24*time.Hour+time.Duration(i)*time.Hour))
		old.Snapshot.ThreatScore = 40
		recent := quarantineDecision(tenant, domain.ActionConfirm, testNow.Add(-10*24*time.Hour+time.Duration(i)*time.Hour))
		recent.Snapshot.ThreatScore = 60
		recordAll(t, env, old, recent)
	}

	report, err = env.decisions.DetectDrift(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, report.HasDrift)
	assert.Equal(t, domain.DriftFeature, report.DriftType)
	assert.InDelta(t, 0.3333, report.FeatureShifts["threat_score"], 1e-4)
	assert.InDelta(t, 0.1667, report.DriftScore, 1e-4)
	assert.Contains(t, env.sink.kinds(), domain.NotifyDriftDetected)
}

func TestDecisionService_AdminActionPatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	for i := 0; i < 10; i++ {
		old := quarantineDecision(tenant, domain.ActionConfirm, testNow.Add(-60*24*time.Hour+time.Duration(i)*time.Hour))
		steady := quarantineDecision(tenant, domain.ActionConfirm, testNow.Add(-60*24*time.Hour+time.Duration(i)*time.Hour))
		steady.AdminID = "bob"
		recentSteady := quarantineDecision(tenant, domain.ActionConfirm, testNow.Add(-time.Duration(i+1)*time.Hour))
		recentSteady.AdminID = "bob"
		recordAll(t, env, old, steady, recentSteady)
	}
	for i, action := range []domain.AdminAction{
		domain.ActionRelease, domain.ActionBlock, domain.ActionDelete, domain.ActionConfirm,
		domain.ActionRelease, domain.ActionBlock, domain.ActionDelete, domain.ActionConfirm,
	} {
		recordAll(t, env, quarantineDecision(tenant, action, testNow.Add(-time.Duration(i+1)*time.Hour)))
	}

	profiles, err := env.decisions.AdminActionPatterns(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	alice, bob := profiles[0], profiles[1]
	assert.Equal(t, "alice", alice.AdminID)
	assert.Equal(t, 1.0, alice.HistoricalConsistency)
	assert.Equal(t, 0.0, alice.RecentConsistency)
	assert.True(t, alice.Anomalous)
	assert.Equal(t, "bob", bob.AdminID)
	assert.False(t, bob.Anomalous)

	anomalies := 0
	for _, k := range env.sink.kinds() {
		if k == domain.NotifyAdminAnomaly {
			anomalies++
		}
	}
	assert.Equal(t, 1, anomalies)
}

func TestDecisionService_AdminActionPatterns_DegradesToEmpty(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())

	profiles, err := env.decisions.AdminActionPatterns(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, profiles)
	assert.Empty(t, profiles)
	assert.NotContains(t, env.sink.kinds(), domain.NotifyAdminAnomaly)
}

func TestDecisionService_PolicyABTest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	invalid := []struct {
		name string
		test *domain.PolicyABTest
	}{
		{name: "nil test", test: nil},
		{name: "missing tenant", test: &domain.PolicyABTest{Name: "raise medium", TrafficPercent: 50}},
		{name: "missing name", test: &domain.PolicyABTest{TenantID: tenant, TrafficPercent: 50}},
		{name: "zero traffic", test: &domain.PolicyABTest{TenantID: tenant, Name: "raise medium"}},
		{name: "traffic above 100", test: &domain.PolicyABTest{TenantID: tenant, Name: "raise medium", TrafficPercent: 150}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, domain.IsValidation(env.decisions.StartABTest(ctx, tt.test)))
		})
	}

	test := &domain.PolicyABTest{
		TenantID:       tenant,
		Name:           "raise medium",
		Parameters:     map[string]float64{"medium": 0.55},
		TrafficPercent: 50,
		Status:         domain.ABTestStopped,
	}
	require.NoError(t, env.decisions.StartABTest(ctx, test))
	assert.Equal(t, domain.ABTestRunning, test.Status)
	assert.Equal(t, testNow, test.StartedAt)

	res, err := env.decisions.EvaluateABTest(ctx, tenant, test.ID)
	require.NoError(t, err)
	assert.True(t, res.InsufficientData)
	assert.Equal(t, domain.RecommendContinue, res.Recommendation)

	require.NoError(t, env.decisions.StopABTest(ctx, tenant, test.ID))
	require.NoError(t, env.decisions.StopABTest(ctx, tenant, test.ID))

	stored, err := env.store.GetPolicyTest(ctx, tenant, test.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ABTestStopped, stored.Status)

	stops := 0
	for _, a := range env.sink.actions() {
		if a == "policy_ab_test_stopped" {
			stops++
		}
	}
	assert.Equal(t, 1, stops, "stopping twice is a no-op")

	_, err = env.decisions.EvaluateABTest(ctx, tenant, uuid.New())
	assert.True(t, domain.IsNotFound(err))
	assert.True(t, domain.IsNotFound(env.decisions.StopABTest(ctx, tenant, uuid.New())))
}

func TestDecisionService_RecordVerdictDecision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	fv := phishingVector(tenant, "msg-1")
	pred, err := env.scoring.Predict(ctx, &fv)
	require.NoError(t, err)

	d, err := env.decisions.RecordVerdictDecision(ctx, tenant, pred.VerdictID, "alice", domain.ActionRelease, "known vendor")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictQuarantine, d.OriginalVerdict)
	assert.True(t, d.IsFalsePositive())
	assert.Equal(t, "paypa1-support.com", d.Snapshot.SenderDomain)
	assert.Equal(t, 72.55, d.Snapshot.ThreatScore)
	assert.True(t, d.Snapshot.HasCredentialRequest)

	stored, err := env.store.DecisionsSince(ctx, tenant, testNow.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "known vendor", stored[0].Reason)

	_, err = env.decisions.RecordVerdictDecision(ctx, tenant, uuid.New(), "alice", domain.ActionRelease, "")
	assert.True(t, domain.IsNotFound(err))
}
