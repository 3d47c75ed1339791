package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/adapters/cache"
	"github.com/stoik/threat-engine/internal/adapters/metrics"
	"github.com/stoik/threat-engine/internal/adapters/storage"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/decision"
	"github.com/stoik/threat-engine/internal/domain/explain"
	"github.com/stoik/threat-engine/internal/domain/scoring"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type recordingSink struct {
	mu            sync.Mutex
	events        []domain.AuditEvent
	notifications []domain.Notification
}

func (r *recordingSink) Record(_ context.Context, ev domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recordingSink) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

func (r *recordingSink) kinds() []domain.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NotificationKind, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, n.Kind)
	}
	return out
}

type testEnv struct {
	store     *storage.SQLStore
	cache     *cache.MemoryCache
	sink      *recordingSink
	scoring   *ScoringService
	feedback  *FeedbackService
	decisions *DecisionService
	explain   *ExplanationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := storage.NewSQLStore(storage.DriverSQLite, dsn, storage.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema(context.Background()))

	logger := zap.NewNop()
	engine := scoring.NewEngine()
	env := &testEnv{
		store: store,
		cache: cache.NewMemoryCache(1000, time.Hour),
		sink:  &recordingSink{},
	}
	env.scoring = NewScoringService(store, engine, env.cache, env.sink, metrics.Nop{}, logger, DefaultScoringConfig())
	env.feedback = NewFeedbackService(store, env.sink, env.sink, metrics.Nop{}, logger, DefaultLearningConfig())
	env.decisions = NewDecisionService(store, env.sink, env.sink, metrics.Nop{}, logger, decision.DefaultConfig())
	env.explain = NewExplanationService(store, explain.New(engine), logger)
	env.setNow(testNow)

	require.NoError(t, env.scoring.Refresh(context.Background()))
	return env
}

func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.scoring.now = clock
	e.feedback.now = clock
	e.decisions.now = clock
	e.explain.now = clock
}

func phishingVector(tenant uuid.UUID, messageID string) domain.FeatureVector {
	return domain.FeatureVector{
		MessageID: messageID,
		TenantID:  tenant,
		Envelope: domain.Envelope{
			SenderEmail:  "security@paypa1-support.com",
			SenderDomain: "paypa1-support.com",
			Subject:      "Your account is locked",
			URLs:         []string{"https://login.paypa1-support.com/verify"},
			ReceivedAt:   testNow.Add(-time.Minute),
		},
		Header:     domain.HeaderFeatures{SPFFail: true, DKIMFail: true, DMARCFail: true},
		Content:    domain.ContentFeatures{UrgencyScore: 80, CredentialRequest: true, ThreatLanguage: true, HiddenText: true},
		Sender:     domain.SenderFeatures{IsNewDomain: true, IsCousinDomain: true},
		URL:        domain.URLFeatures{Count: 3, MaliciousCount: 1, ShortenedCount: 1, LoginFormLinks: 1},
		Attachment: domain.AttachmentFeatures{Count: 1, HasHTMLAttachment: true},
	}
}

func newsletterVector(tenant uuid.UUID, messageID string) domain.FeatureVector {
	return domain.FeatureVector{
		MessageID: messageID,
		TenantID:  tenant,
		Envelope: domain.Envelope{
			SenderEmail:  "news@deals.example.com",
			SenderDomain: "deals.example.com",
			Subject:      "Weekly newsletter: 20% off",
			ReceivedAt:   testNow.Add(-time.Hour),
		},
		Content:    domain.ContentFeatures{MarketingLanguage: true, SuspiciousKeywords: 2},
		Behavioral: domain.BehavioralFeatures{HasUnsubscribe: true},
	}
}
