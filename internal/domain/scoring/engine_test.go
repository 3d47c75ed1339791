package scoring

import (
	"math"
	"testing"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultModel() *domain.ModelVersion {
	return &domain.ModelVersion{Version: "test", Weights: domain.DefaultWeights()}
}

func becVector() *domain.FeatureVector {
	return &domain.FeatureVector{
		MessageID: "msg-bec",
		Header:    domain.HeaderFeatures{ReplyToMismatch: true, DisplayNameSpoof: true},
		Content:   domain.ContentFeatures{UrgencyScore: 80, FinancialRequest: true},
		Sender:    domain.SenderFeatures{IsFreemail: true, ReputationScore: 50},
		Behavioral: domain.BehavioralFeatures{
			BECPattern:             true,
			WireTransferLanguage:   true,
			ExecutiveImpersonation: true,
		},
	}
}

func withMaliciousURL(fv *domain.FeatureVector) *domain.FeatureVector {
	fv.URL = domain.URLFeatures{Count: 1, MaliciousCount: 1}
	return fv
}

func TestEngine_Score_CleanEmail(t *testing.T) {
	engine := NewEngine()
	fv := &domain.FeatureVector{
		Sender:     domain.SenderFeatures{ReputationScore: 50},
		Behavioral: domain.BehavioralFeatures{IsReplyChain: true},
	}

	b := engine.Score(fv, defaultModel())

	assert.Equal(t, 0.0, b.Score)
	assert.Equal(t, 0.0, b.RawScores[domain.CategoryBehavioral], "negative sum clamps to zero")
	require.Len(t, b.FeatureImportance, 1, "benign indicators are still listed")
	assert.Equal(t, domain.FeatureContribution{
		Feature:      "behavioral.reply_chain",
		Category:     domain.CategoryBehavioral,
		Contribution: 0,
		Direction:    domain.DecreasesRisk,
	}, b.FeatureImportance[0])
	assert.InDelta(t, 0.50, b.Confidence, 0.001, "one benign indicator")

	level := domain.DefaultThresholds().Level(b.Score)
	assert.Equal(t, domain.RiskSafe, level)
	assert.Equal(t, domain.ThreatClean, ThreatTypeOf(b, level))
}

func TestEngine_Score_BEC(t *testing.T) {
	engine := NewEngine()
	b := engine.Score(becVector(), defaultModel())

	// behavioral 0.50+0.35+0.30 clamps to 1; content 0.24+0.30; header 0.20+0.25; sender 0.10
	assert.InDelta(t, 1.0, b.RawScores[domain.CategoryBehavioral], 1e-9)
	assert.InDelta(t, 0.54, b.RawScores[domain.CategoryContent], 1e-9)
	assert.InDelta(t, 0.45, b.RawScores[domain.CategoryHeader], 1e-9)
	assert.InDelta(t, 0.10, b.RawScores[domain.CategorySender], 1e-9)
	assert.InDelta(t, 0.313, b.RawCombined, 1e-9)
	assert.InDelta(t, b.RawCombined, b.Score, 1e-9, "calibration disabled is identity")

	assert.Equal(t, domain.ThreatBEC, ThreatTypeOf(b, domain.RiskHigh))
	assert.Equal(t, "content.financial_request", b.FeatureImportance[0].Feature)
}

func TestEngine_Score_ImportanceRoundTrip(t *testing.T) {
	engine := NewEngine()
	fv := becVector()
	fv.Header.AuthenticatedSender = true
	fv.URL = domain.URLFeatures{Count: 3, ShortenedCount: 1, MaliciousCount: 1, LoginFormLinks: 1}
	fv.Attachment = domain.AttachmentFeatures{Count: 1, HasMacro: true}

	model := &domain.ModelVersion{
		Version: "custom",
		Weights: map[domain.Category]float64{
			domain.CategoryHeader:     0.1,
			domain.CategoryContent:    0.3,
			domain.CategorySender:     0.1,
			domain.CategoryURL:        0.2,
			domain.CategoryAttachment: 0.2,
			domain.CategoryBehavioral: 0.1,
		},
		Calibration: domain.Calibration{A: 6, B: -3, Enabled: true},
	}

	b := engine.Score(fv, model)

	perCategory := make(map[domain.Category]float64)
	total := 0.0
	for _, c := range b.FeatureImportance {
		perCategory[c.Category] += c.Contribution
		total += c.Contribution
	}
	for _, cat := range domain.Categories {
		assert.InDelta(t, b.RawScores[cat], perCategory[cat]/model.Weights[cat], 1e-9, string(cat))
	}
	assert.InDelta(t, b.RawCombined, total, 1e-9)

	for i := 1; i < len(b.FeatureImportance); i++ {
		assert.GreaterOrEqual(t,
			math.Abs(b.FeatureImportance[i-1].Contribution),
			math.Abs(b.FeatureImportance[i].Contribution),
			"importance sorted by magnitude")
	}
}

func TestEngine_Score_ImportanceListsEveryIndicator(t *testing.T) {
	engine := NewEngine()
	fv := &domain.FeatureVector{
		Sender: domain.SenderFeatures{ReputationScore: 50},
		Behavioral: domain.BehavioralFeatures{
			IsReplyChain:   true,
			HasUnsubscribe: true,
			VolumeAnomaly:  true,
		},
	}

	b := engine.Score(fv, defaultModel())
	require.Equal(t, 0.0, b.RawScores[domain.CategoryBehavioral])

	got := make(map[string]domain.Direction)
	for _, c := range b.FeatureImportance {
		assert.Zero(t, c.Contribution, c.Feature)
		got[c.Feature] = c.Direction
	}
	assert.Equal(t, map[string]domain.Direction{
		"behavioral.reply_chain":         domain.DecreasesRisk,
		"behavioral.unsubscribe_present": domain.DecreasesRisk,
		"behavioral.volume_anomaly":      domain.IncreasesRisk,
	}, got)
	assert.Len(t, b.FeatureImportance, len(b.Indicators))
}

func TestEngine_Score_Calibration(t *testing.T) {
	tests := []struct {
		name        string
		calibration domain.Calibration
		raw         float64
		expected    float64
	}{
		{name: "disabled is identity", calibration: domain.Calibration{A: 10, B: -5}, raw: 0.42, expected: 0.42},
		{name: "sigmoid midpoint", calibration: domain.Calibration{A: 10, B: -5, Enabled: true}, raw: 0.5, expected: 0.5},
		{name: "sigmoid at zero", calibration: domain.Calibration{A: 1, B: 0, Enabled: true}, raw: 0, expected: 0.5},
		{name: "steep curve", calibration: domain.Calibration{A: 10, B: -5, Enabled: true}, raw: 0.9, expected: 1 / (1 + math.Exp(-4))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.calibration.Apply(tt.raw), 1e-9)
		})
	}
}

func TestEngine_ThreatTypePrecedence(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name     string
		fv       *domain.FeatureVector
		expected domain.ThreatType
	}{
		{
			name: "malware attachment dominates",
			fv: &domain.FeatureVector{
				Attachment: domain.AttachmentFeatures{MaliciousHash: true, HasExecutable: true},
				URL:        domain.URLFeatures{MaliciousCount: 1},
			},
			expected: domain.ThreatMalware,
		},
		{
			name: "credential phishing",
			fv: &domain.FeatureVector{
				Content: domain.ContentFeatures{CredentialRequest: true, ThreatLanguage: true},
				URL:     domain.URLFeatures{LoginFormLinks: 1},
			},
			expected: domain.ThreatPhishing,
		},
		{
			name: "tie between categories resolved by precedence",
			fv: &domain.FeatureVector{
				// url 0.30 phishing vs behavioral 0.30 bec
				URL:        domain.URLFeatures{IPAddressCount: 1},
				Behavioral: domain.BehavioralFeatures{ExecutiveImpersonation: true},
			},
			expected: domain.ThreatPhishing,
		},
		{
			name: "bulk mail",
			fv: &domain.FeatureVector{
				Content: domain.ContentFeatures{MarketingLanguage: true, SuspiciousKeywords: 4},
			},
			expected: domain.ThreatSpam,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := engine.Score(tt.fv, defaultModel())
			assert.Equal(t, tt.expected, ThreatTypeOf(b, domain.RiskMedium))
		})
	}
}

func TestEngine_Score_Suppressed(t *testing.T) {
	engine := NewEngine()
	fv := &domain.FeatureVector{Header: domain.HeaderFeatures{SPFFail: true, DKIMFail: true}}

	full := engine.Score(fv, defaultModel())
	partial := engine.Score(fv, defaultModel(), WithSuppressed("header.spf_fail"))

	assert.InDelta(t, 0.55, full.RawScores[domain.CategoryHeader], 1e-9)
	assert.InDelta(t, 0.25, partial.RawScores[domain.CategoryHeader], 1e-9)
	require.Len(t, partial.Indicators, 1)
	assert.Equal(t, "header.dkim_fail", partial.Indicators[0].Key())
}

func TestEngine_Confidence(t *testing.T) {
	tests := []struct {
		name     string
		fv       *domain.FeatureVector
		expected float64
	}{
		{name: "no evidence stays at floor", fv: &domain.FeatureVector{Sender: domain.SenderFeatures{ReputationScore: 50}}, expected: 0.35},
		{name: "single indicator", fv: &domain.FeatureVector{Header: domain.HeaderFeatures{SPFFail: true}}, expected: 0.45},
		{name: "three agreeing categories", fv: becVector(), expected: 0.95},
		{name: "many corroborating signals are capped", fv: withMaliciousURL(becVector()), expected: 0.99},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := engine.Score(tt.fv, defaultModel())
			assert.InDelta(t, tt.expected, b.Confidence, 1e-9)
		})
	}
}
