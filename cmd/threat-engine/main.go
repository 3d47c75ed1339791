package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/stoik/threat-engine/internal/adapters/metrics"
	"github.com/stoik/threat-engine/internal/adapters/storage"
	"github.com/stoik/threat-engine/internal/application"
	"github.com/stoik/threat-engine/internal/config"
	"github.com/stoik/threat-engine/internal/di"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
)

func main() {
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

type deps struct {
	dig.In

	Config    *config.Config
	Logger    *zap.Logger
	Store     *storage.SQLStore
	Recorder  *metrics.PrometheusRecorder
	Source    ports.FeatureSource
	Scoring   *application.ScoringService
	Feedback  *application.FeedbackService
	Decisions *application.DecisionService
	Explain   *application.ExplanationService
}

type tenant struct {
	ID   uuid.UUID
	Name string
}

// run scores the sample mail of two demo tenants, then walks the learning
// loop: user feedback, an operator release and the reports built on them
func run(d deps) error {
	defer d.Logger.Sync()
	defer d.Store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := serveMetrics(d.Config.GetMetrics().ListenAddress, d.Recorder, d.Logger)

	if err := d.Scoring.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	mv, err := d.Scoring.ActiveModel(ctx)
	if err != nil {
		return err
	}
	d.Logger.Info("Active model loaded", zap.String("version", mv.Version))

	lookback, err := d.Config.GetDuration("demo.lookback")
	if err != nil {
		return err
	}

	tenants := []tenant{
		{ID: uuid.New(), Name: "Acme Insurance Co."},
		{ID: uuid.New(), Name: "Beta Corp."},
	}
	for _, t := range tenants {
		if err := processTenant(ctx, d, t, time.Now().Add(-lookback)); err != nil {
			return fmt.Errorf("tenant %s: %w", t.Name, err)
		}
	}

	sweep, err := d.Feedback.SweepPatterns(ctx)
	if err != nil {
		d.Logger.Error("Pattern sweep failed", zap.Error(err))
	} else {
		d.Logger.Info("Pattern sweep complete",
			zap.Int64("decayed", sweep.Decayed),
			zap.Int64("deactivated", sweep.Deactivated),
			zap.Int64("rules_expired", sweep.RulesExpired))
	}

	if server == nil {
		d.Logger.Info("Threat engine demo completed")
		return nil
	}

	d.Logger.Info("Serving metrics until interrupted", zap.String("address", server.Addr))
	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return server.Shutdown(shutdownCtx)
}

func processTenant(ctx context.Context, d deps, t tenant, since time.Time) error {
	log := d.Logger.With(zap.String("tenant", t.Name), zap.String("tenant_id", t.ID.String()))

	// Phase 1: scoring
	fvs, err := d.Source.Fetch(ctx, t.ID, since)
	if err != nil {
		return fmt.Errorf("failed to fetch features: %w", err)
	}
	results, err := d.Scoring.BatchPredict(ctx, fvs)
	if err != nil {
		return err
	}
	log.Info("Scored messages", zap.Int("count", len(results)))

	// Phase 2: explanations for flagged mail
	for _, res := range results {
		if res.RiskLevel != domain.RiskCritical && res.RiskLevel != domain.RiskHigh {
			continue
		}
		exp, err := d.Explain.Explain(ctx, t.ID, res.VerdictID, domain.AudienceAnalyst, domain.DetailBrief)
		if err != nil {
			log.Warn("Failed to explain verdict", zap.String("verdict_id", res.VerdictID.String()), zap.Error(err))
			continue
		}
		log.Info("SECURITY ALERT",
			zap.String("message_id", res.MessageID),
			zap.Float64("threat_score", res.ThreatScore),
			zap.String("risk_level", string(res.RiskLevel)),
			zap.String("threat_type", string(res.ThreatType)),
			zap.String("summary", exp.Summary))
	}

	// Phase 3: feedback and operator decisions on the least risky verdict
	if len(results) > 0 {
		safest := results[0]
		for _, res := range results[1:] {
			if res.ThreatScore < safest.ThreatScore {
				safest = res
			}
		}
		if err := learnFrom(ctx, d, t, safest, fvs); err != nil {
			return err
		}
	}

	// Phase 4: reports
	analytics := d.Feedback.FeedbackAnalytics(ctx, t.ID)
	log.Info("Feedback analytics",
		zap.Int("total", analytics.Total),
		zap.Int("false_positives", analytics.FalsePositives),
		zap.Int("active_patterns", analytics.ActivePatterns))

	summary, err := d.Explain.ExecutiveSummary(ctx, t.ID, "7 days")
	if err != nil {
		return err
	}
	for _, h := range summary.Highlights {
		log.Info("Executive summary", zap.String("highlight", h))
	}
	return nil
}

func learnFrom(ctx context.Context, d deps, t tenant, res domain.PredictionResult, fvs []domain.FeatureVector) error {
	var env domain.Envelope
	for _, fv := range fvs {
		if fv.MessageID == res.MessageID {
			env = fv.Envelope
		}
	}

	fb, err := d.Feedback.ProcessFeedback(ctx, &domain.FeedbackEvent{
		FeedbackID:      "demo-" + res.VerdictID.String(),
		TenantID:        t.ID,
		MessageID:       res.MessageID,
		SenderDomain:    env.SenderDomain,
		SenderEmail:     env.SenderEmail,
		Subject:         env.Subject,
		URLs:            env.URLs,
		FeedbackType:    "not_spam",
		OriginalVerdict: string(res.RiskLevel),
		OriginalScore:   res.ThreatScore,
		ReceivedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to process feedback: %w", err)
	}
	d.Logger.Info("Feedback processed",
		zap.String("class", string(fb.Class)),
		zap.Int("patterns", fb.PatternsExtracted),
		zap.Int("rules_created", fb.RulesCreated))

	if _, err := d.Decisions.RecordVerdictDecision(ctx, t.ID, res.VerdictID, "demo-admin",
		domain.ActionRelease, "known sender"); err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	analysis, err := d.Decisions.AnalyzePatterns(ctx, t.ID)
	if err != nil {
		return err
	}
	d.Logger.Info("Decision analysis",
		zap.Int("decisions", analysis.TotalDecisions),
		zap.Bool("insufficient_data", analysis.InsufficientData))
	return nil
}

// serveMetrics exposes the recorder registry. It returns nil when no address is configured.
func serveMetrics(addr string, recorder *metrics.PrometheusRecorder, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return server
}
