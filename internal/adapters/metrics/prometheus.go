package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
)

var _ ports.MetricsRecorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder turns the events returned by services into Prometheus series
type PrometheusRecorder struct {
	registry *prometheus.Registry

	predictions  *prometheus.CounterVec
	cacheHits    *prometheus.CounterVec
	threatScores prometheus.Histogram
	modelEvents  *prometheus.CounterVec
	feedback     *prometheus.CounterVec
	rulesCreated prometheus.Counter
	decisions    *prometheus.CounterVec
}

// NewPrometheusRecorder registers the decision core series on a fresh registry
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of verdicts issued",
		}, []string{"risk_level", "threat_type", "model_version"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_total",
			Help:      "Prediction cache lookups",
		}, []string{"result"}),
		threatScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "threat_score",
			Help:      "Distribution of final threat scores",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		modelEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_events_total",
			Help:      "Model lifecycle transitions",
		}, []string{"type"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback events processed",
		}, []string{"class", "duplicate"}),
		rulesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learned_rules_created_total",
			Help:      "Learned rules synthesized from feedback patterns",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_decisions_total",
			Help:      "Admin decisions recorded",
		}, []string{"action", "override"}),
	}

	r.registry.MustRegister(r.predictions, r.cacheHits, r.threatScores, r.modelEvents,
		r.feedback, r.rulesCreated, r.decisions)
	return r
}

// Registry is the gatherer to expose
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) ObservePrediction(result *domain.PredictionResult, cached bool) {
	r.predictions.WithLabelValues(string(result.RiskLevel), string(result.ThreatType), result.ModelVersion).Inc()
	r.threatScores.Observe(result.ThreatScore)
	if cached {
		r.cacheHits.WithLabelValues("hit").Inc()
	} else {
		r.cacheHits.WithLabelValues("miss").Inc()
	}
}

func (r *PrometheusRecorder) ObserveModelEvent(ev domain.ModelEvent) {
	r.modelEvents.WithLabelValues(string(ev.Type)).Inc()
}

func (r *PrometheusRecorder) ObserveFeedback(class domain.FeedbackClass, duplicate bool, rulesCreated int) {
	r.feedback.WithLabelValues(string(class), strconv.FormatBool(duplicate)).Inc()
	r.rulesCreated.Add(float64(rulesCreated))
}

func (r *PrometheusRecorder) ObserveDecision(action domain.AdminAction, override bool) {
	r.decisions.WithLabelValues(string(action), strconv.FormatBool(override)).Inc()
}

// Nop discards every observation
type Nop struct{}

func (Nop) ObservePrediction(*domain.PredictionResult, bool) {}
func (Nop) ObserveModelEvent(domain.ModelEvent) {}
func (Nop) ObserveFeedback(domain.FeedbackClass, bool, int) {}
func (Nop) ObserveDecision(domain.AdminAction, bool) {}
