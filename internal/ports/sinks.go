package ports

import (
	"context"

	"github.com/stoik/threat-engine/internal/domain"
)

// AuditSink receives append-only audit events
type AuditSink interface {
	Record(ctx context.Context, ev domain.AuditEvent) error
}

// Notifier hands operator notifications to a delivery channel
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// MetricsRecorder is fed by services with the events they return
type MetricsRecorder interface {
	ObservePrediction(result *domain.PredictionResult, cached bool)
	ObserveModelEvent(ev domain.ModelEvent)
	ObserveFeedback(class domain.FeedbackClass, duplicate bool, rulesCreated int)
	ObserveDecision(action domain.AdminAction, override bool)
}
