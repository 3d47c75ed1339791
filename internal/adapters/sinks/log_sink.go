package sinks

import (
	"context"

	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
	"go.uber.org/zap"
)

var (
	_ ports.AuditSink = (*LogSink)(nil)
	_ ports.Notifier  = (*LogSink)(nil)
)

// LogSink writes audit events and notifications to the structured log.
// It is the default when no Redis is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink on logger
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs an audit event
func (s *LogSink) Record(_ context.Context, ev domain.AuditEvent) error {
	s.logger.Info("audit",
		zap.String("action", ev.Action),
		zap.String("tenant_id", ev.TenantID.String()),
		zap.String("actor", ev.Actor),
		zap.String("resource", ev.Resource),
		zap.Any("details", ev.Details),
		zap.Time("at", ev.At),
	)
	return nil
}

// Notify logs a notification
func (s *LogSink) Notify(_ context.Context, n domain.Notification) error {
	s.logger.Warn(n.Title,
		zap.String("kind", string(n.Kind)),
		zap.String("tenant_id", n.TenantID.String()),
		zap.Any("details", n.Details),
	)
	return nil
}
