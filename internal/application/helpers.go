package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
	"go.uber.org/zap"
)

// effectiveThresholds resolves tenant, then global, then built-in defaults
func effectiveThresholds(ctx context.Context, repo ports.ThresholdRepository, tenantID uuid.UUID) (domain.ThresholdConfig, error) {
	for _, id := range []uuid.UUID{tenantID, domain.GlobalTenant} {
		cfg, err := repo.GetThresholds(ctx, id)
		if err != nil {
			return domain.DefaultThresholds(), err
		}
		if cfg != nil {
			return *cfg, nil
		}
	}
	return domain.DefaultThresholds(), nil
}

// audit records ev and only logs a failing sink.
// Audit delivery never fails the operation it describes.
func audit(ctx context.Context, sink ports.AuditSink, logger *zap.Logger, ev domain.AuditEvent) {
	if sink == nil {
		return
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := sink.Record(ctx, ev); err != nil {
		logger.Warn("failed to record audit event", zap.String("action", ev.Action), zap.Error(err))
	}
}

func notify(ctx context.Context, n ports.Notifier, logger *zap.Logger, msg domain.Notification) {
	if n == nil {
		return
	}
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	if err := n.Notify(ctx, msg); err != nil {
		logger.Warn("failed to send notification", zap.String("kind", string(msg.Kind)), zap.Error(err))
	}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
