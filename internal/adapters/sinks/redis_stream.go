package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
	"go.uber.org/zap"
)

var (
	_ ports.AuditSink = (*StreamSink)(nil)
	_ ports.Notifier  = (*StreamSink)(nil)
)

// StreamSink appends audit events or notifications to a capped Redis stream.
// A circuit breaker stops a failing Redis from slowing every caller down.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewStreamSink creates a sink appending to stream, keeping about maxLen entries
func NewStreamSink(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamSink {
	settings := gobreaker.Settings{
		Name:        "redis-stream:" + stream,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &StreamSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// Record appends an audit event
func (s *StreamSink) Record(ctx context.Context, ev domain.AuditEvent) error {
	return s.publish(ctx, "event", ev)
}

// Notify appends a notification
func (s *StreamSink) Notify(ctx context.Context, n domain.Notification) error {
	return s.publish(ctx, "notification", n)
}

// State exposes the breaker state for health reporting
func (s *StreamSink) State() gobreaker.State {
	return s.cb.State()
}

func (s *StreamSink) publish(ctx context.Context, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", field, err)
	}

	_, err = s.cb.Execute(func() (any, error) {
		return nil, s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]any{field: string(data)},
			MaxLen: s.maxLen,
			Approx: true,
		}).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.stream, err)
	}
	return nil
}
