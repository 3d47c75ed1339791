package ports

import (
	"context"

	"github.com/stoik/threat-engine/internal/domain"
)

// PredictionCache stores engine output keyed by feature fingerprint and model version.
// Cache failures are misses: Get never blocks a prediction.
type PredictionCache interface {
	Get(ctx context.Context, key string) (*domain.ScoreBreakdown, bool)
	Set(ctx context.Context, key string, b *domain.ScoreBreakdown)
	// Flush drops every entry. It returns once the cache is empty.
	Flush(ctx context.Context) error
}
