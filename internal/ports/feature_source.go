package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

// FeatureSource yields feature vectors extracted upstream from a tenant's mailboxes
type FeatureSource interface {
	// Fetch returns the vectors of emails received after receivedAfter
	Fetch(ctx context.Context, tenantID uuid.UUID, receivedAfter time.Time) ([]domain.FeatureVector, error)
}
