package enrich

import (
	"context"
	"errors"

	"marketwatch/internal/models"
)

// Enricher turns a raw alert event into a narrative message. Every call
// is stateless and independent; no conversational context is kept between
// alerts. Failures are recovered by the caller, which falls back to the
// event's default message.
type Enricher interface {
	Enrich(ctx context.Context, event models.AlertEvent) (string, error)
}

var (
	// ErrInvalidConfig means the enricher could not be constructed.
	ErrInvalidConfig = errors.New("invalid enrichment config")

	// ErrEmptyResponse means the model returned no usable text.
	ErrEmptyResponse = errors.New("empty enrichment response")
)
