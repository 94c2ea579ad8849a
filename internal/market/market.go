package market

import (
	"context"
	"fmt"

	"marketwatch/internal/models"
)

// Client fetches the current value of a market metric.
type Client interface {
	GetReading(ctx context.Context, market, provider, symbol string, metric models.Metric) (float64, error)
}

// FetchError wraps a failure to obtain a reading. The scheduler treats it
// as transient and retries with backoff.
type FetchError struct {
	Symbol string
	Metric models.Metric
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s failed: %v", e.Metric, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
