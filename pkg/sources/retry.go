package sources

import (
	"context"
	"fmt"
	"math"
	"time"

	"deal-watch/pkg/metrics"
	"deal-watch/pkg/models"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 2.0
)

// RetryPolicy is the exponential backoff shared by every source. The wait
// after a transient failure of attempt k is BaseDelay^k / 2 seconds.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   float64

	// Sleep defaults to a context-aware timer; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (p RetryPolicy) Delay(attempt int) time.Duration {
	seconds := math.Pow(p.BaseDelay, float64(attempt)) / 2
	return time.Duration(seconds * float64(time.Second))
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs attempt until it succeeds, hits a non-retryable outcome, or the
// attempt budget is spent. The returned error is classified (see Classify).
func (p RetryPolicy) Do(ctx context.Context, log *zap.Logger, source, identifier string, attempt func(ctx context.Context) (*models.Product, error)) (*models.Product, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		log.Debug("fetching product", zap.String("identifier", identifier), zap.Int("attempt", i))

		product, err := attempt(ctx)
		outcome := Classify(err)
		metrics.FetchAttempts.WithLabelValues(source, outcome.String()).Inc()

		switch outcome {
		case Success:
			return product, nil
		case OutcomeNotFound, OutcomeFatal:
			return nil, err
		}

		lastErr = err
		if i == maxAttempts-1 {
			break
		}

		wait := p.Delay(i)
		log.Debug("transient failure, backing off",
			zap.String("identifier", identifier),
			zap.Int("attempt", i),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := p.sleep(ctx, wait); err != nil {
			return nil, Fatal(fmt.Errorf("backoff interrupted: %w", err))
		}
	}

	return nil, fmt.Errorf("gave up after %d attempts: %w", maxAttempts, lastErr)
}
