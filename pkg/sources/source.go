package sources

import (
	"context"
	"time"

	"deal-watch/pkg/metrics"
	"deal-watch/pkg/models"

	"go.uber.org/zap"
)

// Adapter is the retailer-specific half of a source.
//
// FetchRaw performs exactly one round trip and never retries. It may return an
// error for transport failures, or a response for Check to interpret.
// Check classifies a response with Transient, NotFound or Fatal, or returns nil.
// Parse is pure and returns a *ParseError when required fields are missing.
type Adapter[R any] interface {
	Name() string
	FetchRaw(ctx context.Context, identifier string) (R, error)
	Check(raw R) error
	Parse(raw R) (*models.Product, error)
}

// Source is what the orchestrator and the API see.
type Source interface {
	Name() string

	// FetchProduct never fails: it returns false when the identifier should
	// be skipped for this run, after logging why.
	FetchProduct(ctx context.Context, identifier string) (*models.Product, bool)

	// Lookup is FetchProduct with the classified error kept.
	Lookup(ctx context.Context, identifier string) (*models.Product, error)
}

// Definition is one entry of the fixed source list registered at startup.
type Definition struct {
	Name string
	New  func(log *zap.Logger) Source
}

type bound[R any] struct {
	adapter Adapter[R]
	log     *zap.Logger
	retry   RetryPolicy
}

// Bind wraps an adapter with the shared retry policy.
func Bind[R any](adapter Adapter[R], log *zap.Logger, retry RetryPolicy) Source {
	return &bound[R]{adapter: adapter, log: log, retry: retry}
}

func (b *bound[R]) Name() string {
	return b.adapter.Name()
}

func (b *bound[R]) attempt(identifier string) func(ctx context.Context) (*models.Product, error) {
	return func(ctx context.Context) (*models.Product, error) {
		raw, err := b.adapter.FetchRaw(ctx, identifier)
		if err != nil {
			return nil, err
		}
		if err := b.adapter.Check(raw); err != nil {
			return nil, err
		}
		product, err := b.adapter.Parse(raw)
		if err != nil {
			return nil, Fatal(err)
		}
		if product.FetchedAt.IsZero() {
			product.FetchedAt = time.Now()
		}
		return product, nil
	}
}

func (b *bound[R]) Lookup(ctx context.Context, identifier string) (*models.Product, error) {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(b.adapter.Name()).Observe(time.Since(start).Seconds())
	}()
	return b.retry.Do(ctx, b.log, b.adapter.Name(), identifier, b.attempt(identifier))
}

func (b *bound[R]) FetchProduct(ctx context.Context, identifier string) (*models.Product, bool) {
	product, err := b.Lookup(ctx, identifier)
	if err == nil {
		return product, true
	}

	fields := []zap.Field{zap.String("identifier", identifier), zap.Error(err)}
	switch Classify(err) {
	case OutcomeNotFound:
		b.log.Info("product not found, skipping for this run", fields...)
	case OutcomeFatal:
		b.log.Error("fetch failed, adapter may need maintenance", fields...)
	default:
		b.log.Warn("retries exhausted", fields...)
	}
	return nil, false
}
