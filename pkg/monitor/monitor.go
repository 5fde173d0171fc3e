package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"deal-watch/pkg/decision"
	"deal-watch/pkg/metrics"
	"deal-watch/pkg/models"
	"deal-watch/pkg/notify"
	"deal-watch/pkg/sources"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrTaskFailed = errors.New("task failed")

// Cache is the subset of the product cache the monitor uses.
type Cache interface {
	Get(ctx context.Context, source, identifier string) (*models.Product, bool)
	Set(ctx context.Context, source, identifier string, product *models.Product)
}

// Result is the outcome of one (source, identifier) pair.
type Result struct {
	Entry      string
	Source     string
	Identifier string
	Product    *models.Product
	Cached     bool
	Decision   decision.Decision
	Notified   bool
	Err        error
}

type Monitor struct {
	registry *sources.Registry
	notifier notify.Notifier
	cache    Cache
	log      *zap.Logger
}

type Option func(*Monitor)

func WithCache(c Cache) Option {
	return func(m *Monitor) { m.cache = c }
}

func New(registry *sources.Registry, notifier notify.Notifier, log *zap.Logger, opts ...Option) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{
		registry: registry,
		notifier: notifier,
		log:      log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run processes entries one after another. The pairs of an entry are fetched
// concurrently and all of them finish before the next entry starts. Results
// follow the configured order.
func (m *Monitor) Run(ctx context.Context, entries []models.WatchlistEntry) []Result {
	runID := uuid.NewString()
	log := m.log.With(zap.String("run", runID))
	log.Info("run started", zap.Int("entries", len(entries)), zap.Strings("sources", m.registry.Names()))

	var results []Result
	for i, entry := range entries {
		name := entry.Name
		if name == "" {
			name = fmt.Sprintf("entry-%d", i+1)
		}
		elog := log.With(zap.String("entry", name))
		elog.Info("processing entry", zap.Int("identifiers", len(entry.Identifiers)))

		slots := make([]*Result, len(entry.Identifiers))
		var wg sync.WaitGroup
		for j, id := range entry.Identifiers {
			if !m.registry.Has(id.Source) {
				elog.Debug("no source registered, skipping", zap.String("source", id.Source))
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := m.task(ctx, elog, entry, id)
				res.Entry = name
				slots[j] = &res
			}()
		}
		wg.Wait()

		for _, r := range slots {
			if r != nil {
				results = append(results, *r)
			}
		}
	}

	notified := 0
	for _, r := range results {
		if r.Notified {
			notified++
		}
	}
	log.Info("run finished", zap.Int("pairs", len(results)), zap.Int("notified", notified))
	return results
}

func (m *Monitor) task(ctx context.Context, log *zap.Logger, entry models.WatchlistEntry, id models.Identifier) (res Result) {
	res = Result{Source: id.Source, Identifier: id.ID}
	log = log.With(zap.String("source", id.Source), zap.String("identifier", id.ID))

	defer func() {
		if r := recover(); r != nil {
			metrics.TaskFailures.WithLabelValues(id.Source).Inc()
			log.Error("task failed", zap.Any("panic", r), zap.Stack("stack"))
			res.Err = fmt.Errorf("%w: %v", ErrTaskFailed, r)
		}
	}()

	src, err := m.registry.Get(id.Source)
	if err != nil {
		res.Err = err
		return res
	}

	log.Info("processing")
	product, cached, ok := m.lookup(ctx, src, id)
	if !ok {
		return res
	}
	res.Product, res.Cached = product, cached
	log.Info("fetched", zap.String("name", product.Name), zap.String("retailer", product.Retailer), zap.Bool("cached", cached))

	dec := decision.Evaluate(product, entry.MaxPrice)
	res.Decision = dec
	if !dec.Notify() {
		fields := []zap.Field{zap.String("reason", dec.Reason)}
		if !dec.Gap.IsZero() {
			fields = append(fields, zap.String("gap", dec.Gap.StringFixed(2)))
		}
		log.Info("skipped", fields...)
		return res
	}

	if m.notifier == nil {
		log.Warn("no notifier configured", zap.String("kind", dec.Kind.String()))
		return res
	}
	err = m.notifier.Notify(ctx, notify.Notification{
		Kind:    dec.Kind,
		Product: product,
		Ceiling: entry.MaxPrice,
		Channel: entry.Channel,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Notified = true
	log.Info("notified", zap.String("kind", dec.Kind.String()))
	return res
}

// lookup reports whether the product came from the cache.
func (m *Monitor) lookup(ctx context.Context, src sources.Source, id models.Identifier) (*models.Product, bool, bool) {
	if m.cache != nil {
		if p, ok := m.cache.Get(ctx, id.Source, id.ID); ok {
			return p, true, true
		}
	}
	product, ok := src.FetchProduct(ctx, id.ID)
	if !ok {
		return nil, false, false
	}
	if m.cache != nil {
		m.cache.Set(ctx, id.Source, id.ID, product)
	}
	return product, false, true
}
