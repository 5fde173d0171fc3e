package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"deal-watch/pkg/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeRaw struct {
	status int
	body   string
}

type fakeAdapter struct {
	responses []fakeRaw
	fetches   int
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) FetchRaw(_ context.Context, _ string) (fakeRaw, error) {
	raw := f.responses[min(f.fetches, len(f.responses)-1)]
	f.fetches++
	return raw, nil
}

func (f *fakeAdapter) Check(raw fakeRaw) error {
	switch raw.status {
	case 429:
		return Transient(errors.New("rate limited"))
	case 404:
		return NotFound(errors.New("no such sku"))
	}
	return nil
}

func (f *fakeAdapter) Parse(raw fakeRaw) (*models.Product, error) {
	if raw.body == "" {
		return nil, &ParseError{Source: "fake", Field: "body", Err: errors.New("empty")}
	}
	return &models.Product{Identifier: raw.body}, nil
}

func noSleep() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestBind_FetchProduct(t *testing.T) {
	tests := []struct {
		name      string
		responses []fakeRaw
		wantOK    bool
		fetches   int
		level     string
	}{
		{"success after rate limit", []fakeRaw{{status: 429}, {status: 200, body: "sku"}}, true, 2, ""},
		{"not found", []fakeRaw{{status: 404}}, false, 1, "info"},
		{"parse failure is fatal", []fakeRaw{{status: 200}}, false, 1, "error"},
		{"always rate limited", []fakeRaw{{status: 429}}, false, 10, "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			adapter := &fakeAdapter{responses: tt.responses}
			src := Bind[fakeRaw](adapter, zap.New(core), noSleep())

			product, ok := src.FetchProduct(context.Background(), "sku")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (product == nil || product.FetchedAt.IsZero()) {
				t.Errorf("expected stamped product, got %+v", product)
			}
			if adapter.fetches != tt.fetches {
				t.Errorf("fetches = %d, want %d", adapter.fetches, tt.fetches)
			}
			if tt.level != "" {
				all := logs.All()
				if len(all) == 0 || all[len(all)-1].Level.String() != tt.level {
					t.Errorf("expected a %s record, got %+v", tt.level, all)
				}
			}
		})
	}
}
