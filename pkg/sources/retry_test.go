package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"deal-watch/pkg/models"

	"go.uber.org/zap"
)

func recordingPolicy(sleeps *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return p
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	for k := 0; k < 10; k++ {
		want := time.Duration(float64(int(1)<<k) / 2 * float64(time.Second))
		if got := p.Delay(k); got != want {
			t.Errorf("Delay(%d) = %v, want %v", k, got, want)
		}
	}
}

func TestRetryPolicy_ExhaustsTransient(t *testing.T) {
	var sleeps []time.Duration
	p := recordingPolicy(&sleeps)

	calls := 0
	product, err := p.Do(context.Background(), zap.NewNop(), "test", "sku", func(context.Context) (*models.Product, error) {
		calls++
		return nil, Transient(errors.New("429"))
	})

	if product != nil {
		t.Fatalf("expected no product, got %+v", product)
	}
	if calls != 10 {
		t.Errorf("expected 10 attempts, got %d", calls)
	}
	if Classify(err) != OutcomeTransient {
		t.Errorf("expected transient classification, got %v (%v)", Classify(err), err)
	}
	if len(sleeps) != 9 {
		t.Fatalf("expected 9 backoff sleeps, got %d", len(sleeps))
	}
	for k, d := range sleeps {
		if d != p.Delay(k) {
			t.Errorf("sleep %d = %v, want %v", k, d, p.Delay(k))
		}
	}
}

func TestRetryPolicy_ShortCircuits(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome Outcome
	}{
		{"not found", NotFound(errors.New("404")), OutcomeNotFound},
		{"fatal", Fatal(errors.New("missing json-ld")), OutcomeFatal},
		{"parse error", &ParseError{Source: "test", Field: "price", Err: errors.New("missing")}, OutcomeFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sleeps []time.Duration
			p := recordingPolicy(&sleeps)

			calls := 0
			_, err := p.Do(context.Background(), zap.NewNop(), "test", "sku", func(context.Context) (*models.Product, error) {
				calls++
				return nil, tt.err
			})

			if calls != 1 {
				t.Errorf("expected exactly 1 attempt, got %d", calls)
			}
			if len(sleeps) != 0 {
				t.Errorf("expected no sleeps, got %v", sleeps)
			}
			if got := Classify(err); got != tt.outcome {
				t.Errorf("Classify() = %v, want %v", got, tt.outcome)
			}
		})
	}
}

func TestRetryPolicy_RecoversAfterTransient(t *testing.T) {
	var sleeps []time.Duration
	p := recordingPolicy(&sleeps)

	calls := 0
	product, err := p.Do(context.Background(), zap.NewNop(), "test", "sku", func(context.Context) (*models.Product, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return &models.Product{Identifier: "sku"}, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Identifier != "sku" {
		t.Errorf("unexpected product %+v", product)
	}
	if calls != 3 || len(sleeps) != 2 {
		t.Errorf("calls=%d sleeps=%d, want 3 and 2", calls, len(sleeps))
	}
}

func TestRetryPolicy_StopsOnCancelledBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := DefaultRetryPolicy()
	calls := 0
	_, err := p.Do(ctx, zap.NewNop(), "test", "sku", func(context.Context) (*models.Product, error) {
		calls++
		return nil, Transient(errors.New("blocked"))
	})

	if calls != 1 {
		t.Errorf("expected 1 attempt before the cancelled sleep, got %d", calls)
	}
	if Classify(err) != OutcomeFatal {
		t.Errorf("expected fatal after cancellation, got %v", err)
	}
}
