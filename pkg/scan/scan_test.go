package scan

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		text     string
		current  string
		want     string
	}{
		{"labeled list price", LabeledPrice, "Our Price $899.99 List Price: $1,099.99", "899.99", "1099.99"},
		{"labeled msrp", LabeledPrice, "MSRP $1,299.00 now $999", "999", "1299.00"},
		{"labeled was", LabeledPrice, "Was: $49.99", "39.99", "49.99"},
		{"labeled lower than current", LabeledPrice, "Regular Price $20", "25", ""},
		{"highest amount", HighestAmount, "$899.99 $949.00 $1,049.95 $5", "899.99", "1049.95"},
		{"highest amount ignores near current", HighestAmount, "$899.99 $905.00", "899.99", ""},
		{"est value", EstValue, "Est. Value $1,149.99 Price $999.99", "999.99", "1149.99"},
		{"est value no dot", EstValue, "Est Value: $1,149.99", "999.99", "1149.99"},
		{"percent off", PercentOff, "Save 20% off today", "800", "1000"},
		{"no percent", PercentOff, "Free shipping", "800", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.strategy(tt.text, d(tt.current))
			if tt.want == "" {
				if ok {
					t.Fatalf("expected no candidate, got %s", got)
				}
				return
			}
			if !ok {
				t.Fatalf("expected %s, got none", tt.want)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChain_Priority(t *testing.T) {
	chain := Chain(LabeledPrice, HighestAmount, EstValue, PercentOff)

	// the labeled price wins over a larger unlabeled amount
	got, ok := chain("List Price $1,000 bundle $2,500", d("900"))
	if !ok || !got.Equal(d("1000")) {
		t.Errorf("got %s/%v, want 1000", got, ok)
	}

	got, ok = chain("Now 10% off", d("900"))
	if !ok || !got.Equal(d("1000")) {
		t.Errorf("percent fallback: got %s/%v, want 1000", got, ok)
	}

	if _, ok := chain("Add to cart $900", d("900")); ok {
		t.Error("expected no candidate when nothing exceeds the current price")
	}
}

func TestWindow(t *testing.T) {
	if got := Window("header $5 $899", 6); got != "header" {
		t.Errorf("Window() = %q", got)
	}
	if got := Window("€899 ünd", 4); got != "€899" {
		t.Errorf("Window() should count runes, got %q", got)
	}
	if got := Window("short", 100); got != "short" {
		t.Errorf("Window() = %q", got)
	}
}

func TestStockSignals(t *testing.T) {
	codes := []string{"InStock", "LimitedAvailability"}
	if !InStockCode("https://schema.org/InStock", codes) {
		t.Error("https InStock should match")
	}
	if !InStockCode("http://schema.org/LimitedAvailability", codes) {
		t.Error("http LimitedAvailability should match")
	}
	if InStockCode("https://schema.org/OutOfStock", codes) || InStockCode("", codes) {
		t.Error("OutOfStock and empty must not match")
	}
	if !HasNegativeAvailability("Legion Go 2 - Coming Soon") {
		t.Error("coming soon should be detected")
	}
	if HasNegativeAvailability("Add to cart") {
		t.Error("add to cart is not a negative phrase")
	}
}
