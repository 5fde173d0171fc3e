package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProduct_Savings(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		dollars string
		percent string
	}{
		{
			name:    "not on sale ignores prices",
			product: Product{OnSale: false, SalePrice: dec("10"), RegularPrice: dec("400")},
			dollars: "0",
			percent: "0",
		},
		{
			name:    "on sale",
			product: Product{OnSale: true, SalePrice: dec("199.99"), RegularPrice: dec("249.99")},
			dollars: "50",
			percent: "20",
		},
		{
			name:    "rounded to one place",
			product: Product{OnSale: true, SalePrice: dec("300"), RegularPrice: dec("450")},
			dollars: "150",
			percent: "33.3",
		},
		{
			name:    "zero regular price",
			product: Product{OnSale: true, SalePrice: dec("0"), RegularPrice: dec("0")},
			dollars: "0",
			percent: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.product.DollarSavings(); !got.Equal(dec(tt.dollars)) {
				t.Errorf("DollarSavings() = %s, want %s", got, tt.dollars)
			}
			got := tt.product.PercentSavings()
			if !got.Equal(dec(tt.percent)) {
				t.Errorf("PercentSavings() = %s, want %s", got, tt.percent)
			}
			if got.IsNegative() {
				t.Errorf("PercentSavings() is negative: %s", got)
			}
		})
	}
}

func TestTruncateName(t *testing.T) {
	name := "Apple - AirPods Pro 3, Wireless Active Noise Cancelling Earbuds"
	if got := TruncateName(name, NameWords); got != "Apple - AirPods Pro 3," {
		t.Errorf("TruncateName() = %q", got)
	}
	if got := TruncateName("  Legion Go 2 ", NameWords); got != "Legion Go 2" {
		t.Errorf("TruncateName() = %q", got)
	}
}

func TestNormalizePrices(t *testing.T) {
	list := dec("400")
	sale, regular, onSale := NormalizePrices(dec("300"), &list)
	if !onSale || !sale.Equal(dec("300")) || !regular.Equal(dec("400")) {
		t.Errorf("got sale=%s regular=%s onSale=%v", sale, regular, onSale)
	}

	lower := dec("250")
	sale, regular, onSale = NormalizePrices(dec("300"), &lower)
	if onSale || !sale.Equal(regular) {
		t.Errorf("lower list price must not mark a sale: sale=%s regular=%s", sale, regular)
	}

	_, regular, onSale = NormalizePrices(dec("300"), nil)
	if onSale || !regular.Equal(dec("300")) {
		t.Errorf("missing list price: regular=%s onSale=%v", regular, onSale)
	}
}
