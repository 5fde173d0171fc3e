package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NameWords is how many words of a retailer's product title are kept.
const NameWords = 5

// Product is the normalized shape every source produces. It is built once per
// successful fetch and never modified afterwards.
type Product struct {
	Identifier   string          `json:"identifier"`
	Name         string          `json:"name"`
	InStock      bool            `json:"in_stock"`
	OnSale       bool            `json:"on_sale"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	RegularPrice decimal.Decimal `json:"regular_price"`
	URL          string          `json:"url"`
	Retailer     string          `json:"retailer"`
	RetailerLogo string          `json:"retailer_logo"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// DollarSavings is zero unless the product is on sale.
func (p *Product) DollarSavings() decimal.Decimal {
	if !p.OnSale {
		return decimal.Zero
	}
	return p.RegularPrice.Sub(p.SalePrice)
}

// PercentSavings is rounded to one decimal place.
func (p *Product) PercentSavings() decimal.Decimal {
	if !p.OnSale || !p.RegularPrice.IsPositive() {
		return decimal.Zero
	}
	return p.DollarSavings().Div(p.RegularPrice).Mul(decimal.NewFromInt(100)).Round(1)
}

// EffectivePrice is what a buyer pays right now.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.OnSale {
		return p.SalePrice
	}
	return p.RegularPrice
}

func TruncateName(name string, words int) string {
	fields := strings.Fields(name)
	if len(fields) > words {
		fields = fields[:words]
	}
	return strings.Join(fields, " ")
}

// NormalizePrices turns a current price and an optional list price into
// (sale, regular, onSale) so that sale <= regular always holds when onSale is set.
func NormalizePrices(current decimal.Decimal, list *decimal.Decimal) (sale, regular decimal.Decimal, onSale bool) {
	if list == nil || !list.GreaterThan(current) {
		return current, current, false
	}
	return current, *list, true
}
