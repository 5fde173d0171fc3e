// Package scan holds the text heuristics used on rendered retailer pages:
// list-price discovery and stock phrase detection.
package scan

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	labeledPriceRe = regexp.MustCompile(
		`(?i)(?:list\s+price|msrp|manufacturer'?s?\s+(?:suggested\s+)?(?:retail\s+)?price` +
			`|regular\s+price|orig(?:inal)?\s+price|was\s*:?|before\s+discount)` +
			`[^$\d]{0,30}\$\s*([\d,]+(?:\.\d{1,2})?)`)
	dollarRe     = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{1,2})?)`)
	estValueRe   = regexp.MustCompile(`(?i)est\.?\s+value[^$]*\$\s*([\d,]+(?:\.\d{1,2})?)`)
	percentOffRe = regexp.MustCompile(`(?i)(\d{1,2})\s*%\s*off`)
	negativeRe   = regexp.MustCompile(
		`(?i)available\s+soon|coming\s+soon|notify\s+me|out\s+of\s+stock` +
			`|sold\s+out|no\s+longer\s+available|unavailable`)
)

// Strategy proposes a list price strictly greater than current, or reports
// that it found none.
type Strategy func(text string, current decimal.Decimal) (decimal.Decimal, bool)

// Chain returns the first candidate any strategy yields, in order.
func Chain(strategies ...Strategy) Strategy {
	return func(text string, current decimal.Decimal) (decimal.Decimal, bool) {
		for _, s := range strategies {
			if v, ok := s(text, current); ok {
				return v, true
			}
		}
		return decimal.Zero, false
	}
}

// ParsePrice accepts "$1,299.99", "1299.99" or " 1,299 ".
func ParsePrice(raw string) (decimal.Decimal, bool) {
	cleaned := strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(cleaned)
	if err != nil || v.IsNegative() {
		return decimal.Zero, false
	}
	return v, true
}

// LabeledPrice looks for "List Price: $X", "MSRP $X", "Was $X" and similar.
func LabeledPrice(text string, current decimal.Decimal) (decimal.Decimal, bool) {
	for _, m := range labeledPriceRe.FindAllStringSubmatch(text, -1) {
		if v, ok := ParsePrice(m[1]); ok && v.GreaterThan(current) {
			return v, true
		}
	}
	return decimal.Zero, false
}

// HighestAmount returns the largest dollar amount more than 1% above current.
// The margin keeps rounding noise next to the real price from counting.
func HighestAmount(text string, current decimal.Decimal) (decimal.Decimal, bool) {
	floor := current.Mul(decimal.RequireFromString("1.01"))
	best, found := decimal.Zero, false
	for _, m := range dollarRe.FindAllStringSubmatch(text, -1) {
		v, ok := ParsePrice(m[1])
		if !ok || !v.GreaterThan(floor) {
			continue
		}
		if !found || v.GreaterThan(best) {
			best, found = v, true
		}
	}
	return best, found
}

// EstValue reads "Est. Value $X" markers.
func EstValue(text string, current decimal.Decimal) (decimal.Decimal, bool) {
	m := estValueRe.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	v, ok := ParsePrice(m[1])
	if !ok || !v.GreaterThan(current) {
		return decimal.Zero, false
	}
	return v, true
}

// PercentOff derives the list price implied by "N% off": current / (1 - N/100).
func PercentOff(text string, current decimal.Decimal) (decimal.Decimal, bool) {
	m := percentOffRe.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	pct, err := decimal.NewFromString(m[1])
	if err != nil || !pct.IsPositive() {
		return decimal.Zero, false
	}
	hundred := decimal.NewFromInt(100)
	v := current.Mul(hundred).Div(hundred.Sub(pct)).Round(2)
	if !v.GreaterThan(current) {
		return decimal.Zero, false
	}
	return v, true
}

// Window returns at most size runes from the start of text.
func Window(text string, size int) string {
	r := []rune(text)
	if len(r) > size {
		r = r[:size]
	}
	return string(r)
}

// HasNegativeAvailability reports phrases such as "sold out" or "notify me".
func HasNegativeAvailability(text string) bool {
	return negativeRe.MatchString(text)
}

// InStockCode matches a schema.org availability value against codes such as
// "InStock". Both http and https schema URIs and bare codes are accepted.
func InStockCode(availability string, codes []string) bool {
	availability = strings.TrimSpace(availability)
	if availability == "" {
		return false
	}
	for _, code := range codes {
		if availability == code || strings.HasSuffix(availability, "/"+code) {
			return true
		}
	}
	return false
}
