package decision

import (
	"deal-watch/pkg/models"

	"github.com/shopspring/decimal"
)

// Kind is the notification a product earns. At most one per evaluation.
type Kind int

const (
	None Kind = iota
	InStock
	OnSaleBelowCeiling
	BelowCeiling
)

func (k Kind) String() string {
	switch k {
	case InStock:
		return "in_stock"
	case OnSaleBelowCeiling:
		return "on_sale_below_ceiling"
	case BelowCeiling:
		return "below_ceiling"
	default:
		return "none"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Decision struct {
	Kind   Kind
	Reason string
	// Gap is price minus ceiling when a ceiling was exceeded.
	Gap decimal.Decimal
}

func (d Decision) Notify() bool {
	return d.Kind != None
}

// Evaluate applies the rules in a fixed order: stock, missing ceiling, sale
// price under ceiling, regular price under ceiling. A nil product yields None.
func Evaluate(p *models.Product, ceiling *decimal.Decimal) Decision {
	switch {
	case p == nil:
		return Decision{Kind: None, Reason: "no product"}
	case !p.InStock:
		return Decision{Kind: None, Reason: "out of stock"}
	case ceiling == nil:
		return Decision{Kind: InStock, Reason: "in stock, no price ceiling"}
	case p.OnSale && p.SalePrice.LessThanOrEqual(*ceiling):
		return Decision{Kind: OnSaleBelowCeiling, Reason: "sale price within ceiling"}
	case p.RegularPrice.LessThanOrEqual(*ceiling):
		return Decision{Kind: BelowCeiling, Reason: "price within ceiling"}
	default:
		return Decision{
			Kind:   None,
			Reason: "price exceeds ceiling",
			Gap:    p.EffectivePrice().Sub(*ceiling),
		}
	}
}
