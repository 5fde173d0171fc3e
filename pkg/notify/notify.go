package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deal-watch/pkg/decision"
	"deal-watch/pkg/metrics"
	"deal-watch/pkg/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoRoute = errors.New("no notifier for channel")
	ErrEmpty   = errors.New("empty notification")
)

type Notification struct {
	Kind    decision.Kind    `json:"kind"`
	Product *models.Product  `json:"product"`
	Ceiling *decimal.Decimal `json:"ceiling,omitempty"`
	Channel string           `json:"channel"`
	SentAt  time.Time        `json:"sent_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

func Title(n Notification) string {
	if n.Product == nil || n.Product.Retailer == "" {
		return "Deal Alert"
	}
	return n.Product.Retailer + " Alert"
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// belowTarget is how far the price sits under the ceiling, in dollars and
// as a share of the ceiling.
func belowTarget(price, ceiling decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	diff := ceiling.Sub(price)
	if ceiling.IsZero() {
		return diff, decimal.Zero
	}
	return diff, diff.Div(ceiling).Mul(decimal.NewFromInt(100)).Round(1)
}

// Body renders the markdown message for a notification.
func Body(n Notification) string {
	p := n.Product
	if p == nil {
		return ""
	}

	var b strings.Builder
	switch n.Kind {
	case decision.OnSaleBelowCeiling:
		fmt.Fprintf(&b, "### %s is in stock AND on sale!\n\n", p.Name)
		fmt.Fprintf(&b, "**Sale Price:** %s  \n", money(p.SalePrice))
		fmt.Fprintf(&b, "**Original Price:** %s  \n", money(p.RegularPrice))
		if n.Ceiling != nil {
			fmt.Fprintf(&b, "**Your Target Price:** %s  \n", money(*n.Ceiling))
		}
		fmt.Fprintf(&b, "\n**Sale savings:** %s (%s%%)  \n", money(p.DollarSavings()), p.PercentSavings().StringFixed(1))
		if n.Ceiling != nil {
			diff, pct := belowTarget(p.SalePrice, *n.Ceiling)
			fmt.Fprintf(&b, "**Below your target by:** %s (%s%%)\n", money(diff), pct.StringFixed(1))
		}
	case decision.BelowCeiling:
		fmt.Fprintf(&b, "### %s is in stock AND within your price target!\n\n", p.Name)
		fmt.Fprintf(&b, "**Current Price:** %s  \n", money(p.RegularPrice))
		if n.Ceiling != nil {
			fmt.Fprintf(&b, "**Your Target Price:** %s  \n", money(*n.Ceiling))
			diff, pct := belowTarget(p.RegularPrice, *n.Ceiling)
			fmt.Fprintf(&b, "\n**Below your target by:** %s (%s%%)\n", money(diff), pct.StringFixed(1))
		}
	default:
		fmt.Fprintf(&b, "### %s is back in stock!\n\n", p.Name)
		fmt.Fprintf(&b, "**Current Price:** %s\n", money(p.EffectivePrice()))
	}
	fmt.Fprintf(&b, "\n[%s](%s)", p.URL, p.URL)
	return b.String()
}

// Router picks a backend from the channel handle:
// "telegram:<chat id>", "amqp:<queue>", or an http(s) ntfy topic URL.
type Router struct {
	Ntfy     Notifier
	Telegram Notifier
	AMQP     Notifier
	log      *zap.Logger
}

func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{log: log}
}

func (r *Router) route(channel string) (Notifier, string) {
	switch {
	case strings.HasPrefix(channel, "telegram:"):
		return r.Telegram, "telegram"
	case strings.HasPrefix(channel, "amqp:"):
		return r.AMQP, "amqp"
	case strings.HasPrefix(channel, "http://"), strings.HasPrefix(channel, "https://"):
		return r.Ntfy, "ntfy"
	}
	return nil, "unknown"
}

// Notify sends once. Failures are logged and returned, never retried.
func (r *Router) Notify(ctx context.Context, n Notification) error {
	if n.Product == nil || n.Kind == decision.None {
		return ErrEmpty
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}

	backend, name := r.route(n.Channel)
	log := r.log.With(
		zap.String("backend", name),
		zap.String("kind", n.Kind.String()),
		zap.String("identifier", n.Product.Identifier),
	)
	if backend == nil {
		metrics.Notifications.WithLabelValues(n.Kind.String(), "unrouted").Inc()
		log.Error("no notifier configured", zap.String("channel", n.Channel))
		return fmt.Errorf("%w: %q", ErrNoRoute, n.Channel)
	}

	if err := backend.Notify(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues(n.Kind.String(), "failed").Inc()
		log.Error("notification failed", zap.Error(err))
		return err
	}
	metrics.Notifications.WithLabelValues(n.Kind.String(), "sent").Inc()
	log.Info("notification sent")
	return nil
}
