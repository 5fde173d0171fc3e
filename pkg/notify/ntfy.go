package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deal-watch/pkg/decision"

	"golang.org/x/time/rate"
)

const ntfyTimeout = 15 * time.Second

// Ntfy posts markdown bodies to a topic URL.
type Ntfy struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewNtfy allows perSecond publishes per second. Zero disables limiting.
func NewNtfy(client *http.Client, perSecond float64) *Ntfy {
	if client == nil {
		client = &http.Client{Timeout: ntfyTimeout}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &Ntfy{client: client, limiter: lim}
}

func priority(k decision.Kind) string {
	if k == decision.OnSaleBelowCeiling {
		return "high"
	}
	return "default"
}

func (s *Ntfy) Notify(ctx context.Context, n Notification) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Channel, strings.NewReader(Body(n)))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Title", Title(n))
	req.Header.Set("Priority", priority(n.Kind))
	req.Header.Set("Tags", "loudspeaker")
	req.Header.Set("Markdown", "yes")
	if n.Product.URL != "" {
		req.Header.Set("Click", n.Product.URL)
	}
	if n.Product.RetailerLogo != "" {
		req.Header.Set("Icon", n.Product.RetailerLogo)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
