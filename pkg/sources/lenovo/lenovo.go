package lenovo

import (
	"fmt"
	"net/url"
	"strings"

	"deal-watch/pkg/browser"
	"deal-watch/pkg/sources"
	"deal-watch/pkg/sources/rendered"

	"go.uber.org/zap"
)

const (
	Source  = "lenovo"
	BaseURL = "https://www.lenovo.com/us/en/p/"
	Logo    = "https://www.lenovo.com/_ui/desktop/common/images/lenovo-logo.svg"
)

var inStockCodes = []string{"InStock", "LimitedAvailability"}

// ProductURL accepts a full lenovo.com URL or the path after /us/en/p/,
// e.g. "handheld/legion-go-gen-2/83n0000aus".
func ProductURL(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("empty identifier")
	}
	if !strings.Contains(identifier, "://") {
		return BaseURL + strings.TrimPrefix(identifier, "/"), nil
	}
	u, err := url.Parse(identifier)
	if err != nil {
		return "", fmt.Errorf("invalid product url: %w", err)
	}
	if !strings.HasSuffix(u.Hostname(), "lenovo.com") {
		return "", fmt.Errorf("not a lenovo.com url: %s", u.Hostname())
	}
	return u.String(), nil
}

// Profile scans the first 1000 characters of <main>: the product block sits
// near the top, and further down the page lists other products' prices.
func Profile() rendered.Profile {
	return rendered.Profile{
		Name:         Source,
		Retailer:     "Lenovo",
		Logo:         Logo,
		URL:          ProductURL,
		InStockCodes: inStockCodes,
		WindowSize:   1000,
	}
}

func Definition(renderer browser.Renderer, opts rendered.Options, retry sources.RetryPolicy) sources.Definition {
	return sources.Definition{
		Name: Source,
		New: func(log *zap.Logger) sources.Source {
			return sources.Bind[*rendered.Page](rendered.New(Profile(), renderer, opts, log), log, retry)
		},
	}
}
