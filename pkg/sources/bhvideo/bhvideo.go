package bhvideo

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
	Source  = "bhvideo"
	BaseURL = "https://www.bhphotovideo.com/c/product/"
	Logo    = "https://static.bhphoto.com/images/bh-logo.svg"
)

// Availability codes that B&H still sells through.
var inStockCodes = []string{"InStock", "LimitedAvailability", "OnlineOnly", "BackOrder"}

// ProductURL accepts a full product URL or the path after /c/product/,
// e.g. "1920305-REG/lenovo_83n0000aus_legion_go_2_handheld.html".
func ProductURL(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("empty identifier")
	}
	if strings.HasPrefix(identifier, "http://") || strings.HasPrefix(identifier, "https://") {
		u, err := url.Parse(identifier)
		if err != nil {
			return "", fmt.Errorf("invalid product url: %w", err)
		}
		if !strings.HasSuffix(u.Hostname(), "bhphotovideo.com") {
			return "", fmt.Errorf("not a bhphotovideo.com url: %s", u.Hostname())
		}
		return u.String(), nil
	}
	return BaseURL + strings.TrimPrefix(identifier, "/"), nil
}

func Profile() rendered.Profile {
	return rendered.Profile{
		Name:            Source,
		Retailer:        "B&H Photo Video",
		Logo:            Logo,
		URL:             ProductURL,
		InStockCodes:    inStockCodes,
		PricingSelector: `[data-selenium="pricingContainer"]`,
		WindowSize:      2000,

		RequirePricingBlock: true,
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
