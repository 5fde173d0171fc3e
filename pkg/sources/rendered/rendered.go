// Package rendered implements the shared half of sources whose pages only
// make sense after a browser has run their JavaScript.
package rendered

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deal-watch/pkg/browser"
	"deal-watch/pkg/models"
	"deal-watch/pkg/scan"
	"deal-watch/pkg/sources"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultStrategy is the list-price chain used unless a profile overrides it.
var DefaultStrategy = scan.Chain(scan.LabeledPrice, scan.HighestAmount, scan.EstValue, scan.PercentOff)

// Profile describes one retailer's page.
type Profile struct {
	Name     string
	Retailer string
	Logo     string

	// URL turns an identifier into the page to render.
	URL func(identifier string) (string, error)

	// InStockCodes are schema.org availability codes that count as in stock.
	InStockCodes []string

	// PricingSelector is handed to the extraction script. When the page has
	// it, its text becomes the scan window.
	PricingSelector string

	// WindowSize bounds how much of the main text is scanned when no pricing
	// block was captured.
	WindowSize int

	// RequirePricingBlock disables the list-price scan when the pricing block
	// is missing. Stock phrases are still checked against the main text.
	RequirePricingBlock bool

	Strategy scan.Strategy
}

type Page struct {
	Identifier string
	URL        string
	HTML       string
}

type Adapter struct {
	profile  Profile
	renderer browser.Renderer
	script   string
	timeout  time.Duration
	log      *zap.Logger
}

type Options struct {
	SettleDelay time.Duration
	PageTimeout time.Duration
}

func New(profile Profile, renderer browser.Renderer, opts Options, log *zap.Logger) *Adapter {
	if profile.Strategy == nil {
		profile.Strategy = DefaultStrategy
	}
	if profile.WindowSize <= 0 {
		profile.WindowSize = 1000
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 60 * time.Second
	}
	return &Adapter{
		profile:  profile,
		renderer: renderer,
		script: browser.ExtractionScript(browser.ScriptOptions{
			SettleDelay:     opts.SettleDelay,
			PricingSelector: profile.PricingSelector,
		}),
		timeout: opts.PageTimeout,
		log:     log,
	}
}

func (a *Adapter) Name() string {
	return a.profile.Name
}

func (a *Adapter) FetchRaw(ctx context.Context, identifier string) (*Page, error) {
	url, err := a.profile.URL(identifier)
	if err != nil {
		return nil, sources.NotFound(err)
	}

	a.log.Debug("rendering page", zap.String("url", url))

	html, err := a.renderer.Render(ctx, browser.Request{URL: url, Script: a.script, Timeout: a.timeout})
	if errors.Is(err, browser.ErrNoBrowser) {
		return nil, sources.Fatal(err)
	}
	if err != nil {
		return nil, sources.Transient(err)
	}
	return &Page{Identifier: identifier, URL: url, HTML: html}, nil
}

// Check treats a page without product markup as a bot challenge.
func (a *Adapter) Check(page *Page) error {
	if !browser.HasProductMarkup(page.HTML) {
		return sources.Transient(browser.ErrBlocked)
	}
	return nil
}

func (a *Adapter) Parse(page *Page) (*models.Product, error) {
	payload, err := browser.DecodePayload(page.HTML)
	if err != nil {
		return nil, &sources.ParseError{Source: a.profile.Name, Field: "payload", Err: err}
	}

	raw := payload.PriceString()
	if raw == "" {
		return nil, &sources.ParseError{Source: a.profile.Name, Field: "price", Err: errors.New("no price in JSON-LD")}
	}
	current, ok := scan.ParsePrice(raw)
	if !ok {
		return nil, &sources.ParseError{Source: a.profile.Name, Field: "price", Err: fmt.Errorf("unparseable price %q", raw)}
	}

	window := a.window(payload)

	var list *decimal.Decimal
	if a.scansPrice(payload) {
		if v, ok := a.profile.Strategy(window, current); ok {
			list = &v
		}
	}
	sale, regular, onSale := models.NormalizePrices(current, list)

	inStock := scan.InStockCode(payload.Availability, a.profile.InStockCodes) &&
		!scan.HasNegativeAvailability(window)

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return nil, &sources.ParseError{Source: a.profile.Name, Field: "name", Err: errors.New("no name in JSON-LD")}
	}

	return &models.Product{
		Identifier:   page.Identifier,
		Name:         models.TruncateName(name, models.NameWords),
		InStock:      inStock,
		OnSale:       onSale,
		SalePrice:    sale,
		RegularPrice: regular,
		URL:          page.URL,
		Retailer:     a.profile.Retailer,
		RetailerLogo: a.profile.Logo,
	}, nil
}

func (a *Adapter) window(p *browser.Payload) string {
	if hasPricingBlock(p) {
		return scan.Window(p.PricingText, a.profile.WindowSize)
	}
	return scan.Window(p.MainText, a.profile.WindowSize)
}

func (a *Adapter) scansPrice(p *browser.Payload) bool {
	return hasPricingBlock(p) || !a.profile.RequirePricingBlock
}

func hasPricingBlock(p *browser.Payload) bool {
	return strings.TrimSpace(p.PricingText) != ""
}

// Passes builds the usual headless-then-headed escalation.
func Passes(opts browser.Options, headedFallback bool, log *zap.Logger) browser.Renderer {
	passes := []browser.Pass{{Name: "headless", Renderer: browser.NewChrome(opts, log)}}
	if headedFallback {
		passes = append(passes, browser.Pass{Name: "headed", Renderer: browser.NewUndetected(opts, log)})
	}
	return browser.Escalate(log, passes...)
}
