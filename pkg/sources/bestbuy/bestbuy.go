package bestbuy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deal-watch/pkg/models"
	"deal-watch/pkg/sources"

	"github.com/gocolly/colly/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	Source  = "bestbuy"
	BaseURL = "https://api.bestbuy.com/v1/products/"
	Logo    = "https://corporate.bestbuy.com/wp-content/uploads/thegem-logos/logo_0717ce843a2125d21ef450e7f05f352e_1x.png"
)

// Fields is the projection requested from the products endpoint.
var Fields = []string{"sku", "orderable", "name", "onSale", "regularPrice", "salePrice", "url"}

type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type Response struct {
	StatusCode int
	Body       []byte
}

type product struct {
	SKU          json.Number      `json:"sku"`
	Orderable    string           `json:"orderable"`
	Name         *string          `json:"name"`
	OnSale       bool             `json:"onSale"`
	RegularPrice *decimal.Decimal `json:"regularPrice"`
	SalePrice    *decimal.Decimal `json:"salePrice"`
	URL          string           `json:"url"`

	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type Scraper struct {
	Collector *colly.Collector
	cfg       Config
	log       *zap.Logger
}

func NewScraper(cfg Config, log *zap.Logger) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"),
		colly.AllowURLRevisit(),
	)
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(cfg.Timeout)

	if cfg.RequestsPerSecond > 0 {
		delay := time.Duration(float64(time.Second) / cfg.RequestsPerSecond)
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: delay}); err != nil {
			log.Warn("invalid rate limit rule", zap.Error(err))
		}
	}

	return &Scraper{Collector: c, cfg: cfg, log: log}
}

func (s *Scraper) Name() string {
	return Source
}

func (s *Scraper) productURL(identifier string) string {
	q := url.Values{}
	q.Set("show", strings.Join(Fields, ","))
	q.Set("apiKey", s.cfg.APIKey)
	return fmt.Sprintf("%s%s.json?%s", s.cfg.BaseURL, url.PathEscape(identifier), q.Encode())
}

// FetchRaw issues one GET. Callbacks are registered on a clone so concurrent
// fetches never see each other's responses.
func (s *Scraper) FetchRaw(ctx context.Context, identifier string) (*Response, error) {
	c := s.Collector.Clone()
	c.Context = ctx

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json, text/plain, */*")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Referer", "https://www.bestbuy.com/")
		r.Headers.Set("Origin", "https://www.bestbuy.com")
	})

	var res *Response
	c.OnResponse(func(r *colly.Response) {
		res = &Response{StatusCode: r.StatusCode, Body: r.Body}
	})

	s.log.Debug("GET product", zap.String("sku", identifier), zap.String("url", s.cfg.BaseURL))

	if err := c.Visit(s.productURL(identifier)); err != nil {
		return nil, fmt.Errorf("bestbuy request: %w", err)
	}
	if res == nil {
		return nil, errors.New("bestbuy request: no response")
	}
	return res, nil
}

// Check reads the status and any errorCode in the body. Rate limiting shows
// up as 403/429 with an errorCode; an unknown SKU as 404 or 400.
func (s *Scraper) Check(res *Response) error {
	var body product
	_ = json.Unmarshal(res.Body, &body)

	switch {
	case res.StatusCode == http.StatusNotFound, res.StatusCode == http.StatusBadRequest, body.ErrorCode == "404":
		return sources.NotFound(fmt.Errorf("bestbuy %d: %s", res.StatusCode, body.ErrorMessage))
	case res.StatusCode == http.StatusUnauthorized:
		return sources.Fatal(fmt.Errorf("bestbuy rejected api key: %s", body.ErrorMessage))
	case body.ErrorCode != "":
		return sources.Transient(fmt.Errorf("bestbuy error %s: %s", body.ErrorCode, body.ErrorMessage))
	case res.StatusCode >= 300:
		return sources.Transient(fmt.Errorf("bestbuy status %d", res.StatusCode))
	}
	return nil
}

func (s *Scraper) Parse(res *Response) (*models.Product, error) {
	var p product
	if err := json.Unmarshal(res.Body, &p); err != nil {
		return nil, &sources.ParseError{Source: Source, Err: err}
	}

	switch {
	case p.SKU == "":
		return nil, &sources.ParseError{Source: Source, Field: "sku", Err: errors.New("missing")}
	case p.Name == nil:
		return nil, &sources.ParseError{Source: Source, Field: "name", Err: errors.New("missing")}
	case p.RegularPrice == nil:
		return nil, &sources.ParseError{Source: Source, Field: "regularPrice", Err: errors.New("missing")}
	case p.SalePrice == nil:
		return nil, &sources.ParseError{Source: Source, Field: "salePrice", Err: errors.New("missing")}
	case p.RegularPrice.IsNegative():
		return nil, &sources.ParseError{Source: Source, Field: "regularPrice", Err: fmt.Errorf("negative price %s", p.RegularPrice)}
	case p.SalePrice.IsNegative():
		return nil, &sources.ParseError{Source: Source, Field: "salePrice", Err: fmt.Errorf("negative price %s", p.SalePrice)}
	}

	sale, regular, onSale := *p.SalePrice, *p.RegularPrice, p.OnSale
	if onSale && sale.GreaterThan(regular) {
		s.log.Warn("sale price above regular price, ignoring sale flag",
			zap.String("sku", p.SKU.String()), zap.Stringer("sale", sale), zap.Stringer("regular", regular))
		onSale = false
	}
	if !onSale {
		sale = regular
	}

	return &models.Product{
		Identifier:   p.SKU.String(),
		Name:         models.TruncateName(*p.Name, models.NameWords),
		InStock:      p.Orderable == "Available",
		OnSale:       onSale,
		SalePrice:    sale,
		RegularPrice: regular,
		URL:          p.URL,
		Retailer:     "BestBuy",
		RetailerLogo: Logo,
	}, nil
}

func Definition(cfg Config, retry sources.RetryPolicy) sources.Definition {
	return sources.Definition{
		Name: Source,
		New: func(log *zap.Logger) sources.Source {
			return sources.Bind[*Response](NewScraper(cfg, log), log, retry)
		},
	}
}
