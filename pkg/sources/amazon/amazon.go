package amazon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"deal-watch/pkg/models"
	"deal-watch/pkg/sources"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	Source = "amazon"
	Logo   = "https://upload.wikimedia.org/wikipedia/commons/4/41/Amazon_PNG6.png"
)

// DefaultCommand runs amazon-buddy; the ASIN is inserted after "asin".
var DefaultCommand = []string{"node", "node_modules/amazon-buddy/bin/cli.js", "asin"}

// DefaultFlags follow the identifier.
var DefaultFlags = []string{"--random-ua"}

// Runner executes one external command and captures its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

type Config struct {
	Command []string
	Flags   []string
	Timeout time.Duration
}

type Output struct {
	Identifier string
	Stdout     string
	Stderr     string
	Err        error
}

type price struct {
	Discounted   bool             `json:"discounted"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
	BeforePrice  *decimal.Decimal `json:"before_price"`
}

type product struct {
	ASIN          string `json:"asin"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	ItemAvailable bool   `json:"item_available"`
	Price         *price `json:"price"`
}

type Scraper struct {
	cfg    Config
	runner Runner
	log    *zap.Logger
}

func NewScraper(cfg Config, runner Runner, log *zap.Logger) *Scraper {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCommand
	}
	if cfg.Flags == nil {
		cfg.Flags = DefaultFlags
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Scraper{cfg: cfg, runner: runner, log: log}
}

func (s *Scraper) Name() string {
	return Source
}

func (s *Scraper) args(identifier string) []string {
	args := append([]string{}, s.cfg.Command[1:]...)
	args = append(args, identifier)
	return append(args, s.cfg.Flags...)
}

// FetchRaw runs the tool once. A non-zero exit is reported inside Output so
// Check can classify it together with stderr.
func (s *Scraper) FetchRaw(ctx context.Context, identifier string) (*Output, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	args := s.args(identifier)
	s.log.Debug("running scraper tool", zap.String("cmd", s.cfg.Command[0]+" "+strings.Join(args, " ")))

	stdout, stderr, err := s.runner.Run(runCtx, s.cfg.Command[0], args...)
	if errors.Is(err, exec.ErrNotFound) {
		return nil, sources.Fatal(fmt.Errorf("scraper tool not installed: %w", err))
	}
	return &Output{Identifier: identifier, Stdout: string(stdout), Stderr: string(stderr), Err: err}, nil
}

func (s *Scraper) Check(out *Output) error {
	stdout := strings.TrimSpace(out.Stdout)
	switch {
	case strings.TrimSpace(out.Stderr) != "":
		return sources.Transient(fmt.Errorf("tool stderr: %s", firstLine(out.Stderr)))
	case strings.HasPrefix(stdout, "Error:") && strings.Contains(strings.ToLower(stdout), "not found"):
		return sources.NotFound(fmt.Errorf("tool: %s", firstLine(stdout)))
	case strings.HasPrefix(stdout, "Error:"):
		return sources.Transient(fmt.Errorf("tool error: %s", firstLine(stdout)))
	case out.Err != nil:
		return sources.Transient(fmt.Errorf("tool failed: %w", out.Err))
	case stdout == "":
		return sources.Transient(errors.New("tool produced no output"))
	}
	return nil
}

// Parse accepts a bare product object, an array of them, or {"result": [...]}.
func (s *Scraper) Parse(out *Output) (*models.Product, error) {
	p, err := decode([]byte(strings.TrimSpace(out.Stdout)))
	if err != nil {
		return nil, &sources.ParseError{Source: Source, Err: err}
	}

	if p.Title == "" {
		return nil, &sources.ParseError{Source: Source, Field: "title", Err: errors.New("missing")}
	}
	if p.Price == nil || p.Price.CurrentPrice == nil {
		return nil, &sources.ParseError{Source: Source, Field: "price.current_price", Err: errors.New("missing")}
	}

	if p.Price.CurrentPrice.IsNegative() {
		return nil, &sources.ParseError{Source: Source, Field: "price.current_price", Err: fmt.Errorf("negative price %s", p.Price.CurrentPrice)}
	}

	var list *decimal.Decimal
	if p.Price.Discounted {
		list = p.Price.BeforePrice
		if list != nil && list.IsNegative() {
			return nil, &sources.ParseError{Source: Source, Field: "price.before_price", Err: fmt.Errorf("negative price %s", list)}
		}
	}
	sale, regular, onSale := models.NormalizePrices(*p.Price.CurrentPrice, list)

	identifier := p.ASIN
	if identifier == "" {
		identifier = out.Identifier
	}
	url := p.URL
	if url == "" {
		url = "https://www.amazon.com/dp/" + identifier
	}

	return &models.Product{
		Identifier:   identifier,
		Name:         models.TruncateName(p.Title, models.NameWords),
		InStock:      p.ItemAvailable,
		OnSale:       onSale,
		SalePrice:    sale,
		RegularPrice: regular,
		URL:          url,
		Retailer:     "Amazon",
		RetailerLogo: Logo,
	}, nil
}

func decode(data []byte) (*product, error) {
	if len(data) == 0 {
		return nil, errors.New("empty output")
	}

	switch data[0] {
	case '[':
		var list []product
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, errors.New("empty result list")
		}
		return &list[0], nil
	case '{':
		var wrapped struct {
			Result []product `json:"result"`
		}
		if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Result) > 0 {
			return &wrapped.Result[0], nil
		}
		var p product
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
	return nil, fmt.Errorf("unexpected output %q", firstLine(string(data)))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func Definition(cfg Config, runner Runner, retry sources.RetryPolicy) sources.Definition {
	return sources.Definition{
		Name: Source,
		New: func(log *zap.Logger) sources.Source {
			return sources.Bind[*Output](NewScraper(cfg, runner, log), log, retry)
		},
	}
}
