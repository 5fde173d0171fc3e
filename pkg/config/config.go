package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"reflect"
	"time"

	"deal-watch/pkg/models"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const DefaultPath = "./config/config.yaml"

type Config struct {
	Env       string                  `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel  string                  `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Log       Log                     `yaml:"log"`
	Retry     Retry                   `yaml:"retry"`
	Cache     Cache                   `yaml:"cache"`
	HTTP      HTTPServer              `yaml:"http_server"`
	BestBuy   BestBuy                 `yaml:"bestbuy"`
	Amazon    Amazon                  `yaml:"amazon"`
	Browser   Browser                 `yaml:"browser"`
	Notify    Notify                  `yaml:"notify"`
	Watchlist []models.WatchlistEntry `yaml:"watchlist" validate:"dive"`
}

type Log struct {
	Buffer      int           `yaml:"buffer" env:"LOG_BUFFER" env-default:"1024"`
	SendTimeout time.Duration `yaml:"send_timeout" env:"LOG_SEND_TIMEOUT" env-default:"50ms"`
	DedupDelay  time.Duration `yaml:"dedup_delay" env:"LOG_DEDUP_DELAY" env-default:"2s"`
}

type Retry struct {
	MaxAttempts int     `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"10"`
	BaseDelay   float64 `yaml:"base_delay" env:"RETRY_BASE_DELAY" env-default:"2"`
}

type Cache struct {
	Path string        `yaml:"path" env:"CACHE_DB_PATH" env-default:":memory:"`
	TTL  time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"10m"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":9090"`
	Timeout     time.Duration `yaml:"timeout" env-default:"15s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"120s"`
}

type BestBuy struct {
	APIKey            string        `yaml:"api_key" env:"BESTBUY_API"`
	BaseURL           string        `yaml:"base_url" env:"BESTBUY_BASE_URL"`
	Timeout           time.Duration `yaml:"timeout" env-default:"30s"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env-default:"5"`
}

type Amazon struct {
	Command []string      `yaml:"command"`
	Flags   []string      `yaml:"flags"`
	Timeout time.Duration `yaml:"timeout" env-default:"90s"`

	// Disabled skips registration, e.g. where node is not installed.
	Disabled bool `yaml:"disabled" env:"AMAZON_DISABLED"`
}

type Browser struct {
	ChromePath  string        `yaml:"chrome_path" env:"CHROME_PATH"`
	ProfileDir  string        `yaml:"profile_dir" env:"BROWSER_PROFILE_DIR" env-default:"./data/browser"`
	DebugDir    string        `yaml:"debug_dir" env:"BROWSER_DEBUG_DIR"`
	SettleDelay time.Duration `yaml:"settle_delay" env-default:"8s"`
	PageTimeout time.Duration `yaml:"page_timeout" env-default:"90s"`

	// HeadlessOnly turns off the headed escalation pass.
	HeadlessOnly bool `yaml:"headless_only" env:"BROWSER_HEADLESS_ONLY"`
	Disabled     bool `yaml:"disabled" env:"BROWSER_DISABLED"`
}

type Notify struct {
	DefaultTopic       string  `yaml:"default_topic" env:"NTFY_TOPIC_URL"`
	TelegramToken      string  `yaml:"telegram_token" env:"TELEGRAM_BOT_TOKEN"`
	AMQPURL            string  `yaml:"amqp_url" env:"AMQP_URL"`
	PublishesPerSecond float64 `yaml:"publishes_per_second" env-default:"1"`
}

// Load reads .env (if present), then the YAML file with environment
// overrides, then validates the watchlist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	return cfg
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 1 {
		return fmt.Errorf("retry.base_delay must be at least 1, got %v", c.Retry.BaseDelay)
	}
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid watchlist: %w", err)
	}
	return nil
}

// Entries returns the watchlist with the default topic filled in for entries
// that name no channel.
func (c *Config) Entries() []models.WatchlistEntry {
	out := make([]models.WatchlistEntry, len(c.Watchlist))
	for i, e := range c.Watchlist {
		if e.Channel == "" {
			e.Channel = c.Notify.DefaultTopic
		}
		out[i] = e
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}
