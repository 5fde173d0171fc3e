package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
env: local
watchlist:
  - name: legion go 2
    max_price: 999.99
    identifiers:
      - source: lenovo
        id: https://www.lenovo.com/us/en/p/handheld/legion-go-2/83n1
      - source: amazon
        id: B0G573TMZS
  - name: airpods
    channel: telegram:123
    identifiers:
      - source: bestbuy
        id: "6447382"
`

func TestLoad(t *testing.T) {
	t.Setenv("NTFY_TOPIC_URL", "https://ntfy.sh/deals")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Retry.MaxAttempts != 10 || cfg.Retry.BaseDelay != 2 {
		t.Errorf("retry defaults not applied: %+v", cfg.Retry)
	}
	if cfg.Cache.Path != ":memory:" || cfg.Log.SendTimeout != 50*time.Millisecond {
		t.Errorf("defaults not applied: %+v %+v", cfg.Cache, cfg.Log)
	}

	entries := cfg.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].MaxPrice == nil || !entries[0].MaxPrice.Equal(decimal.RequireFromString("999.99")) {
		t.Errorf("max price = %v", entries[0].MaxPrice)
	}
	if entries[0].Identifiers[1].Source != "amazon" {
		t.Errorf("identifier order lost: %+v", entries[0].Identifiers)
	}
	if entries[0].Channel != "https://ntfy.sh/deals" {
		t.Errorf("default channel not applied: %q", entries[0].Channel)
	}
	if entries[1].Channel != "telegram:123" || entries[1].MaxPrice != nil {
		t.Errorf("second entry %+v", entries[1])
	}
}

func TestLoad_InvalidWatchlist(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "duplicate source",
			body: `
watchlist:
  - identifiers:
      - {source: amazon, id: A}
      - {source: amazon, id: B}
`,
		},
		{
			name: "negative ceiling",
			body: `
watchlist:
  - max_price: -1
    identifiers:
      - {source: amazon, id: A}
`,
		},
		{
			name: "no identifiers",
			body: `
watchlist:
  - name: empty
`,
		},
		{
			name: "blank id",
			body: `
watchlist:
  - identifiers:
      - {source: bestbuy, id: ""}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), "invalid watchlist") {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoad_BadRetry(t *testing.T) {
	_, err := Load(writeConfig(t, "retry:\n  base_delay: 0.5\n"))
	if err == nil {
		t.Fatal("expected error for base_delay below 1")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
