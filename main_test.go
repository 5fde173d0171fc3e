package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deal-watch/pkg/api"
	"deal-watch/pkg/config"
	"deal-watch/pkg/models"
	"deal-watch/pkg/sources"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubSource struct {
	seen []string
}

func (s *stubSource) Name() string { return "amazon" }

func (s *stubSource) FetchProduct(ctx context.Context, id string) (*models.Product, bool) {
	p, err := s.Lookup(ctx, id)
	return p, err == nil
}

func (s *stubSource) Lookup(_ context.Context, id string) (*models.Product, error) {
	s.seen = append(s.seen, id)
	if id == "missing" {
		return nil, sources.NotFound(errors.New("no such asin"))
	}
	price := decimal.RequireFromString("1049.99")
	return &models.Product{Identifier: id, Name: "Legion Go 2", InStock: true, SalePrice: price, RegularPrice: price}, nil
}

func setupRegistry(t *testing.T) *stubSource {
	t.Helper()
	stub := &stubSource{}
	registry = sources.NewRegistry(zap.NewNop())
	registry.Register(sources.Definition{Name: "amazon", New: func(*zap.Logger) sources.Source { return stub }})
	productCache = nil
	return stub
}

func TestProductHandler_Problems(t *testing.T) {
	setupRegistry(t)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "Invalid Path - Missing parts",
			path:           "/sources",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid path. Expected /sources/{source}/products/{id}",
		},
		{
			name:           "Invalid Path - Wrong keyword",
			path:           "/sources/amazon/items/123",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid path. Expected /sources/{source}/products/{id}",
		},
		{
			name:           "Unsupported Source",
			path:           "/sources/walmart/products/123",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Source not supported. Available: amazon",
		},
		{
			name:           "Not Found",
			path:           "/sources/amazon/products/missing",
			expectedStatus: http.StatusNotFound,
			expectedDetail: "product not found",
		},
		{
			name:           "Batch requires POST",
			path:           "/sources/amazon/products/batch",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Use POST",
		},
		{
			name:           "Single requires GET",
			method:         http.MethodPost,
			path:           "/sources/amazon/products/B0G573TMZS",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Use GET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, err := http.NewRequest(method, tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}

			rr := httptest.NewRecorder()
			http.HandlerFunc(rootHandler).ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", status, tt.expectedStatus)
			}

			expectedContentType := "application/problem+json"
			if contentType := rr.Header().Get("Content-Type"); contentType != expectedContentType {
				t.Errorf("handler returned wrong content type: got %v want %v", contentType, expectedContentType)
			}

			var pd api.ProblemDetails
			if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
				t.Fatalf("handler returned invalid JSON: %v. Body: %s", err, rr.Body.String())
			}
			if pd.Status != tt.expectedStatus {
				t.Errorf("JSON status mismatch: got %v want %v", pd.Status, tt.expectedStatus)
			}
			if pd.Type != "about:blank" {
				t.Errorf("JSON type mismatch: got %v", pd.Type)
			}
			if !strings.Contains(pd.Detail, tt.expectedDetail) {
				t.Errorf("JSON detail mismatch: got %q, want substring %q", pd.Detail, tt.expectedDetail)
			}
			if pd.Instance != tt.path {
				t.Errorf("JSON instance mismatch: got %v want %v", pd.Instance, tt.path)
			}
		})
	}
}

func TestProductHandler_EscapedURLIdentifier(t *testing.T) {
	stub := setupRegistry(t)

	req := httptest.NewRequest(http.MethodGet, "/sources/amazon/products/https%3A%2F%2Fwww.amazon.com%2Fdp%2FB0G573TMZS", nil)
	rr := httptest.NewRecorder()
	rootHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if len(stub.seen) != 1 || stub.seen[0] != "https://www.amazon.com/dp/B0G573TMZS" {
		t.Errorf("identifier not unescaped: %v", stub.seen)
	}

	var p models.Product
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "Legion Go 2" || !p.RegularPrice.Equal(decimal.RequireFromString("1049.99")) {
		t.Errorf("unexpected product %+v", p)
	}
}

func TestHandleBatchProducts(t *testing.T) {
	setupRegistry(t)

	req := httptest.NewRequest(http.MethodPost, "/sources/amazon/products/batch", strings.NewReader(`["B0G573TMZS", "missing", " "]`))
	rr := httptest.NewRecorder()
	rootHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}

	var items []batchItem
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Product == nil || items[0].Error != nil {
		t.Errorf("first item %+v", items[0])
	}
	if items[1].Error == nil || items[1].Error.Status != http.StatusNotFound {
		t.Errorf("second item %+v", items[1])
	}
	if items[2].Error == nil || items[2].Error.Status != http.StatusBadRequest {
		t.Errorf("third item %+v", items[2])
	}
}

func TestHandleBatchProducts_InvalidBody(t *testing.T) {
	setupRegistry(t)

	req := httptest.NewRequest(http.MethodPost, "/sources/amazon/products/batch", strings.NewReader(`{"barcode": 1}`))
	rr := httptest.NewRecorder()
	rootHandler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status %d", rr.Code)
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sources/amazon/products/B0G573TMZS", nil)
	rr := httptest.NewRecorder()
	writeJSON(rr, req, map[string]float64{"price": math.Inf(1)})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type %q", ct)
	}

	var pd api.ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
		t.Fatalf("invalid problem JSON: %v", err)
	}
	if pd.Detail != "failed to encode response" || pd.Instance != req.URL.Path {
		t.Errorf("unexpected problem %+v", pd)
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := &config.Config{}
	cfg.Retry.MaxAttempts = 10
	cfg.Retry.BaseDelay = 2
	cfg.Amazon.Disabled = true
	cfg.Browser.Disabled = true

	if reg := buildRegistry(cfg, zap.NewNop()); reg.Len() != 0 {
		t.Fatalf("expected no sources, got %v", reg.Names())
	}

	cfg.BestBuy.APIKey = "key"
	cfg.Amazon.Disabled = false
	cfg.Browser.Disabled = false
	cfg.Browser.ProfileDir = t.TempDir()

	reg := buildRegistry(cfg, zap.NewNop())
	want := []string{"amazon", "bestbuy", "bhvideo", "lenovo"}
	got := reg.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestBrowserOptions_PerSourceProfile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Browser.ProfileDir = "/var/lib/deal-watch"

	if got := browserOptions(cfg, "lenovo").ProfileDir; got != "/var/lib/deal-watch/lenovo" {
		t.Errorf("ProfileDir = %q", got)
	}
	cfg.Browser.ProfileDir = ""
	if got := browserOptions(cfg, "lenovo").ProfileDir; got != "" {
		t.Errorf("expected no profile, got %q", got)
	}
}
