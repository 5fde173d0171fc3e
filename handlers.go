package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"deal-watch/pkg/api"
	"deal-watch/pkg/models"
	"deal-watch/pkg/sources"

	scalargo "github.com/bdpiprava/scalar-go"
	"go.uber.org/zap"
)

const pathHelp = "Invalid path. Expected /sources/{source}/products/{id} or /sources/{source}/products/batch"

func rootHandler(w http.ResponseWriter, r *http.Request) {
	// API requests go to product handler
	if strings.HasPrefix(r.URL.Path, "/sources/") || r.URL.Path == "/sources" {
		productHandler(w, r)
		return
	}

	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Deal Watch API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

// productHandler serves /sources/{source}/products/{id}. The id is
// path-escaped so product URLs can be used as identifiers.
func productHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.EscapedPath(), "/")
	// parts[0] = ""
	// parts[1] = "sources"
	// parts[2] = {source}
	// parts[3] = "products"
	// parts[4:] = {id} or "batch"

	if len(parts) < 5 || parts[3] != "products" || parts[4] == "" {
		api.WriteBadRequest(w, pathHelp, r.URL.Path)
		return
	}

	name := strings.ToLower(parts[2])
	rawID, err := url.PathUnescape(strings.Join(parts[4:], "/"))
	if err != nil {
		api.WriteBadRequest(w, fmt.Sprintf("Invalid product id: %v", err), r.URL.Path)
		return
	}

	src, err := registry.Get(name)
	if err != nil {
		api.WriteBadRequest(w, "Source not supported. Available: "+strings.Join(registry.Names(), ", "), r.URL.Path)
		return
	}

	if rawID == "batch" {
		if r.Method != http.MethodPost {
			api.WriteBadRequest(w, "Method not allowed for batch endpoint. Use POST.", r.URL.Path)
			return
		}
		handleBatchProducts(w, r, src)
		return
	}

	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET for single product.", r.URL.Path)
		return
	}

	identifier := strings.TrimSpace(rawID)
	if identifier == "" {
		api.WriteBadRequest(w, "Product id must not be empty.", r.URL.Path)
		return
	}

	// Acquire semaphore to prevent system overload
	scraperSemaphore <- struct{}{}
	defer func() { <-scraperSemaphore }()

	product, err := getProduct(r.Context(), src, identifier)
	if err != nil {
		appLog.Warn("lookup failed", zap.String("source", name), zap.String("identifier", identifier), zap.Error(err))
		api.WriteFetchError(w, err, r.URL.Path)
		return
	}

	writeJSON(w, r, product)
}

func getProduct(ctx context.Context, src sources.Source, identifier string) (*models.Product, error) {
	if productCache != nil {
		if cached, ok := productCache.Get(ctx, src.Name(), identifier); ok {
			appLog.Debug("cache hit", zap.String("source", src.Name()), zap.String("identifier", identifier))
			return cached, nil
		}
	}

	product, err := src.Lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if productCache != nil {
		productCache.Set(ctx, src.Name(), identifier, product)
	}
	return product, nil
}

type batchItem struct {
	Identifier string              `json:"identifier"`
	Product    *models.Product     `json:"product,omitempty"`
	Error      *api.ProblemDetails `json:"error,omitempty"`
}

func handleBatchProducts(w http.ResponseWriter, r *http.Request, src sources.Source) {
	defer r.Body.Close()

	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected array of product ids.", r.URL.Path)
		return
	}

	items := make([]batchItem, 0, len(ids))
	for _, id := range ids {
		item := batchItem{Identifier: id}
		id = strings.TrimSpace(id)
		if id == "" {
			item.Error = &api.ProblemDetails{Type: "about:blank", Title: "Bad Request", Status: http.StatusBadRequest, Detail: "empty product id"}
			items = append(items, item)
			continue
		}

		scraperSemaphore <- struct{}{}
		product, err := getProduct(r.Context(), src, id)
		<-scraperSemaphore

		if err != nil {
			status, title := api.FetchStatus(err)
			item.Error = &api.ProblemDetails{Type: "about:blank", Title: title, Status: status, Detail: err.Error()}
		} else {
			item.Product = product
		}
		items = append(items, item)
	}

	writeJSON(w, r, items)
}

// writeJSON encodes before writing so a failure can still become a problem response.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		appLog.Error("encoding response", zap.String("path", r.URL.Path), zap.Error(err))
		api.WriteInternalServerError(w, fmt.Errorf("failed to encode response"), r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(append(body, '\n'))
}
