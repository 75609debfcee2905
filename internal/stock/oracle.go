// Package stock implements the stock oracle client: the cached read path
// to authoritative inventory counts on the catalog service.
//
// The oracle is purely an information source. It never mutates a
// collection, and a failed fetch is reported as "no information" rather
// than an error so callers cannot mistake an outage for an out-of-stock
// product.
package stock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"shopsync/internal/model"
	"shopsync/internal/transport"
)

// DefaultTTL bounds how long a cached snapshot is served before the next
// read triggers a fresh fetch.
const DefaultTTL = 30 * time.Second

// Config holds oracle client configuration.
type Config struct {
	// CatalogURL is the base URL of the catalog service.
	CatalogURL string

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration

	// APIKey, when set, is sent as X-Api-Key on every catalog request.
	APIKey string

	// HTTPClient overrides the default upstream client (used in tests).
	HTTPClient *http.Client
}

// Oracle fetches stock for one or many products with a short-lived local
// cache to bound request volume against the catalog service.
//
// Construct one instance at the composition root and inject it wherever
// stock information is needed; per-test instances keep tests isolated.
type Oracle struct {
	httpClient *http.Client
	catalogURL string
	apiKey     string
	ttl        time.Duration
	logger     *slog.Logger

	mu    sync.RWMutex
	cache map[string]model.StockSnapshot

	// now is stubbed in tests to step through TTL expiry.
	now func() time.Time
}

// New creates a stock oracle client.
func New(cfg Config, logger *slog.Logger) (*Oracle, error) {
	if cfg.CatalogURL == "" {
		return nil, fmt.Errorf("catalog URL is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewClient(15 * time.Second)
	}

	return &Oracle{
		httpClient: httpClient,
		catalogURL: strings.TrimSuffix(cfg.CatalogURL, "/"),
		apiKey:     cfg.APIKey,
		ttl:        ttl,
		logger:     logger,
		cache:      make(map[string]model.StockSnapshot),
		now:        time.Now,
	}, nil
}

// GetStock returns availability for a single product. A cached snapshot
// younger than the TTL is served without a network call. The second
// return value is false when no information is available (fetch failed
// and no fresh cache entry exists); callers must leave state untouched
// in that case.
func (o *Oracle) GetStock(ctx context.Context, productID string) (model.StockInfo, bool) {
	if snap, ok := o.cached(productID); ok {
		return snap.StockInfo, true
	}

	info, err := o.fetchOne(ctx, productID)
	if err != nil {
		o.logger.Warn("stock fetch failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return model.StockInfo{}, false
	}

	o.put(productID, info)
	return info, true
}

// GetStockBatch fetches availability for all given products in a single
// request and refreshes the cache for every returned entry. Products the
// catalog did not report are absent from the result; absence means "no
// information", never "out of stock". On fetch failure the result is
// empty for the same reason.
func (o *Oracle) GetStockBatch(ctx context.Context, productIDs []string) map[string]model.StockInfo {
	if len(productIDs) == 0 {
		return map[string]model.StockInfo{}
	}

	infos, err := o.fetchBatch(ctx, productIDs)
	if err != nil {
		o.logger.Warn("batch stock fetch failed",
			slog.Int("products", len(productIDs)),
			slog.String("error", err.Error()),
		)
		return map[string]model.StockInfo{}
	}

	for id, info := range infos {
		o.put(id, info)
	}
	return infos
}

// Invalidate drops the cached entry for one product, forcing the next
// read to refetch. Call immediately before an add to avoid acting on
// stale stock.
func (o *Oracle) Invalidate(productID string) {
	o.mu.Lock()
	delete(o.cache, productID)
	o.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (o *Oracle) InvalidateAll() {
	o.mu.Lock()
	o.cache = make(map[string]model.StockSnapshot)
	o.mu.Unlock()
}

// SetLocal records a locally observed stock level, e.g. after an order
// decrements inventory, so reads reflect it before the next fetch.
func (o *Oracle) SetLocal(productID string, stock int) {
	o.put(productID, model.StockInfo{Stock: stock, InStock: stock > 0})
}

func (o *Oracle) cached(productID string) (model.StockSnapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap, ok := o.cache[productID]
	if !ok || o.now().Sub(snap.FetchedAt) >= o.ttl {
		return model.StockSnapshot{}, false
	}
	return snap, true
}

func (o *Oracle) put(productID string, info model.StockInfo) {
	o.mu.Lock()
	o.cache[productID] = model.StockSnapshot{
		ProductID: productID,
		StockInfo: info,
		FetchedAt: o.now(),
	}
	o.mu.Unlock()
}

// authorize attaches the catalog API key when configured.
func (o *Oracle) authorize(req *http.Request) {
	if o.apiKey != "" {
		req.Header.Set("X-Api-Key", o.apiKey)
	}
}

// fetchOne calls GET /products/{id}/stock.
func (o *Oracle) fetchOne(ctx context.Context, productID string) (model.StockInfo, error) {
	endpoint := fmt.Sprintf("%s/products/%s/stock", o.catalogURL, url.PathEscape(productID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.StockInfo{}, fmt.Errorf("building request: %w", err)
	}
	o.authorize(req)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return model.StockInfo{}, fmt.Errorf("%w: %v", model.ErrStockUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return model.StockInfo{}, fmt.Errorf("%w: catalog returned %d", model.ErrStockUnavailable, resp.StatusCode)
	}

	var info model.StockInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return model.StockInfo{}, fmt.Errorf("decoding stock response: %w", err)
	}
	return info, nil
}

// batchRequest is the payload for POST /products/stock.
type batchRequest struct {
	ProductIDs []string `json:"product_ids"`
}

// batchResponse maps product ID to availability. Products unknown to the
// catalog are omitted.
type batchResponse struct {
	StockInfo map[string]model.StockInfo `json:"stock_info"`
}

// fetchBatch calls POST /products/stock with all IDs in one round-trip.
func (o *Oracle) fetchBatch(ctx context.Context, productIDs []string) (map[string]model.StockInfo, error) {
	body, err := json.Marshal(batchRequest{ProductIDs: productIDs})
	if err != nil {
		return nil, fmt.Errorf("encoding batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.catalogURL+"/products/stock", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	o.authorize(req)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStockUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: catalog returned %d", model.ErrStockUnavailable, resp.StatusCode)
	}

	var decoded batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding batch response: %w", err)
	}
	if decoded.StockInfo == nil {
		return map[string]model.StockInfo{}, nil
	}
	return decoded.StockInfo, nil
}
