// Package handler provides the HTTP API for the shopsync service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"shopsync/internal/model"
	"shopsync/internal/reconcile"
	"shopsync/internal/session"
	"shopsync/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	carts     *reconcile.Reconciler
	wishlists *reconcile.Reconciler
	resolver  *session.Resolver
	store     store.Store
	logger    *slog.Logger
}

// New creates a Handler.
func New(carts, wishlists *reconcile.Reconciler, resolver *session.Resolver, st store.Store, logger *slog.Logger) *Handler {
	return &Handler{
		carts:     carts,
		wishlists: wishlists,
		resolver:  resolver,
		store:     st,
		logger:    logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns. {kind} is "cart" or "wishlist".
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Collection operations
	mux.HandleFunc("GET /{kind}", h.handleGetCollection)
	mux.HandleFunc("POST /{kind}/items", h.handleAddItem)
	mux.HandleFunc("PUT /{kind}/items/{id}", h.handleSetQuantity)
	mux.HandleFunc("DELETE /{kind}/items/{id}", h.handleRemoveItem)
	mux.HandleFunc("DELETE /{kind}", h.handleClearCollection)
	mux.HandleFunc("POST /{kind}/revalidate", h.handleRevalidate)

	// Session lifecycle
	mux.HandleFunc("POST /session/merge", h.handleMerge)
	mux.HandleFunc("POST /session/logout", h.handleLogout)

	// MCP transport - JSON-RPC endpoint using official MCP SDK.
	// Methods are listed explicitly; a bare "/mcp" pattern conflicts
	// with "GET /{kind}" under Go 1.22 ServeMux precedence rules.
	mcpHandler := h.NewMCPHandler()
	mux.Handle("GET /mcp", mcpHandler)
	mux.Handle("POST /mcp", mcpHandler)
	mux.Handle("DELETE /mcp", mcpHandler)

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// reconcilerFor maps a path {kind} value to its reconciler.
func (h *Handler) reconcilerFor(kind model.Kind) *reconcile.Reconciler {
	switch kind {
	case model.KindCart:
		return h.carts
	case model.KindWishlist:
		return h.wishlists
	default:
		return nil
	}
}

// resolve identifies the caller and echoes a freshly minted guest
// session ID so the frontend can persist it.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (session.Identity, error) {
	id, err := h.resolver.Resolve(r.Context(), r)
	if err != nil {
		return session.Identity{}, err
	}
	if id.NewGuest {
		w.Header().Set(session.GuestHeader, id.GuestID)
	}
	return id, nil
}

// handleHealth reports service liveness and session store reachability.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("session store unreachable", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// collectionResponse is the envelope every collection operation returns.
// Notices describe corrective or rejected actions from this request; the
// frontend surfaces them and they are gone.
type collectionResponse struct {
	Kind          model.Kind       `json:"kind"`
	Items         []model.LineItem `json:"items"`
	Notices       []model.Notice   `json:"notices"`
	Subtotal      string           `json:"subtotal"`
	TotalQuantity int              `json:"total_quantity"`
	Version       int64            `json:"version"`
}

func newCollectionResponse(col *model.Collection, notices []model.Notice) collectionResponse {
	if notices == nil {
		notices = []model.Notice{}
	}
	return collectionResponse{
		Kind:          col.Kind,
		Items:         col.Items,
		Notices:       notices,
		Subtotal:      col.Subtotal().StringFixed(2),
		TotalQuantity: col.TotalQuantity(),
		Version:       col.Version,
	}
}

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if !errors.As(err, &apiErr) {
		h.logger.Error("internal error", slog.String("error", err.Error()))
		apiErr = model.NewInternalError(err)
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
