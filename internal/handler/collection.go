package handler

import (
	"log/slog"
	"net/http"

	"shopsync/internal/model"
	"shopsync/internal/reconcile"
)

// parseKind validates the {kind} path segment and returns the matching
// reconciler.
func (h *Handler) parseKind(w http.ResponseWriter, r *http.Request) (*reconcile.Reconciler, model.Kind, bool) {
	kind := model.Kind(r.PathValue("kind"))
	if !kind.Valid() {
		h.writeError(w, model.NewNotFoundError("collection"))
		return nil, "", false
	}
	return h.reconcilerFor(kind), kind, true
}

// handleGetCollection returns the current collection. With
// ?revalidate=1 a reconciliation pass runs first and the response
// carries any correction notices.
// GET /{kind}
func (h *Handler) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	rec, _, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	id, err := h.resolve(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if r.URL.Query().Get("revalidate") == "1" {
		col, notices, err := rec.Revalidate(r.Context(), id.Session())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, newCollectionResponse(col, notices))
		return
	}

	col, err := rec.Get(r.Context(), id.Session())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCollectionResponse(col, nil))
}

// addItemRequest is the POST /{kind}/items payload. The product fields
// are the frontend's catalog snapshot; live stock wins when available.
type addItemRequest struct {
	Product  model.Product `json:"product"`
	Quantity int           `json:"quantity"`
}

// handleAddItem adds a product to the collection.
// POST /{kind}/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	rec, kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	id, err := h.resolve(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Product.ID == "" {
		h.writeError(w, model.NewValidationError("product.id", "product ID required"))
		return
	}

	h.logger.InfoContext(r.Context(), "adding item",
		slog.String("kind", string(kind)),
		slog.String("product_id", req.Product.ID),
		slog.Int("quantity", req.Quantity),
	)

	col, notices, err := rec.Add(r.Context(), id.Session(), req.Product, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCollectionResponse(col, notices))
}

// setQuantityRequest is the PUT /{kind}/items/{id} payload.
type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// handleSetQuantity sets an item's quantity. Zero removes the item.
// PUT /{kind}/items/{id}
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	rec, _, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	productID := r.PathValue("id")
	if productID == "" {
		h.writeError(w, model.NewValidationError("id", "product ID required"))
		return
	}
	id, err := h.resolve(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	col, err := rec.SetQuantity(r.Context(), id.Session(), productID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCollectionResponse(col, nil))
}

// handleRemoveItem deletes an item from the collection.
// DELETE /{kind}/items/{id}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	rec, _, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	productID := r.PathValue("id")
	if productID == "" {
		h.writeError(w, model.NewValidationError("id", "product ID required"))
		return
	}
	id, err := h.resolve(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	col, err := rec.Remove(r.Context(), id.Session(), productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCollectionResponse(col, nil))
}

// handleClearCollection empties the collection.
// DELETE /{kind}
func (h *Handler) handleClearCollection(w http.ResponseWriter, r *http.Request) {
	rec, kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	id, err := h.resolve(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "clearing collection",
		slog.String("kind", string(kind)),
		slog.String("session", id.SessionID()),
	)

	col, err := rec.Clear(r.Context(), id.Session())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCollectionResponse(col, nil))
}

// handleRevalidate reconciles the collection against live stock.
// POST /{kind}/revalidate
func (h *Handler) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	rec, _, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	id, err := h.resolve(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	col, notices, err := rec.Revalidate(r.Context(), id.Session())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCollectionResponse(col, notices))
}

// mergeRequest is the POST /session/merge payload.
type mergeRequest struct {
	GuestSessionID string `json:"guest_session_id"`
}

// mergeResponse bundles both merged collections.
type mergeResponse struct {
	Cart     collectionResponse `json:"cart"`
	Wishlist collectionResponse `json:"wishlist"`
}

// handleMerge folds a guest session into the authenticated user's
// collections. Called by the frontend right after login.
// POST /session/merge
func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolve(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !id.Authenticated {
		h.writeError(w, model.NewUnauthorizedError("merge requires an authenticated session"))
		return
	}

	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.GuestSessionID == "" {
		h.writeError(w, model.NewValidationError("guest_session_id", "guest session ID required"))
		return
	}

	h.logger.InfoContext(r.Context(), "merging guest session",
		slog.String("user", id.UserID),
		slog.String("guest_session", req.GuestSessionID),
	)

	cart, cartNotices, err := h.carts.MergeOnLogin(r.Context(), id.Session(), req.GuestSessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	wishlist, wishNotices, err := h.wishlists.MergeOnLogin(r.Context(), id.Session(), req.GuestSessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, mergeResponse{
		Cart:     newCollectionResponse(cart, cartNotices),
		Wishlist: newCollectionResponse(wishlist, wishNotices),
	})
}

// handleLogout discards the caller's session collections. The remote
// collections are untouched and greet the user on the next login.
// POST /session/logout
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolve(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sess := id.Session()
	if err := h.carts.Reset(r.Context(), sess); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.wishlists.Reset(r.Context(), sess); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
