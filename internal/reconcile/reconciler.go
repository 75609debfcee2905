// Package reconcile owns the stock-aware collection logic: mutation
// operations with availability guards, the one-time guest→authenticated
// merge, and revalidation of cached quantities against live stock.
//
// One Reconciler exists per collection kind (cart, wishlist). Mutation
// logic is written against the store.Store and Mirror abstractions, so
// guest and authenticated sessions share a single code path; the only
// session-dependent behavior is whether mutations are mirrored to the
// remote collection service.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"shopsync/internal/model"
	"shopsync/internal/remote"
	"shopsync/internal/store"
	"shopsync/internal/syncq"
)

// Session identifies whose collection an operation targets.
type Session struct {
	// ID is the store key: the user ID when authenticated, otherwise a
	// guest session ID.
	ID string

	// Token is the bearer token for remote collection calls. Empty for
	// guests.
	Token string

	Authenticated bool
}

// Oracle is the stock information source. Satisfied by *stock.Oracle.
// A false second return / an absent map entry means "no information" and
// must never trigger a destructive correction.
type Oracle interface {
	GetStock(ctx context.Context, productID string) (model.StockInfo, bool)
	GetStockBatch(ctx context.Context, productIDs []string) map[string]model.StockInfo
	Invalidate(productID string)
}

// RemoteStore is the authoritative collection service for authenticated
// identities. Satisfied by *remote.Client.
type RemoteStore interface {
	Fetch(ctx context.Context, token string, kind model.Kind) (*model.Collection, error)
	Apply(ctx context.Context, token string, kind model.Kind, m remote.Mutation) error
}

// MirrorQueue accepts fire-and-forget mirror operations. Satisfied by
// *syncq.Queue.
type MirrorQueue interface {
	Enqueue(op syncq.Op)
}

// Reconciler applies collection operations for one kind.
type Reconciler struct {
	kind   model.Kind
	store  store.Store
	oracle Oracle
	remote RemoteStore
	queue  MirrorQueue
	logger *slog.Logger
	locks  *sessionLocks
}

// New creates a reconciler. remote and queue may be nil in guest-only
// setups; mirroring is then skipped entirely.
func New(kind model.Kind, st store.Store, oracle Oracle, rem RemoteStore, queue MirrorQueue, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		kind:   kind,
		store:  st,
		oracle: oracle,
		remote: rem,
		queue:  queue,
		logger: logger.With(slog.String("kind", string(kind))),
		locks:  newSessionLocks(),
	}
}

// Get returns the current collection without mutating it.
func (r *Reconciler) Get(ctx context.Context, sess Session) (*model.Collection, error) {
	return r.store.Load(ctx, sess.ID, r.kind)
}

// Add inserts a product or increments its quantity, guarded by stock.
//
// The caller's product snapshot may be stale, so the oracle cache entry
// is invalidated and refetched first; if the oracle has no information
// the snapshot is trusted as-is. Rejections (out of stock, at capacity)
// are not errors: they emit exactly one notice and leave the collection
// untouched.
func (r *Reconciler) Add(ctx context.Context, sess Session, p model.Product, requestedQty int) (*model.Collection, []model.Notice, error) {
	if requestedQty < 1 {
		requestedQty = 1
	}

	availableStock, inStock := p.Stock, p.InStock
	if r.kind == model.KindCart {
		// Act on fresh stock, not a possibly stale product page snapshot.
		r.oracle.Invalidate(p.ID)
		if fresh, ok := r.oracle.GetStock(ctx, p.ID); ok {
			availableStock, inStock = fresh.Stock, fresh.InStock
		}
	}

	unlock := r.locks.lock(sess.ID, r.kind)
	defer unlock()

	col, err := r.store.Load(ctx, sess.ID, r.kind)
	if err != nil {
		return nil, nil, fmt.Errorf("loading collection: %w", err)
	}

	if r.kind == model.KindWishlist {
		return r.addToWishlist(ctx, sess, col, p)
	}

	if !inStock || availableStock == 0 {
		notice := model.NewNotice(model.NoticeOutOfStock, p.ID,
			fmt.Sprintf("%s is currently out of stock", p.Name))
		return col, []model.Notice{notice}, nil
	}

	if existing := col.Get(p.ID); existing != nil {
		if existing.Quantity >= availableStock {
			notice := model.NewNotice(model.NoticeAtCapacity, p.ID,
				fmt.Sprintf("you already have the maximum available quantity (%d) of %s", availableStock, p.Name))
			return col, []model.Notice{notice}, nil
		}
		existing.Quantity = min(existing.Quantity+requestedQty, availableStock)
		existing.Stock = availableStock
		existing.InStock = inStock

		if err := r.save(ctx, sess, col); err != nil {
			return nil, nil, err
		}
		r.mirror(sess, remote.QuantityMutation(p.ID, existing.Quantity))
		return col, nil, nil
	}

	item := model.LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price, // snapshot at add time
		Image:     p.Image,
		Quantity:  min(requestedQty, availableStock),
		Stock:     availableStock,
		InStock:   inStock,
	}
	col.Items = append(col.Items, item)

	if err := r.save(ctx, sess, col); err != nil {
		return nil, nil, err
	}
	r.mirror(sess, remote.AddMutation(item))
	return col, nil, nil
}

// addToWishlist appends the product if absent. No stock guard: wishing
// for an out-of-stock product is allowed.
func (r *Reconciler) addToWishlist(ctx context.Context, sess Session, col *model.Collection, p model.Product) (*model.Collection, []model.Notice, error) {
	if col.Get(p.ID) != nil {
		return col, nil, nil
	}

	item := model.LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Image:     p.Image,
		Quantity:  1,
		Stock:     p.Stock,
		InStock:   p.InStock,
	}
	col.Items = append(col.Items, item)

	if err := r.save(ctx, sess, col); err != nil {
		return nil, nil, err
	}
	r.mirror(sess, remote.AddMutation(item))
	return col, nil, nil
}

// Remove deletes the item if present. Removing an absent item is a
// no-op, not an error.
func (r *Reconciler) Remove(ctx context.Context, sess Session, productID string) (*model.Collection, error) {
	unlock := r.locks.lock(sess.ID, r.kind)
	defer unlock()

	col, err := r.store.Load(ctx, sess.ID, r.kind)
	if err != nil {
		return nil, fmt.Errorf("loading collection: %w", err)
	}

	i := col.IndexOf(productID)
	if i < 0 {
		return col, nil
	}
	col.RemoveAt(i)

	if err := r.save(ctx, sess, col); err != nil {
		return nil, err
	}
	r.mirror(sess, remote.RemoveMutation(productID))
	return col, nil
}

// SetQuantity sets an item's quantity, clamped to its last-known stock.
// qty <= 0 is equivalent to Remove. Absent items are a no-op.
func (r *Reconciler) SetQuantity(ctx context.Context, sess Session, productID string, qty int) (*model.Collection, error) {
	if r.kind == model.KindWishlist {
		return nil, model.NewValidationError("quantity", "wishlist items have a fixed quantity of 1")
	}
	if qty <= 0 {
		return r.Remove(ctx, sess, productID)
	}

	unlock := r.locks.lock(sess.ID, r.kind)
	defer unlock()

	col, err := r.store.Load(ctx, sess.ID, r.kind)
	if err != nil {
		return nil, fmt.Errorf("loading collection: %w", err)
	}

	item := col.Get(productID)
	if item == nil {
		return col, nil
	}

	newQty := qty
	// Stock == 0 means "not yet confirmed", not "sold out"; revalidation
	// handles genuinely exhausted items.
	if item.Stock > 0 {
		newQty = min(qty, item.Stock)
	}
	if newQty == item.Quantity {
		return col, nil
	}
	item.Quantity = newQty

	if err := r.save(ctx, sess, col); err != nil {
		return nil, err
	}
	r.mirror(sess, remote.QuantityMutation(productID, newQty))
	return col, nil
}

// Clear empties the collection.
func (r *Reconciler) Clear(ctx context.Context, sess Session) (*model.Collection, error) {
	unlock := r.locks.lock(sess.ID, r.kind)
	defer unlock()

	col, err := r.store.Load(ctx, sess.ID, r.kind)
	if err != nil {
		return nil, fmt.Errorf("loading collection: %w", err)
	}
	if col.IsEmpty() {
		return col, nil
	}

	col.Items = []model.LineItem{}
	if err := r.save(ctx, sess, col); err != nil {
		return nil, err
	}
	r.mirror(sess, remote.ClearMutation())
	return col, nil
}

// Reset discards the session's collection without touching the remote
// side. Called on logout: the remote collection stays as the user's
// server-side state, the session copy is gone.
func (r *Reconciler) Reset(ctx context.Context, sess Session) error {
	unlock := r.locks.lock(sess.ID, r.kind)
	defer unlock()
	return r.store.Delete(ctx, sess.ID, r.kind)
}

// save bumps the version and persists.
func (r *Reconciler) save(ctx context.Context, sess Session, col *model.Collection) error {
	col.Version++
	if err := r.store.Save(ctx, sess.ID, r.kind, col); err != nil {
		return fmt.Errorf("saving collection: %w", err)
	}
	return nil
}

// mirror queues a best-effort remote write for authenticated sessions.
func (r *Reconciler) mirror(sess Session, m remote.Mutation) {
	if !sess.Authenticated || r.queue == nil {
		return
	}
	r.queue.Enqueue(syncq.Op{Token: sess.Token, Kind: r.kind, Mutation: m})
}
