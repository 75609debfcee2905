package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"shopsync/internal/model"
	"shopsync/internal/remote"
)

// Revalidate reconciles every item against live stock.
//
// Cart items whose product is gone or has zero stock are removed; items
// whose quantity exceeds the available stock are clamped. Each correction
// emits one notice, and corrections are mirrored remotely for
// authenticated sessions. Products the oracle reports nothing about are
// left untouched. Wishlist items only get their Stock and InStock fields
// refreshed; a wishlist never loses items to revalidation.
//
// The batch stock fetch runs outside the session lock. If the collection
// changed while the fetch was in flight the pass is discarded and the
// current collection returned unmodified; the caller's next request will
// revalidate against the newer state.
func (r *Reconciler) Revalidate(ctx context.Context, sess Session) (*model.Collection, []model.Notice, error) {
	unlock := r.locks.lock(sess.ID, r.kind)
	col, err := r.store.Load(ctx, sess.ID, r.kind)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("loading collection: %w", err)
	}
	if col.IsEmpty() {
		unlock()
		return col, nil, nil
	}

	snapshotVersion := col.Version
	ids := make([]string, len(col.Items))
	for i, item := range col.Items {
		ids[i] = item.ProductID
	}
	unlock()

	stocks := r.oracle.GetStockBatch(ctx, ids)
	if len(stocks) == 0 {
		// No information at all. Never treat oracle failure as sold out.
		r.logger.Warn("revalidation skipped, stock oracle unavailable",
			slog.String("session", sess.ID))
		return col, nil, nil
	}

	unlock = r.locks.lock(sess.ID, r.kind)
	defer unlock()

	col, err = r.store.Load(ctx, sess.ID, r.kind)
	if err != nil {
		return nil, nil, fmt.Errorf("reloading collection: %w", err)
	}
	if col.Version != snapshotVersion {
		r.logger.Debug("revalidation pass discarded, collection changed",
			slog.String("session", sess.ID),
			slog.Int64("expected_version", snapshotVersion),
			slog.Int64("actual_version", col.Version))
		return col, nil, nil
	}

	if r.kind == model.KindWishlist {
		return r.refreshWishlist(ctx, sess, col, stocks)
	}
	return r.correctCart(ctx, sess, col, stocks)
}

// correctCart applies removals and clamps to a cart under the session
// lock. stocks holds only the products the oracle answered for.
func (r *Reconciler) correctCart(ctx context.Context, sess Session, col *model.Collection, stocks map[string]model.StockInfo) (*model.Collection, []model.Notice, error) {
	var notices []model.Notice
	var removed []string
	changed := false
	kept := make([]model.LineItem, 0, len(col.Items))

	for _, item := range col.Items {
		info, ok := stocks[item.ProductID]
		if !ok {
			kept = append(kept, item)
			continue
		}

		switch {
		case !info.InStock || info.Stock == 0:
			notices = append(notices, model.RemovedNotice(item, info.InStock))
			removed = append(removed, item.ProductID)
			changed = true

		case info.Stock < item.Quantity:
			notices = append(notices, model.AdjustedNotice(item, info.Stock))
			item.Quantity = info.Stock
			item.Stock = info.Stock
			item.InStock = info.InStock
			kept = append(kept, item)
			changed = true

		default:
			if item.Stock != info.Stock || item.InStock != info.InStock {
				changed = true
			}
			item.Stock = info.Stock
			item.InStock = info.InStock
			kept = append(kept, item)
		}
	}

	col.Items = kept
	if !changed {
		return col, nil, nil
	}

	if err := r.save(ctx, sess, col); err != nil {
		return nil, nil, err
	}

	for _, id := range removed {
		r.mirror(sess, remote.RemoveMutation(id))
	}
	for _, n := range notices {
		if n.Code == model.NoticeQuantityAdjusted {
			if item := col.Get(n.ProductID); item != nil {
				r.mirror(sess, remote.QuantityMutation(item.ProductID, item.Quantity))
			}
		}
	}

	r.logger.Info("cart revalidated",
		slog.String("session", sess.ID),
		slog.Int("corrections", len(notices)))
	return col, notices, nil
}

// refreshWishlist updates availability flags only.
func (r *Reconciler) refreshWishlist(ctx context.Context, sess Session, col *model.Collection, stocks map[string]model.StockInfo) (*model.Collection, []model.Notice, error) {
	changed := false
	for i := range col.Items {
		info, ok := stocks[col.Items[i].ProductID]
		if !ok {
			continue
		}
		if col.Items[i].Stock != info.Stock || col.Items[i].InStock != info.InStock {
			col.Items[i].Stock = info.Stock
			col.Items[i].InStock = info.InStock
			changed = true
		}
	}
	if !changed {
		return col, nil, nil
	}
	if err := r.save(ctx, sess, col); err != nil {
		return nil, nil, err
	}
	return col, nil, nil
}
