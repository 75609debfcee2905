package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"shopsync/internal/model"
	"shopsync/internal/remote"
)

// MergeOnLogin folds a guest collection into the authenticated user's
// remote collection. Runs once, at login.
//
// The remote collection is the base. For carts, an item present on both
// sides keeps the larger quantity; guest-only items are appended after
// the remote ones. For wishlists, guest items absent remotely are
// appended. The delta against the remote state is pushed synchronously
// (adds and quantity updates only; the merge never removes remote
// items), the guest collection is deleted, and for carts the merged
// result is revalidated before it is returned.
//
// A failed remote fetch degrades to an empty base with a warning: the
// user keeps their guest items and the push seeds the remote side.
// Individual push failures are logged and skipped; the session store is
// saved regardless and stays authoritative for the UI.
func (r *Reconciler) MergeOnLogin(ctx context.Context, sess Session, guestID string) (*model.Collection, []model.Notice, error) {
	if !sess.Authenticated {
		return nil, nil, model.NewUnauthorizedError("merge requires an authenticated session")
	}

	unlock := r.locks.lock(sess.ID, r.kind)

	guest, err := r.store.Load(ctx, guestID, r.kind)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("loading guest collection: %w", err)
	}

	remoteCol := model.NewCollection(r.kind)
	if r.remote != nil {
		fetched, err := r.remote.Fetch(ctx, sess.Token, r.kind)
		if err != nil {
			r.logger.Warn("remote fetch failed during merge, starting from guest items only",
				slog.String("error", err.Error()))
		} else {
			remoteCol = fetched
		}
	}

	merged := mergeItems(r.kind, remoteCol.Items, guest.Items)

	current, err := r.store.Load(ctx, sess.ID, r.kind)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("loading collection: %w", err)
	}
	current.Items = merged
	if err := r.save(ctx, sess, current); err != nil {
		unlock()
		return nil, nil, err
	}

	if err := r.store.Delete(ctx, guestID, r.kind); err != nil {
		r.logger.Warn("guest collection cleanup failed",
			slog.String("guest_session", guestID),
			slog.String("error", err.Error()))
	}
	unlock()

	r.pushDelta(ctx, sess, remoteCol.Items, merged)

	r.logger.Info("collections merged",
		slog.String("session", sess.ID),
		slog.Int("remote_items", len(remoteCol.Items)),
		slog.Int("guest_items", len(guest.Items)),
		slog.Int("merged_items", len(merged)))

	if r.kind == model.KindCart {
		return r.Revalidate(ctx, sess)
	}
	col, err := r.store.Load(ctx, sess.ID, r.kind)
	return col, nil, err
}

// mergeItems combines remote and guest items. Remote items come first in
// their original order; guest items not present remotely follow in guest
// order. For carts a product on both sides takes the larger quantity.
func mergeItems(kind model.Kind, remoteItems, guestItems []model.LineItem) []model.LineItem {
	merged := make([]model.LineItem, len(remoteItems))
	copy(merged, remoteItems)

	index := make(map[string]int, len(merged))
	for i, item := range merged {
		index[item.ProductID] = i
	}

	for _, g := range guestItems {
		i, exists := index[g.ProductID]
		if !exists {
			index[g.ProductID] = len(merged)
			merged = append(merged, g)
			continue
		}
		if kind == model.KindCart && g.Quantity > merged[i].Quantity {
			merged[i].Quantity = g.Quantity
		}
	}
	return merged
}

// pushDelta mirrors the merge result to the remote collection service.
// Adds and quantity updates only; the merge is additive, so anything the
// diff wants removed was never part of the merged state to begin with.
func (r *Reconciler) pushDelta(ctx context.Context, sess Session, remoteItems, merged []model.LineItem) {
	if r.remote == nil {
		return
	}

	delta := Diff(remoteItems, merged)
	if delta.IsEmpty() {
		return
	}

	for _, change := range delta.ToUpdate {
		if err := r.remote.Apply(ctx, sess.Token, r.kind, remote.QuantityMutation(change.ProductID, change.NewQuantity)); err != nil {
			r.logger.Warn("merge push failed for quantity update",
				slog.String("product_id", change.ProductID),
				slog.String("error", err.Error()))
		}
	}
	for _, item := range delta.ToAdd {
		if err := r.remote.Apply(ctx, sess.Token, r.kind, remote.AddMutation(item)); err != nil {
			r.logger.Warn("merge push failed for add",
				slog.String("product_id", item.ProductID),
				slog.String("error", err.Error()))
		}
	}
}
