package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"shopsync/internal/model"
	"shopsync/internal/remote"
	"shopsync/internal/store"
	"shopsync/internal/syncq"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOracle serves scripted stock answers. Products absent from the map
// are "no information". onBatch runs before a batch answer is returned,
// letting tests mutate state while a fetch is notionally in flight.
type fakeOracle struct {
	mu          sync.Mutex
	stocks      map[string]model.StockInfo
	batchFails  bool
	invalidated []string
	onBatch     func()
}

func (o *fakeOracle) GetStock(ctx context.Context, productID string) (model.StockInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	info, ok := o.stocks[productID]
	return info, ok
}

func (o *fakeOracle) GetStockBatch(ctx context.Context, productIDs []string) map[string]model.StockInfo {
	if o.onBatch != nil {
		o.onBatch()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.batchFails {
		return map[string]model.StockInfo{}
	}
	out := make(map[string]model.StockInfo, len(productIDs))
	for _, id := range productIDs {
		if info, ok := o.stocks[id]; ok {
			out[id] = info
		}
	}
	return out
}

func (o *fakeOracle) Invalidate(productID string) {
	o.mu.Lock()
	o.invalidated = append(o.invalidated, productID)
	o.mu.Unlock()
}

func (o *fakeOracle) setStock(productID string, stock int, inStock bool) {
	o.mu.Lock()
	if o.stocks == nil {
		o.stocks = make(map[string]model.StockInfo)
	}
	o.stocks[productID] = model.StockInfo{Stock: stock, InStock: inStock}
	o.mu.Unlock()
}

// fakeRemote records applied mutations and serves a scripted fetch.
type fakeRemote struct {
	mu       sync.Mutex
	fetchCol *model.Collection
	fetchErr error
	applied  []remote.Mutation
	applyErr error
}

func (r *fakeRemote) Fetch(ctx context.Context, token string, kind model.Kind) (*model.Collection, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	if r.fetchCol == nil {
		return model.NewCollection(kind), nil
	}
	return r.fetchCol.Clone(), nil
}

func (r *fakeRemote) Apply(ctx context.Context, token string, kind model.Kind, m remote.Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return r.applyErr
	}
	r.applied = append(r.applied, m)
	return nil
}

func (r *fakeRemote) appliedMutations() []remote.Mutation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]remote.Mutation, len(r.applied))
	copy(out, r.applied)
	return out
}

// fakeQueue records enqueued mirror ops synchronously.
type fakeQueue struct {
	mu  sync.Mutex
	ops []syncq.Op
}

func (q *fakeQueue) Enqueue(op syncq.Op) {
	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()
}

func (q *fakeQueue) enqueued() []syncq.Op {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]syncq.Op, len(q.ops))
	copy(out, q.ops)
	return out
}

type fixture struct {
	rec    *Reconciler
	store  *store.MemoryStore
	oracle *fakeOracle
	remote *fakeRemote
	queue  *fakeQueue
}

func newFixture(kind model.Kind) *fixture {
	f := &fixture{
		store:  store.NewMemoryStore(),
		oracle: &fakeOracle{},
		remote: &fakeRemote{},
		queue:  &fakeQueue{},
	}
	f.rec = New(kind, f.store, f.oracle, f.remote, f.queue, discardLogger())
	return f
}

func guestSession() Session {
	return Session{ID: "guest-1"}
}

func authSession() Session {
	return Session{ID: "user-1", Token: "tok-1", Authenticated: true}
}

func product(id string, stock int) model.Product {
	return model.Product{
		ID:      id,
		Name:    "Item " + id,
		Price:   decimal.RequireFromString("9.99"),
		Stock:   stock,
		InStock: stock > 0,
	}
}

func noticeCodes(notices []model.Notice) []model.NoticeCode {
	codes := make([]model.NoticeCode, len(notices))
	for i, n := range notices {
		codes[i] = n.Code
	}
	return codes
}

func TestAdd_NewItem(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)

	col, notices, err := f.rec.Add(context.Background(), guestSession(), product("p1", 5), 2)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if len(notices) != 0 {
		t.Errorf("notices = %v, want none", notices)
	}
	if len(col.Items) != 1 || col.Items[0].Quantity != 2 {
		t.Fatalf("items = %+v, want one item with quantity 2", col.Items)
	}
	if col.Items[0].Stock != 5 || !col.Items[0].InStock {
		t.Errorf("stock fields = (%d, %v), want (5, true)", col.Items[0].Stock, col.Items[0].InStock)
	}
}

func TestAdd_RefreshesStockBeforeActing(t *testing.T) {
	f := newFixture(model.KindCart)
	// Product page snapshot claims stock, oracle says it sold out.
	f.oracle.setStock("p1", 0, false)

	col, notices, err := f.rec.Add(context.Background(), guestSession(), product("p1", 10), 1)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if len(notices) != 1 || notices[0].Code != model.NoticeOutOfStock {
		t.Fatalf("notices = %v, want exactly one out_of_stock", notices)
	}
	if !col.IsEmpty() {
		t.Errorf("collection = %+v, want unchanged (empty)", col.Items)
	}
	if len(f.oracle.invalidated) == 0 || f.oracle.invalidated[0] != "p1" {
		t.Errorf("oracle cache not invalidated before the add")
	}
}

func TestAdd_TrustsSnapshotWhenOracleSilent(t *testing.T) {
	f := newFixture(model.KindCart)
	// Oracle has nothing for p1; the caller's snapshot is all we have.

	col, notices, err := f.rec.Add(context.Background(), guestSession(), product("p1", 3), 1)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if len(notices) != 0 {
		t.Errorf("notices = %v, want none", notices)
	}
	if len(col.Items) != 1 {
		t.Fatalf("items = %+v, want the snapshot-backed add to succeed", col.Items)
	}
}

func TestAdd_AtCapacityEmitsOneNotice(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 2, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 2), 2)
	col, notices, err := f.rec.Add(ctx, sess, product("p1", 2), 1)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if got := noticeCodes(notices); len(got) != 1 || got[0] != model.NoticeAtCapacity {
		t.Fatalf("notices = %v, want exactly one at_capacity", got)
	}
	if col.Items[0].Quantity != 2 {
		t.Errorf("quantity = %d, want unchanged 2", col.Items[0].Quantity)
	}
}

func TestAdd_IncrementClampsToStock(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 3, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 3), 2)
	col, notices, err := f.rec.Add(ctx, sess, product("p1", 3), 5)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if len(notices) != 0 {
		t.Errorf("notices = %v, want none (clamp is silent on add)", notices)
	}
	if col.Items[0].Quantity != 3 {
		t.Errorf("quantity = %d, want clamped to 3", col.Items[0].Quantity)
	}
}

func TestAdd_FirstAddClampsRequestedQuantity(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 2, true)

	col, _, err := f.rec.Add(context.Background(), guestSession(), product("p1", 2), 9)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if col.Items[0].Quantity != 2 {
		t.Errorf("quantity = %d, want clamped to stock 2", col.Items[0].Quantity)
	}
}

func TestAdd_MirrorsForAuthenticatedSessions(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)

	if _, _, err := f.rec.Add(context.Background(), authSession(), product("p1", 5), 1); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	ops := f.queue.enqueued()
	if len(ops) != 1 || ops[0].Mutation.Action != remote.ActionAdd {
		t.Fatalf("queued ops = %+v, want one add", ops)
	}
	if ops[0].Token != "tok-1" || ops[0].Kind != model.KindCart {
		t.Errorf("op routing = %+v", ops[0])
	}
}

func TestAdd_GuestSessionsAreNotMirrored(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)

	f.rec.Add(context.Background(), guestSession(), product("p1", 5), 1)
	if ops := f.queue.enqueued(); len(ops) != 0 {
		t.Errorf("queued ops = %+v, want none for guests", ops)
	}
}

func TestAdd_WishlistDeduplicatesAndIgnoresStock(t *testing.T) {
	f := newFixture(model.KindWishlist)
	sess := guestSession()
	ctx := context.Background()

	// Out of stock products are wishable.
	col, notices, err := f.rec.Add(ctx, sess, product("p1", 0), 1)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if len(notices) != 0 || len(col.Items) != 1 {
		t.Fatalf("col = %+v notices = %v, want a silent single-item add", col.Items, notices)
	}

	col, _, err = f.rec.Add(ctx, sess, product("p1", 0), 1)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if len(col.Items) != 1 || col.Items[0].Quantity != 1 {
		t.Errorf("items = %+v, want duplicate add to be a no-op", col.Items)
	}
}

func TestRemove(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	sess := authSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 1)

	col, err := f.rec.Remove(ctx, sess, "p1")
	if err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if !col.IsEmpty() {
		t.Errorf("items = %+v, want empty", col.Items)
	}

	// Absent product is a no-op, not an error.
	if _, err := f.rec.Remove(ctx, sess, "missing"); err != nil {
		t.Errorf("Remove(missing) error: %v", err)
	}

	ops := f.queue.enqueued()
	if len(ops) != 2 || ops[1].Mutation.Action != remote.ActionRemove {
		t.Errorf("queued ops = %+v, want add then remove", ops)
	}
}

func TestSetQuantity(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 4, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 4), 1)

	col, err := f.rec.SetQuantity(ctx, sess, "p1", 3)
	if err != nil {
		t.Fatalf("SetQuantity() error: %v", err)
	}
	if col.Items[0].Quantity != 3 {
		t.Errorf("quantity = %d, want 3", col.Items[0].Quantity)
	}

	// Above stock clamps.
	col, err = f.rec.SetQuantity(ctx, sess, "p1", 99)
	if err != nil {
		t.Fatalf("SetQuantity() error: %v", err)
	}
	if col.Items[0].Quantity != 4 {
		t.Errorf("quantity = %d, want clamped to 4", col.Items[0].Quantity)
	}

	// Zero removes.
	col, err = f.rec.SetQuantity(ctx, sess, "p1", 0)
	if err != nil {
		t.Fatalf("SetQuantity() error: %v", err)
	}
	if !col.IsEmpty() {
		t.Errorf("items = %+v, want empty after qty 0", col.Items)
	}
}

func TestSetQuantity_WishlistRejected(t *testing.T) {
	f := newFixture(model.KindWishlist)

	_, err := f.rec.SetQuantity(context.Background(), guestSession(), "p1", 2)
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestClear(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	sess := authSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 1)
	col, err := f.rec.Clear(ctx, sess)
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if !col.IsEmpty() {
		t.Errorf("items = %+v, want empty", col.Items)
	}

	ops := f.queue.enqueued()
	if len(ops) != 2 || ops[1].Mutation.Action != remote.ActionClear {
		t.Errorf("queued ops = %+v, want add then clear", ops)
	}
}

func TestRevalidate_RemovesAndClampsWithNotices(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	f.oracle.setStock("p2", 5, true)
	f.oracle.setStock("p3", 5, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 4)
	f.rec.Add(ctx, sess, product("p2", 5), 2)
	f.rec.Add(ctx, sess, product("p3", 5), 1)

	// Stock moved since: p1 partially sold, p2 sold out, p3 unchanged.
	f.oracle.setStock("p1", 2, true)
	f.oracle.setStock("p2", 0, false)

	col, notices, err := f.rec.Revalidate(ctx, sess)
	if err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}

	if len(col.Items) != 2 {
		t.Fatalf("items = %+v, want p2 removed", col.Items)
	}
	if col.Items[0].ProductID != "p1" || col.Items[0].Quantity != 2 {
		t.Errorf("p1 = %+v, want quantity clamped to 2", col.Items[0])
	}
	if col.Items[1].ProductID != "p3" || col.Items[1].Quantity != 1 {
		t.Errorf("p3 = %+v, want untouched", col.Items[1])
	}

	codes := noticeCodes(notices)
	if len(codes) != 2 {
		t.Fatalf("notices = %v, want adjustment and removal", codes)
	}
	seen := map[model.NoticeCode]bool{}
	for _, c := range codes {
		seen[c] = true
	}
	if !seen[model.NoticeQuantityAdjusted] || !seen[model.NoticeItemRemoved] {
		t.Errorf("notice codes = %v", codes)
	}
}

func TestRevalidate_Idempotent(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 4)
	f.oracle.setStock("p1", 2, true)

	if _, notices, _ := f.rec.Revalidate(ctx, sess); len(notices) != 1 {
		t.Fatalf("first pass notices = %v, want one adjustment", notices)
	}
	col, notices, err := f.rec.Revalidate(ctx, sess)
	if err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}
	if len(notices) != 0 {
		t.Errorf("second pass notices = %v, want none", notices)
	}
	if col.Items[0].Quantity != 2 {
		t.Errorf("quantity = %d, want stable 2", col.Items[0].Quantity)
	}
}

func TestRevalidate_OracleSilenceLeavesItems(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 3)

	// Total failure: no information must never mean sold out.
	f.oracle.mu.Lock()
	f.oracle.batchFails = true
	f.oracle.mu.Unlock()

	col, notices, err := f.rec.Revalidate(ctx, sess)
	if err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}
	if len(notices) != 0 || len(col.Items) != 1 || col.Items[0].Quantity != 3 {
		t.Errorf("col = %+v notices = %v, want untouched", col.Items, notices)
	}
}

func TestRevalidate_OmittedProductUntouched(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	f.oracle.setStock("p2", 5, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 1)
	f.rec.Add(ctx, sess, product("p2", 5), 1)

	// Oracle forgets p2 but answers for p1.
	f.oracle.mu.Lock()
	delete(f.oracle.stocks, "p2")
	f.oracle.mu.Unlock()

	col, notices, err := f.rec.Revalidate(ctx, sess)
	if err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}
	if len(notices) != 0 {
		t.Errorf("notices = %v, want none", notices)
	}
	if len(col.Items) != 2 {
		t.Errorf("items = %+v, want p2 preserved despite missing info", col.Items)
	}
}

func TestRevalidate_DiscardsStalePass(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 4)
	f.oracle.setStock("p1", 0, false)

	// While the batch fetch is in flight another request mutates the
	// collection. The pass must notice the version bump and stand down.
	f.oracle.onBatch = func() {
		f.oracle.onBatch = nil
		f.oracle.setStock("p2", 9, true)
		if _, _, err := f.rec.Add(ctx, sess, product("p2", 9), 1); err != nil {
			t.Errorf("concurrent Add() error: %v", err)
		}
	}

	col, notices, err := f.rec.Revalidate(ctx, sess)
	if err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}
	if len(notices) != 0 {
		t.Errorf("notices = %v, want none from a discarded pass", notices)
	}
	if len(col.Items) != 2 {
		t.Errorf("items = %+v, want both items intact", col.Items)
	}
}

func TestRevalidate_MirrorsCorrections(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	f.oracle.setStock("p2", 5, true)
	sess := authSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 4)
	f.rec.Add(ctx, sess, product("p2", 5), 2)

	f.oracle.setStock("p1", 2, true)
	f.oracle.setStock("p2", 0, false)

	if _, _, err := f.rec.Revalidate(ctx, sess); err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}

	var gotRemove, gotUpdate bool
	for _, op := range f.queue.enqueued() {
		switch op.Mutation.Action {
		case remote.ActionRemove:
			gotRemove = op.Mutation.ProductID == "p2"
		case remote.ActionUpdateQuantity:
			gotUpdate = op.Mutation.ProductID == "p1" && op.Mutation.Quantity == 2
		}
	}
	if !gotRemove || !gotUpdate {
		t.Errorf("mirrored ops = %+v, want remove p2 and update p1 to 2", f.queue.enqueued())
	}
}

func TestRevalidate_WishlistRefreshesFlagsOnly(t *testing.T) {
	f := newFixture(model.KindWishlist)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 1)
	f.oracle.setStock("p1", 0, false)

	col, notices, err := f.rec.Revalidate(ctx, sess)
	if err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}
	if len(notices) != 0 {
		t.Errorf("notices = %v, want none for wishlists", notices)
	}
	if len(col.Items) != 1 {
		t.Fatalf("items = %+v, wishlist must not lose items", col.Items)
	}
	if col.Items[0].InStock || col.Items[0].Stock != 0 {
		t.Errorf("flags = (%d, %v), want refreshed to (0, false)", col.Items[0].Stock, col.Items[0].InStock)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(model.KindCart)
	f.oracle.setStock("p1", 5, true)
	sess := guestSession()
	ctx := context.Background()

	f.rec.Add(ctx, sess, product("p1", 5), 1)
	if err := f.rec.Reset(ctx, sess); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	col, err := f.rec.Get(ctx, sess)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !col.IsEmpty() {
		t.Errorf("items = %+v, want empty after reset", col.Items)
	}
}
