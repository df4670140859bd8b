package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"github.com/Hrithik248/busy-buy/internal/notify"
	"github.com/Hrithik248/busy-buy/internal/repository"
	"github.com/Hrithik248/busy-buy/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memFeed is an in-memory ChangeFeed signalled by the fake backend.
type memFeed struct {
	mu     sync.Mutex
	events chan struct{}
	closed bool
}

func newMemFeed() *memFeed {
	return &memFeed{events: make(chan struct{}, 1)}
}

func (f *memFeed) Events() <-chan struct{} { return f.events }
func (f *memFeed) Err() error              { return nil }

func (f *memFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *memFeed) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- struct{}{}:
	default:
	}
}

// fakeBackend plays the document store: keyed collections plus per-user
// change feeds signalled on every mutation.
type fakeBackend struct {
	mu         sync.Mutex
	carts      map[string]map[int64]domain.CartItem
	orders     map[string][]domain.Order
	cartFeeds  map[string][]*memFeed
	orderFeeds map[string][]*memFeed
	seq        int

	insertErr error
	adjustErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		carts:      make(map[string]map[int64]domain.CartItem),
		orders:     make(map[string][]domain.Order),
		cartFeeds:  make(map[string][]*memFeed),
		orderFeeds: make(map[string][]*memFeed),
	}
}

func (b *fakeBackend) signalCart(uid string) {
	for _, f := range b.cartFeeds[uid] {
		f.signal()
	}
}

func (b *fakeBackend) signalOrders(uid string) {
	for _, f := range b.orderFeeds[uid] {
		f.signal()
	}
}

// setQty writes directly to the store, bypassing the service, the way a
// second device would.
func (b *fakeBackend) setQty(uid string, productID int64, qty int) {
	b.mu.Lock()
	item := b.carts[uid][productID]
	item.Qty = qty
	b.carts[uid][productID] = item
	b.mu.Unlock()
	b.signalCart(uid)
}

type fakeCartRepo struct{ b *fakeBackend }

func (r *fakeCartRepo) ListItems(_ context.Context, uid string) ([]domain.CartItem, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	var items []domain.CartItem
	for _, it := range r.b.carts[uid] {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].AddedAt.Before(items[j].AddedAt) })
	return items, nil
}

func (r *fakeCartRepo) InsertItem(_ context.Context, item domain.CartItem) error {
	r.b.mu.Lock()
	if r.b.insertErr != nil {
		err := r.b.insertErr
		r.b.mu.Unlock()
		return err
	}
	if r.b.carts[item.UserID] == nil {
		r.b.carts[item.UserID] = make(map[int64]domain.CartItem)
	}
	if _, ok := r.b.carts[item.UserID][item.ProductID]; ok {
		r.b.mu.Unlock()
		return fmt.Errorf("duplicate cart item %d", item.ProductID)
	}
	r.b.seq++
	item.AddedAt = time.Unix(int64(r.b.seq), 0)
	r.b.carts[item.UserID][item.ProductID] = item
	uid := item.UserID
	r.b.mu.Unlock()
	r.b.signalCart(uid)
	return nil
}

func (r *fakeCartRepo) AdjustQuantity(_ context.Context, uid string, productID int64, delta int) error {
	r.b.mu.Lock()
	if r.b.adjustErr != nil {
		err := r.b.adjustErr
		r.b.mu.Unlock()
		return err
	}
	item, ok := r.b.carts[uid][productID]
	if !ok {
		r.b.mu.Unlock()
		return repository.ErrItemNotFound
	}
	item.Qty += delta
	r.b.carts[uid][productID] = item
	r.b.mu.Unlock()
	r.b.signalCart(uid)
	return nil
}

func (r *fakeCartRepo) DeleteItem(_ context.Context, uid string, productID int64) error {
	r.b.mu.Lock()
	if _, ok := r.b.carts[uid][productID]; !ok {
		r.b.mu.Unlock()
		return repository.ErrItemNotFound
	}
	delete(r.b.carts[uid], productID)
	r.b.mu.Unlock()
	r.b.signalCart(uid)
	return nil
}

func (r *fakeCartRepo) Watch(ctx context.Context, uid string) (repository.ChangeFeed, error) {
	feed := newMemFeed()
	r.b.mu.Lock()
	r.b.cartFeeds[uid] = append(r.b.cartFeeds[uid], feed)
	r.b.mu.Unlock()
	go func() {
		<-ctx.Done()
		feed.Close()
	}()
	return feed, nil
}

type fakeOrderRepo struct{ b *fakeBackend }

func (r *fakeOrderRepo) ListOrders(_ context.Context, uid string) ([]domain.Order, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	out := make([]domain.Order, len(r.b.orders[uid]))
	copy(out, r.b.orders[uid])
	return out, nil
}

func (r *fakeOrderRepo) PlaceOrder(_ context.Context, uid string, items []domain.OrderItem) (string, error) {
	r.b.mu.Lock()
	r.b.seq++
	id := fmt.Sprintf("order-%d", r.b.seq)
	var total float64
	for _, it := range items {
		total += it.Price * float64(it.Qty)
	}
	order := domain.Order{ID: id, UserID: uid, Items: items, Total: total, CreatedAt: time.Now()}
	r.b.orders[uid] = append([]domain.Order{order}, r.b.orders[uid]...)
	r.b.carts[uid] = make(map[int64]domain.CartItem)
	r.b.mu.Unlock()
	r.b.signalOrders(uid)
	r.b.signalCart(uid)
	return id, nil
}

func (r *fakeOrderRepo) Watch(ctx context.Context, uid string) (repository.ChangeFeed, error) {
	feed := newMemFeed()
	r.b.mu.Lock()
	r.b.orderFeeds[uid] = append(r.b.orderFeeds[uid], feed)
	r.b.mu.Unlock()
	go func() {
		<-ctx.Done()
		feed.Close()
	}()
	return feed, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	handlers []func(session.Change)
}

func (f *fakeSessions) Subscribe(h func(session.Change)) func() {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeSessions) emit(ch session.Change) {
	f.mu.Lock()
	handlers := append([]func(session.Change){}, f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(ch)
	}
}

func (f *fakeSessions) signIn(uid string) {
	f.emit(session.Change{State: session.Authenticated, Session: &domain.Session{UserID: uid}})
}

func (f *fakeSessions) signOut() {
	f.emit(session.Change{State: session.Anonymous})
}

type recordingPublisher struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (p *recordingPublisher) OrderPlaced(_ context.Context, o domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o)
	return nil
}

func newHarness(t *testing.T) (*Service, *fakeBackend, *fakeSessions, <-chan notify.Toast) {
	t.Helper()
	backend := newFakeBackend()
	toasts := notify.NewBus()
	toastCh := toasts.Subscribe()

	svc := New(&fakeCartRepo{backend}, &fakeOrderRepo{backend}, toasts, zap.NewNop())
	sessions := &fakeSessions{}
	svc.Bind(sessions)
	t.Cleanup(svc.Close)

	return svc, backend, sessions, toastCh
}

func waitForCart(t *testing.T, svc *Service, ok func([]domain.CartItem) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return ok(svc.Cart()) }, 2*time.Second, 10*time.Millisecond)
}

func item(productID int64, price float64) domain.CartItem {
	return domain.CartItem{ProductID: productID, Name: fmt.Sprintf("p%d", productID), Price: price}
}

func TestAddToCart_NewItemCreatesWithQtyOne(t *testing.T) {
	svc, _, sessions, _ := newHarness(t)
	sessions.signIn("u1")

	require.NoError(t, svc.AddToCart(context.Background(), item(1, 10)))

	waitForCart(t, svc, func(cart []domain.CartItem) bool {
		return len(cart) == 1 && cart[0].ProductID == 1 && cart[0].Qty == 1 && cart[0].Price == 10
	})
}

func TestAddToCart_ExistingItemIncrements(t *testing.T) {
	svc, backend, sessions, _ := newHarness(t)
	sessions.signIn("u1")
	ctx := context.Background()

	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 1 })

	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool {
		return len(cart) == 1 && cart[0].Qty == 2
	})

	// Still a single document, never a duplicate.
	backend.mu.Lock()
	assert.Len(t, backend.carts["u1"], 1)
	backend.mu.Unlock()
}

func TestRemoveFromCart_DecrementsThenDeletes(t *testing.T) {
	svc, _, sessions, _ := newHarness(t)
	sessions.signIn("u1")
	ctx := context.Background()

	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 1 && cart[0].Qty == 1 })
	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 1 && cart[0].Qty == 2 })

	require.NoError(t, svc.RemoveFromCart(ctx, 1))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 1 && cart[0].Qty == 1 })

	require.NoError(t, svc.RemoveFromCart(ctx, 1))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 0 })
}

func TestRemoveFromCart_UnknownItemIsExplicitError(t *testing.T) {
	svc, _, sessions, _ := newHarness(t)
	sessions.signIn("u1")

	err := svc.RemoveFromCart(context.Background(), 99)
	assert.ErrorIs(t, err, repository.ErrItemNotFound)
}

func TestPlaceOrder_SnapshotsCartAndClearsIt(t *testing.T) {
	svc, _, sessions, toasts := newHarness(t)
	pub := &recordingPublisher{}
	svc.SetEventPublisher(pub)
	sessions.signIn("u1")
	ctx := context.Background()

	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 1 })
	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return cart[0].Qty == 2 })
	require.NoError(t, svc.AddToCart(ctx, item(2, 5)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 2 })

	orderID, err := svc.PlaceOrder(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	// PlaceOrder waits for the snapshot, so the order is visible already.
	orders := svc.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, orderID, orders[0].ID)
	require.Len(t, orders[0].Items, 2)
	assert.Equal(t, 25.0, orders[0].Total)

	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 0 })

	toast := <-toasts
	assert.Equal(t, notify.LevelSuccess, toast.Level)

	pub.mu.Lock()
	require.Len(t, pub.orders, 1)
	assert.Equal(t, orderID, pub.orders[0].ID)
	pub.mu.Unlock()
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	svc, _, sessions, _ := newHarness(t)
	sessions.signIn("u1")

	_, err := svc.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestSignOutResetsSnapshots(t *testing.T) {
	svc, _, sessions, _ := newHarness(t)
	sessions.signIn("u1")
	ctx := context.Background()

	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 1 })
	_, err := svc.PlaceOrder(ctx)
	require.NoError(t, err)

	sessions.signOut()

	assert.Empty(t, svc.Cart())
	assert.Empty(t, svc.Orders())
	assert.Empty(t, svc.UserID())
}

func TestSessionFlickerRebuildsFromBackend(t *testing.T) {
	svc, backend, sessions, _ := newHarness(t)
	sessions.signIn("u1")
	ctx := context.Background()

	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 1 && cart[0].Qty == 1 })

	sessions.signOut()
	// Another device changes the stored quantity while we are signed out.
	backend.setQty("u1", 1, 5)
	sessions.signIn("u1")

	// The rebuilt snapshot reflects the stored state, not the stale cache.
	waitForCart(t, svc, func(cart []domain.CartItem) bool {
		return len(cart) == 1 && cart[0].Qty == 5
	})
}

func TestOperationsWithoutSession(t *testing.T) {
	svc, _, _, _ := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.AddToCart(ctx, item(1, 10)), ErrNoSession)
	assert.ErrorIs(t, svc.RemoveFromCart(ctx, 1), ErrNoSession)
	_, err := svc.PlaceOrder(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestMutationFailureEmitsGenericToast(t *testing.T) {
	svc, backend, sessions, toasts := newHarness(t)
	sessions.signIn("u1")

	backend.mu.Lock()
	backend.insertErr = errors.New("backend unavailable")
	backend.mu.Unlock()

	err := svc.AddToCart(context.Background(), item(1, 10))
	require.Error(t, err)

	toast := <-toasts
	assert.Equal(t, notify.LevelError, toast.Level)
	assert.Equal(t, "Something went wrong!", toast.Message)

	// Local state untouched by the failed operation.
	assert.Empty(t, svc.Cart())
}

func TestLiveUpdateFromAnotherWriter(t *testing.T) {
	svc, backend, sessions, _ := newHarness(t)
	sessions.signIn("u1")
	ctx := context.Background()

	require.NoError(t, svc.AddToCart(ctx, item(1, 10)))
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return len(cart) == 1 })

	// A write from elsewhere shows up through the feed without any local call.
	backend.setQty("u1", 1, 7)
	waitForCart(t, svc, func(cart []domain.CartItem) bool { return cart[0].Qty == 7 })
}
