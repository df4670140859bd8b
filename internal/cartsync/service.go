// Package cartsync keeps in-memory cart and order snapshots synchronized
// with the document store for the signed-in user. The store is the source
// of truth: mutations write to it and the live change feed brings the
// result back; local state is never updated optimistically. The feed
// callback is the sole writer of the snapshots, mutations only read them
// for lookups.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"github.com/Hrithik248/busy-buy/internal/notify"
	"github.com/Hrithik248/busy-buy/internal/repository"
	"github.com/Hrithik248/busy-buy/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNoSession = errors.New("no signed-in user")
	ErrEmptyCart = errors.New("cart is empty")
)

const defaultConfirmTimeout = 5 * time.Second

// SessionSource delivers session transitions; satisfied by session.Manager.
type SessionSource interface {
	Subscribe(handler func(session.Change)) func()
}

// EventPublisher receives a copy of every placed order. Optional.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, order domain.Order) error
}

type Service struct {
	carts  repository.CartRepository
	orders repository.OrderRepository
	pub    EventPublisher
	toasts *notify.Bus
	log    *zap.Logger

	confirmTimeout time.Duration
	sfg            singleflight.Group

	mu        sync.RWMutex
	uid       string
	cart      []domain.CartItem
	orderList []domain.Order
	cancel    context.CancelFunc
	updates   map[int]chan struct{}
	nextSub   int
	unbind    func()
}

func New(carts repository.CartRepository, orders repository.OrderRepository, toasts *notify.Bus, log *zap.Logger) *Service {
	return &Service{
		carts:          carts,
		orders:         orders,
		toasts:         toasts,
		log:            log,
		confirmTimeout: defaultConfirmTimeout,
		updates:        make(map[int]chan struct{}),
	}
}

// SetEventPublisher wires an optional order-placed publisher.
func (s *Service) SetEventPublisher(pub EventPublisher) {
	s.pub = pub
}

// Bind subscribes the service to session transitions. Authenticated starts
// the per-user subscriptions; anything else tears them down and resets the
// snapshots to empty.
func (s *Service) Bind(src SessionSource) {
	s.unbind = src.Subscribe(s.onSession)
}

// Close detaches from the session source and stops any live subscriptions.
func (s *Service) Close() {
	if s.unbind != nil {
		s.unbind()
		s.unbind = nil
	}
	s.stop()
}

func (s *Service) onSession(ch session.Change) {
	// A flicker to the same user still goes through a full stop/start so
	// the snapshot is rebuilt from the stored state, not the stale cache.
	s.stop()
	if ch.State == session.Authenticated && ch.Session != nil {
		s.start(ch.Session.UserID)
	}
}

func (s *Service) start(uid string) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.uid = uid
	s.cancel = cancel
	s.mu.Unlock()

	// Feeds are opened before the initial load so a write landing in
	// between still produces a reload signal.
	cartFeed, err := s.carts.Watch(ctx, uid)
	if err != nil {
		s.log.Error("failed to watch cart", zap.String("user_id", uid), zap.Error(err))
		s.toasts.Error("Something went wrong!")
		cartFeed = nil
	}
	orderFeed, err := s.orders.Watch(ctx, uid)
	if err != nil {
		s.log.Error("failed to watch orders", zap.String("user_id", uid), zap.Error(err))
		s.toasts.Error("Something went wrong!")
		orderFeed = nil
	}

	s.reloadCart(ctx, uid)
	s.reloadOrders(ctx, uid)

	if cartFeed != nil {
		go s.pump(ctx, cartFeed, uid, "cart", s.reloadCart)
	}
	if orderFeed != nil {
		go s.pump(ctx, orderFeed, uid, "orders", s.reloadOrders)
	}
}

func (s *Service) stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.uid = ""
	s.cart = nil
	s.orderList = nil
	s.mu.Unlock()

	s.broadcast()
}

func (s *Service) pump(ctx context.Context, feed repository.ChangeFeed, uid, what string, reload func(context.Context, string)) {
	defer feed.Close()
	for range feed.Events() {
		reload(ctx, uid)
	}
	if err := feed.Err(); err != nil {
		s.log.Error("change feed ended", zap.String("feed", what), zap.String("user_id", uid), zap.Error(err))
	}
}

func (s *Service) reloadCart(ctx context.Context, uid string) {
	// singleflight coalesces bursts of change events into one list call.
	_, err, _ := s.sfg.Do("cart:"+uid, func() (interface{}, error) {
		items, err := s.carts.ListItems(ctx, uid)
		if err != nil {
			return nil, err
		}
		s.setSnapshot(uid, func() { s.cart = items })
		return nil, nil
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("failed to reload cart", zap.String("user_id", uid), zap.Error(err))
	}
}

func (s *Service) reloadOrders(ctx context.Context, uid string) {
	_, err, _ := s.sfg.Do("orders:"+uid, func() (interface{}, error) {
		orders, err := s.orders.ListOrders(ctx, uid)
		if err != nil {
			return nil, err
		}
		s.setSnapshot(uid, func() { s.orderList = orders })
		return nil, nil
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("failed to reload orders", zap.String("user_id", uid), zap.Error(err))
	}
}

// setSnapshot applies fn only if uid is still the bound user, so a late
// reload from a previous session cannot clobber the reset state.
func (s *Service) setSnapshot(uid string, fn func()) {
	s.mu.Lock()
	if s.uid != uid {
		s.mu.Unlock()
		return
	}
	fn()
	s.mu.Unlock()

	s.broadcast()
}

// Cart returns a copy of the current cart snapshot.
func (s *Service) Cart() []domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CartItem, len(s.cart))
	copy(out, s.cart)
	return out
}

// Orders returns a copy of the current order snapshot, newest first.
func (s *Service) Orders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, len(s.orderList))
	copy(out, s.orderList)
	return out
}

// SubscribeUpdates returns a channel signalled after every snapshot change,
// and a function to unsubscribe.
func (s *Service) SubscribeUpdates() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.updates[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.updates, id)
		s.mu.Unlock()
	}
}

func (s *Service) broadcast() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.updates {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// UserID returns the id of the user the snapshots are bound to, empty when
// nobody is signed in.
func (s *Service) UserID() string {
	return s.currentUID()
}

func (s *Service) currentUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid
}

func (s *Service) findItem(productID int64) *domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.cart {
		if s.cart[i].ProductID == productID {
			item := s.cart[i]
			return &item
		}
	}
	return nil
}

// AddToCart increments the quantity of an item already in the snapshot, or
// creates the document with qty 1 and the denormalized product fields. The
// snapshot is updated by the change feed, not here.
func (s *Service) AddToCart(ctx context.Context, item domain.CartItem) error {
	uid := s.currentUID()
	if uid == "" {
		return ErrNoSession
	}

	var err error
	if existing := s.findItem(item.ProductID); existing != nil {
		err = s.carts.AdjustQuantity(ctx, uid, item.ProductID, 1)
	} else {
		item.UserID = uid
		item.Qty = 1
		err = s.carts.InsertItem(ctx, item)
	}
	if err != nil {
		s.log.Error("failed to add to cart",
			zap.String("user_id", uid),
			zap.Int64("product_id", item.ProductID),
			zap.Error(err))
		s.toasts.Error("Something went wrong!")
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

// RemoveFromCart deletes the document when the quantity is 1, otherwise
// decrements it. An id missing from the snapshot is an explicit error, not
// a silent failure.
func (s *Service) RemoveFromCart(ctx context.Context, productID int64) error {
	uid := s.currentUID()
	if uid == "" {
		return ErrNoSession
	}

	existing := s.findItem(productID)
	if existing == nil {
		s.log.Warn("remove requested for item not in cart",
			zap.String("user_id", uid),
			zap.Int64("product_id", productID))
		return repository.ErrItemNotFound
	}

	var err error
	if existing.Qty == 1 {
		err = s.carts.DeleteItem(ctx, uid, productID)
	} else {
		err = s.carts.AdjustQuantity(ctx, uid, productID, -1)
	}
	if err != nil {
		s.log.Error("failed to remove from cart",
			zap.String("user_id", uid),
			zap.Int64("product_id", productID),
			zap.Error(err))
		s.toasts.Error("Something went wrong!")
		return fmt.Errorf("remove from cart: %w", err)
	}
	return nil
}

// PlaceOrder turns the call-time cart snapshot into an order. The create
// and the cart clear run in one transaction, and success is reported only
// after the new order shows up in the subscribed snapshot, so the caller
// sees it the moment this returns.
func (s *Service) PlaceOrder(ctx context.Context) (string, error) {
	uid := s.currentUID()
	if uid == "" {
		return "", ErrNoSession
	}

	cart := s.Cart()
	if len(cart) == 0 {
		return "", ErrEmptyCart
	}

	items := make([]domain.OrderItem, 0, len(cart))
	var total float64
	for _, it := range cart {
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Qty:       it.Qty,
		})
		total += it.Price * float64(it.Qty)
	}

	updates, unsub := s.SubscribeUpdates()
	defer unsub()

	orderID, err := s.orders.PlaceOrder(ctx, uid, items)
	if err != nil {
		s.log.Error("failed to place order", zap.String("user_id", uid), zap.Error(err))
		s.toasts.Error("Something went wrong!")
		return "", fmt.Errorf("place order: %w", err)
	}

	if err := s.awaitOrder(ctx, orderID, updates); err != nil {
		// The order exists; only the snapshot is lagging.
		s.log.Warn("placed order not yet visible in snapshot",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	s.toasts.Success("Order placed successfully!")

	if s.pub != nil {
		order := domain.Order{ID: orderID, UserID: uid, Items: items, Total: total}
		if err := s.pub.OrderPlaced(ctx, order); err != nil {
			s.log.Error("failed to publish order event", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	return orderID, nil
}

func (s *Service) awaitOrder(ctx context.Context, orderID string, updates <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	for {
		if s.hasOrder(orderID) {
			return nil
		}
		select {
		case <-updates:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) hasOrder(orderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.orderList {
		if s.orderList[i].ID == orderID {
			return true
		}
	}
	return false
}
