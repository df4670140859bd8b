package repository

import (
	"context"
	"errors"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrItemNotFound   = errors.New("item not found in cart")
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("a user with this email already exists")
)

// ChangeFeed signals every observed change to a watched scope. The receiver
// re-reads the collection on each signal; the feed itself carries no
// payload, the database is the source of truth.
type ChangeFeed interface {
	// Events yields one value per change. The channel closes when the feed
	// ends (context cancelled or stream error).
	Events() <-chan struct{}
	// Err reports why the feed ended, nil on plain cancellation.
	Err() error
	Close() error
}

// CartRepository defines cart data operations. Consumers define this
// interface, not the MongoDB implementation.
type CartRepository interface {
	ListItems(ctx context.Context, userID string) ([]domain.CartItem, error)
	InsertItem(ctx context.Context, item domain.CartItem) error
	AdjustQuantity(ctx context.Context, userID string, productID int64, delta int) error
	DeleteItem(ctx context.Context, userID string, productID int64) error
	Watch(ctx context.Context, userID string) (ChangeFeed, error)
}

// OrderRepository defines order data operations.
type OrderRepository interface {
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	// PlaceOrder creates the order and clears the user's cart in a single
	// multi-document transaction, returning the new order id. CreatedAt is
	// assigned by the server clock inside the transaction.
	PlaceOrder(ctx context.Context, userID string, items []domain.OrderItem) (string, error)
	Watch(ctx context.Context, userID string) (ChangeFeed, error)
}

// UserRepository defines account data operations.
type UserRepository interface {
	Create(ctx context.Context, u domain.User) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateDisplayName(ctx context.Context, id primitive.ObjectID, name string) error
}
