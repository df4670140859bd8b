package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoOrderRepository struct {
	orders *mongo.Collection
	cart   *mongo.Collection
	client *mongo.Client
}

func NewMongoOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepository{
		orders: db.Collection("orders"),
		cart:   db.Collection("cart_items"),
		client: db.Client(),
	}
}

func (m *mongoOrderRepository) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	filter := bson.M{"user_id": userID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cur, err := m.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	var orders []domain.Order
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// PlaceOrder runs one transaction: insert the order, stamp created_at with
// the server clock, delete every cart item for the user. A concurrent
// add-to-cart either lands before the delete and is part of no order, or
// after the transaction and survives into the next cart.
func (m *mongoOrderRepository) PlaceOrder(ctx context.Context, userID string, items []domain.OrderItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("refusing to place an empty order")
	}

	orderID := uuid.NewString()

	var total float64
	for _, it := range items {
		total += it.Price * float64(it.Qty)
	}

	session, err := m.client.StartSession()
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		doc := bson.M{
			"_id":     orderID,
			"user_id": userID,
			"items":   items,
			"total":   total,
			// placeholder, replaced by the server clock below
			"created_at": time.Time{},
		}
		if _, err := m.orders.InsertOne(sc, doc); err != nil {
			return nil, fmt.Errorf("insert order: %w", err)
		}

		// $currentDate resolves on the server, keeping order timestamps
		// consistent across clients with skewed clocks.
		stamp := bson.M{"$currentDate": bson.M{"created_at": true}}
		if _, err := m.orders.UpdateByID(sc, orderID, stamp); err != nil {
			return nil, fmt.Errorf("stamp order: %w", err)
		}

		if _, err := m.cart.DeleteMany(sc, bson.M{"user_id": userID}); err != nil {
			return nil, fmt.Errorf("clear cart: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return "", fmt.Errorf("place order transaction: %w", err)
	}

	return orderID, nil
}

func (m *mongoOrderRepository) Watch(ctx context.Context, userID string) (ChangeFeed, error) {
	// Orders are never deleted, so matching on the inserted document is
	// sufficient.
	return watchCollection(ctx, m.orders, userScopedPipeline(userID, ""))
}

func (m *mongoOrderRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	if _, err := m.orders.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
