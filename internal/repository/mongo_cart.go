package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{
		collection: db.Collection("cart_items"),
	}
}

// cartItemID is the composite document id: one document per (user, product).
// The user prefix also lets the change stream match delete events, which
// carry only the document key.
func cartItemID(userID string, productID int64) string {
	return fmt.Sprintf("%s:%d", userID, productID)
}

func (m *mongoCartRepository) ListItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	filter := bson.M{"user_id": userID}
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}})

	cur, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}

	var items []domain.CartItem
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return items, nil
}

func (m *mongoCartRepository) InsertItem(ctx context.Context, item domain.CartItem) error {
	item.AddedAt = time.Now().UTC()

	doc := bson.M{
		"_id":        cartItemID(item.UserID, item.ProductID),
		"user_id":    item.UserID,
		"product_id": item.ProductID,
		"name":       item.Name,
		"price":      item.Price,
		"image_url":  item.ImageURL,
		"qty":        item.Qty,
		"added_at":   item.AddedAt,
	}

	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

func (m *mongoCartRepository) AdjustQuantity(ctx context.Context, userID string, productID int64, delta int) error {
	filter := bson.M{"_id": cartItemID(userID, productID)}
	update := bson.M{"$inc": bson.M{"qty": delta}}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to adjust quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoCartRepository) DeleteItem(ctx context.Context, userID string, productID int64) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": cartItemID(userID, productID)})
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoCartRepository) Watch(ctx context.Context, userID string) (ChangeFeed, error) {
	return watchCollection(ctx, m.collection, userScopedPipeline(userID, userID+":"))
}

func (m *mongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
