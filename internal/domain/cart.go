package domain

import "time"

// CartItem is one product line in a user's cart. There is exactly one
// document per (user, product) pair; quantity is always positive, an item
// that would reach zero is deleted instead.
type CartItem struct {
	UserID    string    `bson:"user_id" json:"-"`
	ProductID int64     `bson:"product_id" json:"product_id"`
	Name      string    `bson:"name" json:"name"`
	Price     float64   `bson:"price" json:"price"`
	ImageURL  string    `bson:"image_url" json:"image_url"`
	Qty       int       `bson:"qty" json:"qty"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}
