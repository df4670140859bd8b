package domain

import "time"

// OrderItem is a line in a placed order, copied from the cart at placement
// time. It is a snapshot, not a reference to a live cart item.
type OrderItem struct {
	ProductID int64   `bson:"product_id" json:"product_id"`
	Name      string  `bson:"name" json:"name"`
	Price     float64 `bson:"price" json:"price"`
	Qty       int     `bson:"qty" json:"qty"`
}

// Order is an immutable record of a completed purchase. CreatedAt is
// assigned by the database server clock, never by the client.
type Order struct {
	ID        string      `bson:"_id" json:"id"`
	UserID    string      `bson:"user_id" json:"-"`
	Items     []OrderItem `bson:"items" json:"items"`
	Total     float64     `bson:"total" json:"total"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}
