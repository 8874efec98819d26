package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order is an immutable snapshot of a cart at checkout time. Course data
// is embedded, not referenced, so later edits to a listing do not rewrite
// order history.
type Order struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	User  OrderUser          `bson:"user"`
	Items []OrderItem        `bson:"items"`
	Date  time.Time          `bson:"date"`
}

// OrderUser identifies the buyer at the moment of purchase.
type OrderUser struct {
	UserID primitive.ObjectID `bson:"userId"`
	Name   string             `bson:"name"`
	Email  string             `bson:"email"`
}

// OrderItem is one purchased course with its quantity.
type OrderItem struct {
	Course Course `bson:"course"`
	Count  int    `bson:"count"`
}

// Total returns the order price across all items.
func (o *Order) Total() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Course.Price * int64(item.Count)
	}
	return total
}
