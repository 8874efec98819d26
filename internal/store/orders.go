package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yourusername/course-market/internal/model"
)

// OrderStore persists completed orders.
type OrderStore struct {
	coll *mongo.Collection
}

// NewOrderStore creates an OrderStore on the given database.
func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{coll: db.Collection("orders")}
}

// Create inserts a new order and fills in the assigned id.
func (s *OrderStore) Create(ctx context.Context, order *model.Order) error {
	res, err := s.coll.InsertOne(ctx, order)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = id
	}
	return nil
}

// FindByUser returns the user's orders, newest first.
func (s *OrderStore) FindByUser(ctx context.Context, userID primitive.ObjectID) ([]model.Order, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"user.userId": userID},
		options.Find().SetSort(bson.D{{Key: "date", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []model.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}
