package model

import "go.mongodb.org/mongo-driver/bson/primitive"

// Course is a marketplace listing. UserID is the owning account.
type Course struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	Title  string             `bson:"title"`
	Price  int64              `bson:"price"`
	Img    string             `bson:"img,omitempty"`
	UserID primitive.ObjectID `bson:"userId"`
}

// OwnedBy reports whether the course belongs to the given user.
func (c *Course) OwnedBy(userID primitive.ObjectID) bool {
	return c.UserID == userID
}
