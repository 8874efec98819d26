// Package model defines the persistent documents of the marketplace.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a registered account.
// Password holds a bcrypt digest, never plaintext.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Email         string             `bson:"email"`
	Name          string             `bson:"name"`
	Password      string             `bson:"password"`
	AvatarURL     string             `bson:"avatarUrl,omitempty"`
	ResetToken    string             `bson:"resetToken,omitempty"`
	ResetTokenExp time.Time          `bson:"resetTokenExp,omitempty"`
	Cart          Cart               `bson:"cart"`
}

// Cart is owned exclusively by one user.
type Cart struct {
	Items []CartItem `bson:"items"`
}

// CartItem references a course and how many times it was added.
type CartItem struct {
	CourseID primitive.ObjectID `bson:"courseId"`
	Count    int                `bson:"count"`
}

// AddToCart increments the count for the course or appends a new item.
func (u *User) AddToCart(courseID primitive.ObjectID) {
	for i := range u.Cart.Items {
		if u.Cart.Items[i].CourseID == courseID {
			u.Cart.Items[i].Count++
			return
		}
	}
	u.Cart.Items = append(u.Cart.Items, CartItem{CourseID: courseID, Count: 1})
}

// RemoveFromCart decrements the count for the course and drops the item
// once the count reaches zero. Unknown course ids are ignored.
func (u *User) RemoveFromCart(courseID primitive.ObjectID) {
	for i := range u.Cart.Items {
		if u.Cart.Items[i].CourseID != courseID {
			continue
		}
		u.Cart.Items[i].Count--
		if u.Cart.Items[i].Count <= 0 {
			u.Cart.Items = append(u.Cart.Items[:i], u.Cart.Items[i+1:]...)
		}
		return
	}
}

// ClearCart empties the cart.
func (u *User) ClearCart() {
	u.Cart.Items = nil
}
