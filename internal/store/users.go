package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yourusername/course-market/internal/model"
)

// UserStore persists user accounts in the users collection.
type UserStore struct {
	coll *mongo.Collection
}

// NewUserStore creates a UserStore on the given database.
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection("users")}
}

// EnsureIndexes creates the unique email index. The index is the backstop
// for the registration check-then-insert race.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create email index: %w", err)
	}
	return nil
}

// Create inserts a new user and fills in the assigned id.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	res, err := s.coll.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}

// FindByEmail looks an account up by its normalized email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// FindByID looks an account up by id.
func (s *UserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindByResetToken resolves a not-yet-expired reset token to its account.
// Expired, consumed, and unknown tokens are indistinguishable: all return
// ErrNotFound.
func (s *UserStore) FindByResetToken(ctx context.Context, token string, now time.Time) (*model.User, error) {
	return s.findOne(ctx, bson.M{
		"resetToken":    token,
		"resetTokenExp": bson.M{"$gt": now},
	})
}

// SetResetToken stores a reset token and its expiry on the account.
func (s *UserStore) SetResetToken(ctx context.Context, id primitive.ObjectID, token string, exp time.Time) error {
	res, err := s.coll.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"resetToken": token, "resetTokenExp": exp},
	})
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeResetToken atomically sets the new password hash and clears the
// token. The filter re-checks (id, token, expiry) in the same operation,
// so of two concurrent submissions only the first can match; the loser
// gets ErrNotFound.
func (s *UserStore) ConsumeResetToken(ctx context.Context, id primitive.ObjectID, token, passwordHash string, now time.Time) error {
	filter := bson.M{
		"_id":           id,
		"resetToken":    token,
		"resetTokenExp": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set":   bson.M{"password": passwordHash},
		"$unset": bson.M{"resetToken": "", "resetTokenExp": ""},
	}
	err := s.coll.FindOneAndUpdate(ctx, filter, update).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	return nil
}

// UpdateProfile changes the display name and, when non-empty, the avatar.
func (s *UserStore) UpdateProfile(ctx context.Context, id primitive.ObjectID, name, avatarURL string) error {
	set := bson.M{"name": name}
	if avatarURL != "" {
		set["avatarUrl"] = avatarURL
	}
	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCart replaces the stored cart for the account.
func (s *UserStore) UpdateCart(ctx context.Context, id primitive.ObjectID, cart model.Cart) error {
	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"cart": cart}})
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var user model.User
	err := s.coll.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}
