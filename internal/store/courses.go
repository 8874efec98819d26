package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/yourusername/course-market/internal/model"
)

// CourseStore persists course listings.
type CourseStore struct {
	coll *mongo.Collection
}

// NewCourseStore creates a CourseStore on the given database.
func NewCourseStore(db *mongo.Database) *CourseStore {
	return &CourseStore{coll: db.Collection("courses")}
}

// Create inserts a new course and fills in the assigned id.
func (s *CourseStore) Create(ctx context.Context, course *model.Course) error {
	res, err := s.coll.InsertOne(ctx, course)
	if err != nil {
		return fmt.Errorf("failed to insert course: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		course.ID = id
	}
	return nil
}

// FindAll returns every listing.
func (s *CourseStore) FindAll(ctx context.Context) ([]model.Course, error) {
	cursor, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer cursor.Close(ctx)

	var courses []model.Course
	if err := cursor.All(ctx, &courses); err != nil {
		return nil, fmt.Errorf("failed to decode courses: %w", err)
	}
	return courses, nil
}

// FindByID returns one listing.
func (s *CourseStore) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Course, error) {
	var course model.Course
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&course)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query course: %w", err)
	}
	return &course, nil
}

// FindByIDs returns the listings for the given ids, keyed by id. Missing
// courses are simply absent from the result, which lets callers drop
// stale cart references.
func (s *CourseStore) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.Course, error) {
	if len(ids) == 0 {
		return map[primitive.ObjectID]model.Course{}, nil
	}
	cursor, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer cursor.Close(ctx)

	found := make(map[primitive.ObjectID]model.Course, len(ids))
	for cursor.Next(ctx) {
		var course model.Course
		if err := cursor.Decode(&course); err != nil {
			return nil, fmt.Errorf("failed to decode course: %w", err)
		}
		found[course.ID] = course
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}
	return found, nil
}

// Update rewrites the editable fields of a listing. Ownership is part of
// the filter, so a non-owner update matches nothing.
func (s *CourseStore) Update(ctx context.Context, course *model.Course) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": course.ID, "userId": course.UserID},
		bson.M{"$set": bson.M{
			"title": course.Title,
			"price": course.Price,
			"img":   course.Img,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a listing owned by the given user.
func (s *CourseStore) Delete(ctx context.Context, id, userID primitive.ObjectID) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	return nil
}
