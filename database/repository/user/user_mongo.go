package userRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoUserDirectory struct {
	coll *mongo.Collection
}

// NewMongoUserDirectory reads display names from the "users" collection.
func NewMongoUserDirectory(db *mongo.Database) UserDirectory {
	return &mongoUserDirectory{coll: db.Collection("users")}
}

func (r *mongoUserDirectory) GetDisplayName(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc struct {
		FullName string `bson:"fullName"`
		Username string `bson:"username"`
	}
	proj := options.FindOne().SetProjection(bson.M{"fullName": 1, "username": 1})
	if err := r.coll.FindOne(ctx, bson.M{"id": userID}, proj).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}
	if doc.FullName != "" {
		return doc.FullName, nil
	}
	return doc.Username, nil
}
