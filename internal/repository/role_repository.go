package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger-api/internal/models"
)

type RoleRepository interface {
	// HasRole fails closed: any lookup error reports false alongside the error.
	HasRole(ctx context.Context, userID int64, role string) (bool, error)
	AssignRole(ctx context.Context, userID int64, role string) error
	CreateIndexes(ctx context.Context) error
}

type roleRepository struct {
	collection *mongo.Collection
}

func NewRoleRepository(db *mongo.Database) RoleRepository {
	return &roleRepository{
		collection: db.Collection("user_roles"),
	}
}

func (r *roleRepository) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID, "role": role})
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return count > 0, nil
}

func (r *roleRepository) AssignRole(ctx context.Context, userID int64, role string) error {
	assignment := &models.UserRole{
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now(),
	}

	_, err := r.collection.InsertOne(ctx, assignment)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (r *roleRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "role", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create role indexes: %w", err)
	}
	return nil
}
