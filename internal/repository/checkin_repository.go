package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger-api/internal/models"
)

type CheckinRepository interface {
	// Create inserts today's check-in; inserted=false means the unique
	// (user_id, checkin_date) index rejected a second claim for the same day.
	Create(ctx context.Context, checkin *models.DailyCheckin) (bool, error)
	GetByUserID(ctx context.Context, userID int64, limit int) ([]*models.DailyCheckin, error)
	CreateIndexes(ctx context.Context) error
}

type checkinRepository struct {
	collection *mongo.Collection
}

func NewCheckinRepository(db *mongo.Database) CheckinRepository {
	return &checkinRepository{
		collection: db.Collection("daily_checkins"),
	}
}

func (r *checkinRepository) Create(ctx context.Context, checkin *models.DailyCheckin) (bool, error) {
	result, err := r.collection.InsertOne(ctx, checkin)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create checkin: %w", err)
	}

	checkin.ID = result.InsertedID.(primitive.ObjectID)
	return true, nil
}

func (r *checkinRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*models.DailyCheckin, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "checkin_date", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkins: %w", err)
	}
	defer cursor.Close(ctx)

	var checkins []*models.DailyCheckin
	if err := cursor.All(ctx, &checkins); err != nil {
		return nil, fmt.Errorf("failed to decode checkins: %w", err)
	}
	return checkins, nil
}

func (r *checkinRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "checkin_date", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create checkin indexes: %w", err)
	}
	return nil
}
