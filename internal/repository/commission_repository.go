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

type CommissionRepository interface {
	Create(ctx context.Context, commission *models.AffiliateCommission) error
	GetByBeneficiary(ctx context.Context, beneficiaryID int64, limit, offset int) ([]*models.AffiliateCommission, error)
	GetByInvestment(ctx context.Context, investmentID primitive.ObjectID) ([]*models.AffiliateCommission, error)
	CreateIndexes(ctx context.Context) error
}

type commissionRepository struct {
	collection *mongo.Collection
}

func NewCommissionRepository(db *mongo.Database) CommissionRepository {
	return &commissionRepository{
		collection: db.Collection("affiliate_commissions"),
	}
}

func (r *commissionRepository) Create(ctx context.Context, commission *models.AffiliateCommission) error {
	if err := commission.Validate(); err != nil {
		return fmt.Errorf("invalid commission: %w", err)
	}

	result, err := r.collection.InsertOne(ctx, commission)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("commission for investment %s level %d already exists", commission.InvestmentID.Hex(), commission.Level)
		}
		return fmt.Errorf("failed to create commission: %w", err)
	}

	commission.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *commissionRepository) GetByBeneficiary(ctx context.Context, beneficiaryID int64, limit, offset int) ([]*models.AffiliateCommission, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, bson.M{"beneficiary_id": beneficiaryID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	defer cursor.Close(ctx)

	var commissions []*models.AffiliateCommission
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, fmt.Errorf("failed to decode commissions: %w", err)
	}
	return commissions, nil
}

func (r *commissionRepository) GetByInvestment(ctx context.Context, investmentID primitive.ObjectID) ([]*models.AffiliateCommission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "level", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"investment_id": investmentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions by investment: %w", err)
	}
	defer cursor.Close(ctx)

	var commissions []*models.AffiliateCommission
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, fmt.Errorf("failed to decode commissions: %w", err)
	}
	return commissions, nil
}

func (r *commissionRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "beneficiary_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			// One commission per (investment, level): makes the fan-out safe
			// to retry without double-paying an ancestor.
			Keys: bson.D{
				{Key: "investment_id", Value: 1},
				{Key: "level", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create commission indexes: %w", err)
	}
	return nil
}
