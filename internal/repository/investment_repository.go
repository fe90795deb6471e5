package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger-api/internal/models"
)

type InvestmentRepository interface {
	GetActivePlans(ctx context.Context) ([]*models.InvestmentPlan, error)
	GetPlanByID(ctx context.Context, id primitive.ObjectID) (*models.InvestmentPlan, error)
	CreatePlan(ctx context.Context, plan *models.InvestmentPlan) error

	CreateInvestment(ctx context.Context, investment *models.UserInvestment) error
	GetInvestmentByID(ctx context.Context, id primitive.ObjectID) (*models.UserInvestment, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.UserInvestment, error)
	ListActive(ctx context.Context) ([]*models.UserInvestment, error)

	// CompleteIfActive applies the active -> completed transition
	// conditionally; applied=false means another run already completed it.
	CompleteIfActive(ctx context.Context, id primitive.ObjectID) (bool, error)

	// InsertAccrualEntry is the idempotency gate for daily credits: the unique
	// (investment_id, accrual_date) index turns a second insert for the same
	// day into inserted=false rather than an error.
	InsertAccrualEntry(ctx context.Context, entry *models.AccrualEntry) (bool, error)
	ListAccrualEntries(ctx context.Context, investmentID primitive.ObjectID) ([]*models.AccrualEntry, error)

	CreateIndexes(ctx context.Context) error
}

type investmentRepository struct {
	plans       *mongo.Collection
	investments *mongo.Collection
	accruals    *mongo.Collection
}

func NewInvestmentRepository(db *mongo.Database) InvestmentRepository {
	return &investmentRepository{
		plans:       db.Collection("investment_plans"),
		investments: db.Collection("user_investments"),
		accruals:    db.Collection("accrual_entries"),
	}
}

func (r *investmentRepository) GetActivePlans(ctx context.Context) ([]*models.InvestmentPlan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "min_amount", Value: 1}})

	cursor, err := r.plans.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active plans: %w", err)
	}
	defer cursor.Close(ctx)

	var plans []*models.InvestmentPlan
	if err := cursor.All(ctx, &plans); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %w", err)
	}
	return plans, nil
}

func (r *investmentRepository) GetPlanByID(ctx context.Context, id primitive.ObjectID) (*models.InvestmentPlan, error) {
	var plan models.InvestmentPlan
	err := r.plans.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

func (r *investmentRepository) CreatePlan(ctx context.Context, plan *models.InvestmentPlan) error {
	plan.CreatedAt = time.Now()

	result, err := r.plans.InsertOne(ctx, plan)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	plan.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *investmentRepository) CreateInvestment(ctx context.Context, investment *models.UserInvestment) error {
	if err := investment.Validate(); err != nil {
		return fmt.Errorf("invalid investment: %w", err)
	}

	result, err := r.investments.InsertOne(ctx, investment)
	if err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}
	investment.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *investmentRepository) GetInvestmentByID(ctx context.Context, id primitive.ObjectID) (*models.UserInvestment, error) {
	var investment models.UserInvestment
	err := r.investments.FindOne(ctx, bson.M{"_id": id}).Decode(&investment)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return &investment, nil
}

func (r *investmentRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.UserInvestment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.investments.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	defer cursor.Close(ctx)

	var investments []*models.UserInvestment
	if err := cursor.All(ctx, &investments); err != nil {
		return nil, fmt.Errorf("failed to decode investments: %w", err)
	}
	return investments, nil
}

func (r *investmentRepository) ListActive(ctx context.Context) ([]*models.UserInvestment, error) {
	cursor, err := r.investments.Find(ctx, bson.M{"status": models.InvestmentStatusActive})
	if err != nil {
		return nil, fmt.Errorf("failed to list active investments: %w", err)
	}
	defer cursor.Close(ctx)

	var investments []*models.UserInvestment
	if err := cursor.All(ctx, &investments); err != nil {
		return nil, fmt.Errorf("failed to decode active investments: %w", err)
	}
	return investments, nil
}

func (r *investmentRepository) CompleteIfActive(ctx context.Context, id primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": models.InvestmentStatusActive,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.InvestmentStatusCompleted,
			"updated_at": time.Now(),
		},
	}

	result, err := r.investments.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to complete investment: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *investmentRepository) InsertAccrualEntry(ctx context.Context, entry *models.AccrualEntry) (bool, error) {
	entry.CreatedAt = time.Now()

	result, err := r.accruals.InsertOne(ctx, entry)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert accrual entry: %w", err)
	}

	entry.ID = result.InsertedID.(primitive.ObjectID)
	return true, nil
}

func (r *investmentRepository) ListAccrualEntries(ctx context.Context, investmentID primitive.ObjectID) ([]*models.AccrualEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "accrual_date", Value: 1}})

	cursor, err := r.accruals.Find(ctx, bson.M{"investment_id": investmentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accrual entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.AccrualEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode accrual entries: %w", err)
	}
	return entries, nil
}

func (r *investmentRepository) CreateIndexes(ctx context.Context) error {
	investmentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}},
		},
	}
	if _, err := r.investments.Indexes().CreateMany(ctx, investmentIndexes); err != nil {
		return fmt.Errorf("failed to create investment indexes: %w", err)
	}

	accrualIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "investment_id", Value: 1},
				{Key: "accrual_date", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "accrual_date", Value: -1}},
		},
	}
	if _, err := r.accruals.Indexes().CreateMany(ctx, accrualIndexes); err != nil {
		return fmt.Errorf("failed to create accrual indexes: %w", err)
	}

	return nil
}
