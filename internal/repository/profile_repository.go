package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger-api/internal/models"
)

// ErrInsufficientBalance is returned when a conditional debit matched no
// document, meaning the guarded balance was below the requested amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByUserID(ctx context.Context, userID int64) (*models.Profile, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Profile, error)
	UpdateContact(ctx context.Context, userID int64, fullName, phone, cpf string) error

	// Balance mutations are atomic conditional updates: the read, compare and
	// write happen inside a single UpdateOne so concurrent operations on the
	// same profile cannot lose updates or drive a balance negative.
	CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error
	DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal) error
	CreditAccumulated(ctx context.Context, userID int64, amount decimal.Decimal) error
	TransferAccumulated(ctx context.Context, userID int64, amount decimal.Decimal) error

	CreateIndexes(ctx context.Context) error
}

type profileRepository struct {
	collection *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) ProfileRepository {
	return &profileRepository{
		collection: db.Collection("profiles"),
	}
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	profile.CreatedAt = time.Now()
	profile.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, profile)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	profile.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *profileRepository) GetByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	var profile models.Profile
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (r *profileRepository) GetByReferralCode(ctx context.Context, code string) (*models.Profile, error) {
	var profile models.Profile
	err := r.collection.FindOne(ctx, bson.M{"referral_code": code}).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile by referral code: %w", err)
	}
	return &profile, nil
}

func (r *profileRepository) UpdateContact(ctx context.Context, userID int64, fullName, phone, cpf string) error {
	update := bson.M{
		"$set": bson.M{
			"full_name":  fullName,
			"phone":      phone,
			"cpf":        cpf,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to update profile contact: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("profile not found for user %d", userID)
	}
	return nil
}

func (r *profileRepository) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive")
	}

	update := bson.M{
		"$inc": bson.M{"balance": amount},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("profile not found for user %d", userID)
	}
	return nil
}

func (r *profileRepository) DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive")
	}

	// The $gte guard makes the debit conditional: either the full amount is
	// available and taken, or nothing happens.
	filter := bson.M{
		"user_id": userID,
		"balance": bson.M{"$gte": amount},
	}
	update := bson.M{
		"$inc": bson.M{"balance": amount.Neg()},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (r *profileRepository) CreditAccumulated(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive")
	}

	update := bson.M{
		"$inc": bson.M{"accumulated_balance": amount},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to credit accumulated balance: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("profile not found for user %d", userID)
	}
	return nil
}

func (r *profileRepository) TransferAccumulated(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount must be positive")
	}

	// Zero-sum move: the same UpdateOne debits accumulated and credits
	// available, so no partial state is ever visible.
	filter := bson.M{
		"user_id":             userID,
		"accumulated_balance": bson.M{"$gte": amount},
	}
	update := bson.M{
		"$inc": bson.M{
			"accumulated_balance": amount.Neg(),
			"balance":             amount,
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to transfer accumulated balance: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (r *profileRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "referral_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "referred_by", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create profile indexes: %w", err)
	}
	return nil
}
