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

type TransactionRepository interface {
	Create(ctx context.Context, transaction *models.Transaction) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetByExternalReference(ctx context.Context, externalRef string) (*models.Transaction, error)
	SetExternalReference(ctx context.Context, id primitive.ObjectID, externalRef string) error

	// MarkApprovedIfPending and MarkRejectedIfPending implement the
	// conditional status transition: the filter requires status=pending, so a
	// replayed webhook or a racing admin action matches nothing and reports
	// applied=false instead of double-settling.
	MarkApprovedIfPending(ctx context.Context, id primitive.ObjectID) (bool, error)
	MarkRejectedIfPending(ctx context.Context, id primitive.ObjectID, reason string) (bool, error)

	GetByUserID(ctx context.Context, userID int64, filter TransactionFilter, limit, offset int) ([]*models.Transaction, error)
	CountByUserID(ctx context.Context, userID int64, filter TransactionFilter) (int64, error)
	GetPendingByType(ctx context.Context, txType string, limit int) ([]*models.Transaction, error)
	CreateIndexes(ctx context.Context) error
}

// TransactionFilter narrows history queries; empty fields are ignored.
type TransactionFilter struct {
	Type   string
	Status string
}

type transactionRepository struct {
	collection *mongo.Collection
}

func NewTransactionRepository(db *mongo.Database) TransactionRepository {
	return &transactionRepository{
		collection: db.Collection("transactions"),
	}
}

func (r *transactionRepository) Create(ctx context.Context, transaction *models.Transaction) error {
	if err := transaction.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	transaction.CreatedAt = time.Now()
	transaction.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, transaction)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("transaction with external reference %s already exists", transaction.ExternalReferenceID)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	transaction.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&transaction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction by ID: %w", err)
	}
	return &transaction, nil
}

func (r *transactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"transaction_id": transactionID}).Decode(&transaction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &transaction, nil
}

// GetByExternalReference looks up by equality on the indexed correlation
// column. Returns (nil, nil) when no row carries the reference.
func (r *transactionRepository) GetByExternalReference(ctx context.Context, externalRef string) (*models.Transaction, error) {
	if externalRef == "" {
		return nil, fmt.Errorf("external reference is required")
	}

	var transaction models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"external_reference_id": externalRef}).Decode(&transaction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction by external reference: %w", err)
	}
	return &transaction, nil
}

func (r *transactionRepository) SetExternalReference(ctx context.Context, id primitive.ObjectID, externalRef string) error {
	update := bson.M{
		"$set": bson.M{
			"external_reference_id": externalRef,
			"updated_at":            time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("external reference %s already assigned", externalRef)
		}
		return fmt.Errorf("failed to set external reference: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("transaction not found")
	}
	return nil
}

func (r *transactionRepository) MarkApprovedIfPending(ctx context.Context, id primitive.ObjectID) (bool, error) {
	return r.transitionIfPending(ctx, id, models.TransactionStatusApproved, "")
}

func (r *transactionRepository) MarkRejectedIfPending(ctx context.Context, id primitive.ObjectID, reason string) (bool, error) {
	return r.transitionIfPending(ctx, id, models.TransactionStatusRejected, reason)
}

func (r *transactionRepository) transitionIfPending(ctx context.Context, id primitive.ObjectID, status, reason string) (bool, error) {
	if !models.IsValidTransition(models.TransactionStatusPending, status) {
		return false, fmt.Errorf("illegal transition pending -> %s", status)
	}

	now := time.Now()
	set := bson.M{
		"status":       status,
		"updated_at":   now,
		"processed_at": now,
	}
	if reason != "" {
		set["reject_reason"] = reason
	}

	filter := bson.M{
		"_id":    id,
		"status": models.TransactionStatusPending,
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to transition transaction: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *transactionRepository) GetByUserID(ctx context.Context, userID int64, filter TransactionFilter, limit, offset int) ([]*models.Transaction, error) {
	query := r.buildUserQuery(userID, filter)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var transactions []*models.Transaction
	if err := cursor.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return transactions, nil
}

func (r *transactionRepository) CountByUserID(ctx context.Context, userID int64, filter TransactionFilter) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, r.buildUserQuery(userID, filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (r *transactionRepository) GetPendingByType(ctx context.Context, txType string, limit int) ([]*models.Transaction, error) {
	query := bson.M{
		"type":   txType,
		"status": models.TransactionStatusPending,
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var transactions []*models.Transaction
	if err := cursor.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("failed to decode pending transactions: %w", err)
	}
	return transactions, nil
}

func (r *transactionRepository) buildUserQuery(userID int64, filter TransactionFilter) bson.M {
	query := bson.M{"user_id": userID}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return query
}

func (r *transactionRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// The webhook correlation key: unique whenever present so one
			// gateway id can never settle two rows.
			Keys: bson.D{{Key: "external_reference_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"external_reference_id": bson.M{"$exists": true, "$type": "string"},
				}),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}
	return nil
}
