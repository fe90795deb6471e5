package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction is an append-style ledger row. Amount is always the gross,
// unsigned value; the direction of the money movement is implied by Type.
// Status is the only mutable field and may change exactly once, from
// pending to a terminal status.
type Transaction struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TransactionID string             `bson:"transaction_id" json:"transaction_id"`
	UserID        int64              `bson:"user_id" json:"user_id"`
	Type          string             `bson:"type" json:"type"`
	Amount        decimal.Decimal    `bson:"amount" json:"amount"`
	Fee           decimal.Decimal    `bson:"fee" json:"fee"`
	Status        string             `bson:"status" json:"status"`
	PixKey        string             `bson:"pix_key,omitempty" json:"pix_key,omitempty"`
	PixKeyType    string             `bson:"pix_key_type,omitempty" json:"pix_key_type,omitempty"`
	Description   string             `bson:"description" json:"description"`

	// ExternalReferenceID carries the gateway's transaction/withdraw id and is
	// the correlation key used by the webhook reconciler. Unique when present.
	ExternalReferenceID string `bson:"external_reference_id,omitempty" json:"external_reference_id,omitempty"`

	RejectReason string     `bson:"reject_reason,omitempty" json:"reject_reason,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// Transaction types
const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypeInvestment = "investment"
	TransactionTypeReturn     = "return"
	TransactionTypeCheckin    = "checkin"
	TransactionTypeTransfer   = "transfer"
	TransactionTypeCommission = "commission"
)

// Transaction statuses. Completed is assigned only at creation time for
// synchronous internal operations and is terminal.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusApproved  = "approved"
	TransactionStatusRejected  = "rejected"
	TransactionStatusCompleted = "completed"
)

var validTransactionTypes = []string{
	TransactionTypeDeposit,
	TransactionTypeWithdrawal,
	TransactionTypeInvestment,
	TransactionTypeReturn,
	TransactionTypeCheckin,
	TransactionTypeTransfer,
	TransactionTypeCommission,
}

var validTransactionStatuses = []string{
	TransactionStatusPending,
	TransactionStatusApproved,
	TransactionStatusRejected,
	TransactionStatusCompleted,
}

// transactionTransitions is the transition table: pending may move to either
// terminal status; every terminal status is final.
var transactionTransitions = map[string][]string{
	TransactionStatusPending:   {TransactionStatusApproved, TransactionStatusRejected},
	TransactionStatusApproved:  {},
	TransactionStatusRejected:  {},
	TransactionStatusCompleted: {},
}

// IsValidTransition reports whether a status change is legal per the
// transition table.
func IsValidTransition(from, to string) bool {
	for _, allowed := range transactionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NewPendingTransaction creates an externally-settled ledger row (deposits and
// withdrawals awaiting gateway or admin confirmation).
func NewPendingTransaction(userID int64, txType string, amount decimal.Decimal, description string) *Transaction {
	now := time.Now()
	return &Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		Fee:           decimal.Zero,
		Status:        TransactionStatusPending,
		Description:   description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewCompletedTransaction creates a ledger row for a synchronous internal
// operation (investment, return, checkin, transfer, commission) that settles
// in the same call that records it.
func NewCompletedTransaction(userID int64, txType string, amount decimal.Decimal, description string) *Transaction {
	now := time.Now()
	return &Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		Fee:           decimal.Zero,
		Status:        TransactionStatusCompleted,
		Description:   description,
		CreatedAt:     now,
		UpdatedAt:     now,
		ProcessedAt:   &now,
	}
}

func (t *Transaction) Validate() error {
	if t.UserID <= 0 {
		return fmt.Errorf("user ID must be positive")
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("fee cannot be negative")
	}
	if !contains(validTransactionTypes, t.Type) {
		return fmt.Errorf("invalid transaction type: %s", t.Type)
	}
	if !contains(validTransactionStatuses, t.Status) {
		return fmt.Errorf("invalid transaction status: %s", t.Status)
	}
	if t.Type == TransactionTypeWithdrawal && t.Status == TransactionStatusPending && t.PixKey == "" {
		return fmt.Errorf("withdrawal requires a PIX key")
	}
	return nil
}

// IsPending reports whether the row is still awaiting settlement.
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// IsTerminal reports whether no further status change is legal.
func (t *Transaction) IsTerminal() bool {
	return len(transactionTransitions[t.Status]) == 0
}

// NetAmount is the value actually paid out for a withdrawal (gross minus fee).
func (t *Transaction) NetAmount() decimal.Decimal {
	return t.Amount.Sub(t.Fee)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
