package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AffiliateCommission is one payout row in the referral fan-out. Rows are
// append-only: created when a referred user funds an investment, never mutated.
type AffiliateCommission struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BeneficiaryID int64              `bson:"beneficiary_id" json:"beneficiary_id"`
	SourceUserID  int64              `bson:"source_user_id" json:"source_user_id"`
	InvestmentID  primitive.ObjectID `bson:"investment_id" json:"investment_id"`
	Level         int                `bson:"level" json:"level"`
	Amount        decimal.Decimal    `bson:"amount" json:"amount"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// MaxCommissionLevels caps the referral walk.
const MaxCommissionLevels = 3

func NewAffiliateCommission(beneficiaryID, sourceUserID int64, investmentID primitive.ObjectID, level int, amount decimal.Decimal) *AffiliateCommission {
	return &AffiliateCommission{
		BeneficiaryID: beneficiaryID,
		SourceUserID:  sourceUserID,
		InvestmentID:  investmentID,
		Level:         level,
		Amount:        amount,
		CreatedAt:     time.Now(),
	}
}

func (c *AffiliateCommission) Validate() error {
	if c.BeneficiaryID <= 0 || c.SourceUserID <= 0 {
		return fmt.Errorf("beneficiary and source user IDs must be positive")
	}
	if c.BeneficiaryID == c.SourceUserID {
		return fmt.Errorf("a user cannot earn commission on their own investment")
	}
	if c.Level < 1 || c.Level > MaxCommissionLevels {
		return fmt.Errorf("commission level must be between 1 and %d", MaxCommissionLevels)
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("commission amount must be positive")
	}
	return nil
}
