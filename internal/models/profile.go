package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile holds the per-user money state. Balance is spendable; AccumulatedBalance
// holds matured yield that must be explicitly transferred before it can be spent.
type Profile struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID             int64              `bson:"user_id" json:"user_id"`
	FullName           string             `bson:"full_name" json:"full_name"`
	Email              string             `bson:"email" json:"email"`
	Phone              string             `bson:"phone" json:"phone"`
	CPF                string             `bson:"cpf" json:"cpf"`
	Balance            decimal.Decimal    `bson:"balance" json:"balance"`
	AccumulatedBalance decimal.Decimal    `bson:"accumulated_balance" json:"accumulated_balance"`
	ReferralCode       string             `bson:"referral_code" json:"referral_code"`
	ReferredBy         *int64             `bson:"referred_by,omitempty" json:"referred_by,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

func NewProfile(userID int64, fullName, email string) *Profile {
	now := time.Now()
	return &Profile{
		UserID:             userID,
		FullName:           fullName,
		Email:              email,
		Balance:            decimal.Zero,
		AccumulatedBalance: decimal.Zero,
		ReferralCode:       fmt.Sprintf("REF%d%d", userID, now.Unix()%100000),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (p *Profile) Validate() error {
	if p.UserID <= 0 {
		return fmt.Errorf("user ID must be positive")
	}
	if p.Balance.IsNegative() {
		return fmt.Errorf("balance cannot be negative")
	}
	if p.AccumulatedBalance.IsNegative() {
		return fmt.Errorf("accumulated balance cannot be negative")
	}
	if p.ReferralCode == "" {
		return fmt.Errorf("referral code is required")
	}
	return nil
}

// HasDocument reports whether the profile carries a CPF usable for gateway charges.
func (p *Profile) HasDocument() bool {
	return p.CPF != ""
}

// UserRole is a role assignment checked by admin-only operations.
type UserRole struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    int64              `bson:"user_id" json:"user_id"`
	Role      string             `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
