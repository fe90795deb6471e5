package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InvestmentPlan is a static catalog entry.
type InvestmentPlan struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	MinAmount      decimal.Decimal    `bson:"min_amount" json:"min_amount"`
	MaxAmount      decimal.Decimal    `bson:"max_amount" json:"max_amount"`
	DailyReturnPct decimal.Decimal    `bson:"daily_return_percentage" json:"daily_return_percentage"`
	DurationDays   int                `bson:"duration_days" json:"duration_days"`
	IsActive       bool               `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// Investment statuses. The only legal transition is active -> completed.
const (
	InvestmentStatusActive    = "active"
	InvestmentStatusCompleted = "completed"
)

// UserInvestment is one funded position. DailyReturn is computed once at
// creation from the plan percentage; later plan edits do not affect it.
type UserInvestment struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      int64              `bson:"user_id" json:"user_id"`
	PlanID      primitive.ObjectID `bson:"plan_id" json:"plan_id"`
	PlanName    string             `bson:"plan_name" json:"plan_name"`
	Amount      decimal.Decimal    `bson:"amount" json:"amount"`
	DailyReturn decimal.Decimal    `bson:"daily_return" json:"daily_return"`
	StartDate   time.Time          `bson:"start_date" json:"start_date"`
	EndDate     time.Time          `bson:"end_date" json:"end_date"`
	Status      string             `bson:"status" json:"status"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// NewUserInvestment builds a position from a plan. The daily return is fixed
// here: amount x plan percentage / 100, rounded to the cent.
func NewUserInvestment(userID int64, plan *InvestmentPlan, amount decimal.Decimal, now time.Time) *UserInvestment {
	return &UserInvestment{
		UserID:      userID,
		PlanID:      plan.ID,
		PlanName:    plan.Name,
		Amount:      amount,
		DailyReturn: amount.Mul(plan.DailyReturnPct).Div(decimal.NewFromInt(100)).Round(2),
		StartDate:   now,
		EndDate:     now.AddDate(0, 0, plan.DurationDays),
		Status:      InvestmentStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (i *UserInvestment) Validate() error {
	if i.UserID <= 0 {
		return fmt.Errorf("user ID must be positive")
	}
	if !i.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if i.DailyReturn.IsNegative() {
		return fmt.Errorf("daily return cannot be negative")
	}
	if !i.EndDate.After(i.StartDate) {
		return fmt.Errorf("end date must be after start date")
	}
	if i.Status != InvestmentStatusActive && i.Status != InvestmentStatusCompleted {
		return fmt.Errorf("invalid investment status: %s", i.Status)
	}
	return nil
}

// IsMatured reports whether the position has reached its end date.
func (i *UserInvestment) IsMatured(now time.Time) bool {
	return !now.Before(i.EndDate)
}

// EligibleForAccrual reports whether at least one full 24h window has elapsed
// since the position started. Whether today's credit already happened is
// decided by the accrual entry uniqueness, not here.
func (i *UserInvestment) EligibleForAccrual(now time.Time) bool {
	return now.Sub(i.StartDate) >= 24*time.Hour
}

// AccrualEntry is the durable idempotency record for daily-return credits:
// at most one row per (investment, UTC date).
type AccrualEntry struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InvestmentID primitive.ObjectID `bson:"investment_id" json:"investment_id"`
	UserID       int64              `bson:"user_id" json:"user_id"`
	AccrualDate  string             `bson:"accrual_date" json:"accrual_date"`
	Amount       decimal.Decimal    `bson:"amount" json:"amount"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// AccrualDateFormat is the layout for AccrualEntry.AccrualDate (UTC calendar day).
const AccrualDateFormat = "2006-01-02"

// AccrualDateFor normalizes an instant to its UTC calendar day key.
func AccrualDateFor(now time.Time) string {
	return now.UTC().Format(AccrualDateFormat)
}
