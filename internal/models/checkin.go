package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DailyCheckin records one reward claim per (user, UTC date), enforced by a
// unique index on the pair.
type DailyCheckin struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       int64              `bson:"user_id" json:"user_id"`
	CheckinDate  string             `bson:"checkin_date" json:"checkin_date"`
	RewardAmount decimal.Decimal    `bson:"reward_amount" json:"reward_amount"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

func NewDailyCheckin(userID int64, reward decimal.Decimal, now time.Time) *DailyCheckin {
	return &DailyCheckin{
		UserID:       userID,
		CheckinDate:  now.UTC().Format(AccrualDateFormat),
		RewardAmount: reward,
		CreatedAt:    now,
	}
}
