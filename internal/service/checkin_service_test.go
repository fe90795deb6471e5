package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ledger-api/internal/events"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
)

func TestCheckinService_Checkin(t *testing.T) {
	reward := decimal.NewFromFloat(1.00)

	newService := func(checkins *MockCheckinRepository, profiles *MockProfileRepository, transactions *MockTransactionRepository) CheckinService {
		return NewCheckinService(checkins, profiles, transactions, events.NoopPublisher{}, monitoring.NoopMetrics{}, reward)
	}

	t.Run("first claim of the day credits the reward", func(t *testing.T) {
		checkins := new(MockCheckinRepository)
		profiles := new(MockProfileRepository)
		transactions := new(MockTransactionRepository)

		today := models.AccrualDateFor(time.Now())
		checkins.On("Create", mock.Anything, mock.MatchedBy(func(c *models.DailyCheckin) bool {
			return c.UserID == 1 && c.CheckinDate == today && c.RewardAmount.Equal(reward)
		})).Return(true, nil)
		profiles.On("CreditBalance", mock.Anything, int64(1), reward).Return(nil)
		transactions.On("Create", mock.Anything, mock.MatchedBy(func(tx *models.Transaction) bool {
			return tx.Type == models.TransactionTypeCheckin && tx.Status == models.TransactionStatusCompleted
		})).Return(nil)

		resp, err := newService(checkins, profiles, transactions).Checkin(context.Background(), 1)

		assert.NoError(t, err)
		assert.True(t, resp.Success)
		assert.True(t, resp.Reward.Equal(reward))
		assert.Equal(t, today, resp.CheckinDate)
		checkins.AssertExpectations(t)
		profiles.AssertExpectations(t)
	})

	t.Run("second claim of the day is a conflict with no credit", func(t *testing.T) {
		checkins := new(MockCheckinRepository)
		profiles := new(MockProfileRepository)
		transactions := new(MockTransactionRepository)

		checkins.On("Create", mock.Anything, mock.Anything).Return(false, nil)

		resp, err := newService(checkins, profiles, transactions).Checkin(context.Background(), 1)

		assert.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, ErrCodeStateConflict, resp.ErrorCode)
		profiles.AssertNotCalled(t, "CreditBalance", mock.Anything, mock.Anything, mock.Anything)
		transactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("store failure surfaces as an error", func(t *testing.T) {
		checkins := new(MockCheckinRepository)
		checkins.On("Create", mock.Anything, mock.Anything).Return(false, errors.New("mongo down"))

		_, err := newService(checkins, new(MockProfileRepository), new(MockTransactionRepository)).Checkin(context.Background(), 1)

		assert.Error(t, err)
	})
}

func TestCheckinService_History(t *testing.T) {
	checkins := new(MockCheckinRepository)
	history := []*models.DailyCheckin{
		models.NewDailyCheckin(1, decimal.NewFromInt(1), time.Now()),
	}
	// Out-of-range limits collapse to the default page size.
	checkins.On("GetByUserID", mock.Anything, int64(1), 30).Return(history, nil)

	svc := NewCheckinService(checkins, new(MockProfileRepository), new(MockTransactionRepository), events.NoopPublisher{}, monitoring.NoopMetrics{}, decimal.NewFromInt(1))
	result, err := svc.History(context.Background(), 1, 500)

	assert.NoError(t, err)
	assert.Len(t, result, 1)
	checkins.AssertExpectations(t)
}
