package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ledger-api/internal/events"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/repository"
)

type MockInvestmentRepository struct {
	mock.Mock
}

func (m *MockInvestmentRepository) GetActivePlans(ctx context.Context) ([]*models.InvestmentPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InvestmentPlan), args.Error(1)
}

func (m *MockInvestmentRepository) GetPlanByID(ctx context.Context, id primitive.ObjectID) (*models.InvestmentPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InvestmentPlan), args.Error(1)
}

func (m *MockInvestmentRepository) CreatePlan(ctx context.Context, plan *models.InvestmentPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockInvestmentRepository) CreateInvestment(ctx context.Context, investment *models.UserInvestment) error {
	args := m.Called(ctx, investment)
	return args.Error(0)
}

func (m *MockInvestmentRepository) GetInvestmentByID(ctx context.Context, id primitive.ObjectID) (*models.UserInvestment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserInvestment), args.Error(1)
}

func (m *MockInvestmentRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.UserInvestment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserInvestment), args.Error(1)
}

func (m *MockInvestmentRepository) ListActive(ctx context.Context) ([]*models.UserInvestment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserInvestment), args.Error(1)
}

func (m *MockInvestmentRepository) CompleteIfActive(ctx context.Context, id primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvestmentRepository) InsertAccrualEntry(ctx context.Context, entry *models.AccrualEntry) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvestmentRepository) ListAccrualEntries(ctx context.Context, investmentID primitive.ObjectID) ([]*models.AccrualEntry, error) {
	args := m.Called(ctx, investmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AccrualEntry), args.Error(1)
}

func (m *MockInvestmentRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfileRepository) GetByReferralCode(ctx context.Context, code string) (*models.Profile, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfileRepository) UpdateContact(ctx context.Context, userID int64, fullName, phone, cpf string) error {
	args := m.Called(ctx, userID, fullName, phone, cpf)
	return args.Error(0)
}

func (m *MockProfileRepository) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockProfileRepository) DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockProfileRepository) CreditAccumulated(ctx context.Context, userID int64, amount decimal.Decimal) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockProfileRepository) TransferAccumulated(ctx context.Context, userID int64, amount decimal.Decimal) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockProfileRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, transaction *models.Transaction) error {
	args := m.Called(ctx, transaction)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByExternalReference(ctx context.Context, externalRef string) (*models.Transaction, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SetExternalReference(ctx context.Context, id primitive.ObjectID, externalRef string) error {
	args := m.Called(ctx, id, externalRef)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkApprovedIfPending(ctx context.Context, id primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) MarkRejectedIfPending(ctx context.Context, id primitive.ObjectID, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) GetByUserID(ctx context.Context, userID int64, filter repository.TransactionFilter, limit, offset int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) CountByUserID(ctx context.Context, userID int64, filter repository.TransactionFilter) (int64, error) {
	args := m.Called(ctx, userID, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionRepository) GetPendingByType(ctx context.Context, txType string, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, txType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockNotificationRepository) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, id primitive.ObjectID, userID int64) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockNotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func activePosition(userID int64, startedAgo time.Duration, duration time.Duration, now time.Time, dailyReturn decimal.Decimal) *models.UserInvestment {
	start := now.Add(-startedAgo)
	return &models.UserInvestment{
		ID:          primitive.NewObjectID(),
		UserID:      userID,
		PlanName:    "Plano Ouro",
		Amount:      decimal.NewFromInt(1000),
		DailyReturn: dailyReturn,
		StartDate:   start,
		EndDate:     start.Add(duration),
		Status:      models.InvestmentStatusActive,
	}
}

func TestBuildAccrualPlan(t *testing.T) {
	now := time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
	dailyReturn := decimal.NewFromInt(15)

	t.Run("position past 24h gets today's credit", func(t *testing.T) {
		position := activePosition(1, 48*time.Hour, 30*24*time.Hour, now, dailyReturn)
		plan := BuildAccrualPlan(now, []*models.UserInvestment{position})

		assert.Len(t, plan.Accruals, 1)
		assert.Empty(t, plan.Completions)
		assert.Equal(t, "2025-06-15", plan.Accruals[0].Date)
		assert.True(t, plan.Accruals[0].Amount.Equal(dailyReturn))
	})

	t.Run("position younger than 24h is skipped", func(t *testing.T) {
		position := activePosition(1, 10*time.Hour, 30*24*time.Hour, now, dailyReturn)
		plan := BuildAccrualPlan(now, []*models.UserInvestment{position})

		assert.Empty(t, plan.Accruals)
		assert.Empty(t, plan.Completions)
	})

	t.Run("exactly 24h is eligible", func(t *testing.T) {
		position := activePosition(1, 24*time.Hour, 30*24*time.Hour, now, dailyReturn)
		plan := BuildAccrualPlan(now, []*models.UserInvestment{position})

		assert.Len(t, plan.Accruals, 1)
	})

	t.Run("matured position is completed with no further credit", func(t *testing.T) {
		position := activePosition(1, 31*24*time.Hour, 30*24*time.Hour, now, dailyReturn)
		plan := BuildAccrualPlan(now, []*models.UserInvestment{position})

		assert.Empty(t, plan.Accruals)
		assert.Len(t, plan.Completions, 1)
		assert.Equal(t, position, plan.Completions[0])
	})

	t.Run("maturity boundary counts as matured", func(t *testing.T) {
		position := activePosition(1, 30*24*time.Hour, 30*24*time.Hour, now, dailyReturn)
		plan := BuildAccrualPlan(now, []*models.UserInvestment{position})

		assert.Len(t, plan.Completions, 1)
	})

	t.Run("completed positions are ignored", func(t *testing.T) {
		position := activePosition(1, 48*time.Hour, 30*24*time.Hour, now, dailyReturn)
		position.Status = models.InvestmentStatusCompleted
		plan := BuildAccrualPlan(now, []*models.UserInvestment{position})

		assert.Empty(t, plan.Accruals)
		assert.Empty(t, plan.Completions)
	})

	t.Run("repeated evaluation produces the same plan", func(t *testing.T) {
		positions := []*models.UserInvestment{
			activePosition(1, 48*time.Hour, 30*24*time.Hour, now, dailyReturn),
			activePosition(2, 31*24*time.Hour, 30*24*time.Hour, now, dailyReturn),
			activePosition(3, 2*time.Hour, 30*24*time.Hour, now, dailyReturn),
		}

		first := BuildAccrualPlan(now, positions)
		second := BuildAccrualPlan(now, positions)

		assert.Equal(t, first, second)
		assert.Len(t, first.Accruals, 1)
		assert.Len(t, first.Completions, 1)
	})
}

func TestAccrualEngine_Run(t *testing.T) {
	now := time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
	dailyReturn := decimal.NewFromInt(15)

	t.Run("credits accumulated balance once per position per day", func(t *testing.T) {
		investments := new(MockInvestmentRepository)
		profiles := new(MockProfileRepository)
		transactions := new(MockTransactionRepository)
		notifications := new(MockNotificationRepository)

		fresh := activePosition(1, 48*time.Hour, 30*24*time.Hour, now, dailyReturn)
		alreadyCredited := activePosition(2, 48*time.Hour, 30*24*time.Hour, now, dailyReturn)
		investments.On("ListActive", mock.Anything).Return([]*models.UserInvestment{fresh, alreadyCredited}, nil)

		investments.On("InsertAccrualEntry", mock.Anything, mock.MatchedBy(func(e *models.AccrualEntry) bool {
			return e.InvestmentID == fresh.ID && e.AccrualDate == "2025-06-15" && e.Amount.Equal(dailyReturn)
		})).Return(true, nil)
		investments.On("InsertAccrualEntry", mock.Anything, mock.MatchedBy(func(e *models.AccrualEntry) bool {
			return e.InvestmentID == alreadyCredited.ID
		})).Return(false, nil)
		profiles.On("CreditAccumulated", mock.Anything, int64(1), dailyReturn).Return(nil)
		transactions.On("Create", mock.Anything, mock.MatchedBy(func(tx *models.Transaction) bool {
			return tx.Type == models.TransactionTypeReturn && tx.UserID == 1
		})).Return(nil)

		engine := NewAccrualEngine(investments, profiles, transactions, notifications, events.NoopPublisher{}, monitoring.NoopMetrics{}).
			WithClock(func() time.Time { return now })
		summary, err := engine.Run(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, 1, summary.ProcessedReturns)
		assert.Equal(t, 0, summary.CompletedInvestments)
		profiles.AssertNumberOfCalls(t, "CreditAccumulated", 1)
		investments.AssertExpectations(t)
	})

	t.Run("completes matured positions conditionally", func(t *testing.T) {
		investments := new(MockInvestmentRepository)
		profiles := new(MockProfileRepository)
		transactions := new(MockTransactionRepository)
		notifications := new(MockNotificationRepository)

		matured := activePosition(1, 31*24*time.Hour, 30*24*time.Hour, now, dailyReturn)
		raced := activePosition(2, 31*24*time.Hour, 30*24*time.Hour, now, dailyReturn)
		investments.On("ListActive", mock.Anything).Return([]*models.UserInvestment{matured, raced}, nil)
		investments.On("CompleteIfActive", mock.Anything, matured.ID).Return(true, nil)
		investments.On("CompleteIfActive", mock.Anything, raced.ID).Return(false, nil)
		notifications.On("Create", mock.Anything, mock.Anything).Return(nil)

		engine := NewAccrualEngine(investments, profiles, transactions, notifications, events.NoopPublisher{}, monitoring.NoopMetrics{}).
			WithClock(func() time.Time { return now })
		summary, err := engine.Run(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, 0, summary.ProcessedReturns)
		assert.Equal(t, 1, summary.CompletedInvestments)
		notifications.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("a failing position does not stall the run", func(t *testing.T) {
		investments := new(MockInvestmentRepository)
		profiles := new(MockProfileRepository)
		transactions := new(MockTransactionRepository)
		notifications := new(MockNotificationRepository)

		bad := activePosition(1, 48*time.Hour, 30*24*time.Hour, now, dailyReturn)
		good := activePosition(2, 48*time.Hour, 30*24*time.Hour, now, dailyReturn)
		investments.On("ListActive", mock.Anything).Return([]*models.UserInvestment{bad, good}, nil)
		investments.On("InsertAccrualEntry", mock.Anything, mock.MatchedBy(func(e *models.AccrualEntry) bool {
			return e.InvestmentID == bad.ID
		})).Return(false, errors.New("write failed"))
		investments.On("InsertAccrualEntry", mock.Anything, mock.MatchedBy(func(e *models.AccrualEntry) bool {
			return e.InvestmentID == good.ID
		})).Return(true, nil)
		profiles.On("CreditAccumulated", mock.Anything, int64(2), dailyReturn).Return(nil)
		transactions.On("Create", mock.Anything, mock.Anything).Return(nil)

		engine := NewAccrualEngine(investments, profiles, transactions, notifications, events.NoopPublisher{}, monitoring.NoopMetrics{}).
			WithClock(func() time.Time { return now })
		summary, err := engine.Run(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, 1, summary.ProcessedReturns)
	})

	t.Run("listing failure aborts the run", func(t *testing.T) {
		investments := new(MockInvestmentRepository)
		investments.On("ListActive", mock.Anything).Return(nil, errors.New("mongo down"))

		engine := NewAccrualEngine(investments, new(MockProfileRepository), new(MockTransactionRepository), new(MockNotificationRepository), events.NoopPublisher{}, monitoring.NoopMetrics{}).
			WithClock(func() time.Time { return now })
		_, err := engine.Run(context.Background())

		assert.Error(t, err)
	})
}
