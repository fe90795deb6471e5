package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/events"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/repository"
)

type CheckinService interface {
	Checkin(ctx context.Context, userID int64) (*CheckinResponse, error)
	History(ctx context.Context, userID int64, limit int) ([]*models.DailyCheckin, error)
}

type checkinService struct {
	checkins     repository.CheckinRepository
	profiles     repository.ProfileRepository
	transactions repository.TransactionRepository
	publisher    events.Publisher
	metrics      monitoring.MetricsService
	reward       decimal.Decimal
}

func NewCheckinService(
	checkins repository.CheckinRepository,
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	publisher events.Publisher,
	metrics monitoring.MetricsService,
	reward decimal.Decimal,
) CheckinService {
	return &checkinService{
		checkins:     checkins,
		profiles:     profiles,
		transactions: transactions,
		publisher:    publisher,
		metrics:      metrics,
		reward:       reward,
	}
}

type CheckinResponse struct {
	Success      bool            `json:"success"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Reward       decimal.Decimal `json:"reward,omitempty"`
	CheckinDate  string          `json:"checkin_date,omitempty"`
}

// Checkin claims the once-per-UTC-day reward. The unique (user_id,
// checkin_date) index is the arbiter: on a duplicate claim the insert reports
// inserted=false and no credit happens.
func (s *checkinService) Checkin(ctx context.Context, userID int64) (*CheckinResponse, error) {
	checkin := models.NewDailyCheckin(userID, s.reward, time.Now())

	inserted, err := s.checkins.Create(ctx, checkin)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkin: %w", err)
	}
	if !inserted {
		return &CheckinResponse{
			Success:      false,
			ErrorCode:    ErrCodeStateConflict,
			ErrorMessage: "Você já fez o check-in de hoje",
		}, nil
	}

	if err := s.profiles.CreditBalance(ctx, userID, s.reward); err != nil {
		logrus.WithError(err).WithField("user_id", userID).
			Error("Checkin recorded but reward credit failed")
		return nil, fmt.Errorf("failed to credit checkin reward: %w", err)
	}

	transaction := models.NewCompletedTransaction(
		userID,
		models.TransactionTypeCheckin,
		s.reward,
		fmt.Sprintf("Recompensa de check-in diário (%s)", checkin.CheckinDate),
	)
	if err := s.transactions.Create(ctx, transaction); err != nil {
		logrus.WithError(err).WithField("user_id", userID).
			Error("Failed to record checkin transaction")
	}

	event := events.NewLedgerEvent(events.EventCheckinCompleted, userID)
	event.TransactionID = transaction.TransactionID
	event.Amount = s.reward.String()
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish checkin event")
	}

	s.metrics.RecordCheckin()

	return &CheckinResponse{
		Success:     true,
		Reward:      s.reward,
		CheckinDate: checkin.CheckinDate,
	}, nil
}

func (s *checkinService) History(ctx context.Context, userID int64, limit int) ([]*models.DailyCheckin, error) {
	if limit <= 0 || limit > 90 {
		limit = 30
	}
	return s.checkins.GetByUserID(ctx, userID, limit)
}
