package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/events"
	"ledger-api/internal/models"
	"ledger-api/internal/repository"
)

type BalanceService interface {
	GetProfile(ctx context.Context, userID int64) (*ProfileResponse, error)
	TransferAccumulated(ctx context.Context, req *TransferAccumulatedRequest) (*TransferAccumulatedResponse, error)
	ListTransactions(ctx context.Context, userID int64, filter repository.TransactionFilter, limit, offset int) (*TransactionListResponse, error)
}

type balanceService struct {
	profiles     repository.ProfileRepository
	transactions repository.TransactionRepository
	publisher    events.Publisher
}

func NewBalanceService(
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	publisher events.Publisher,
) BalanceService {
	return &balanceService{
		profiles:     profiles,
		transactions: transactions,
		publisher:    publisher,
	}
}

type ProfileResponse struct {
	Success            bool            `json:"success"`
	ErrorCode          string          `json:"error_code,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	UserID             int64           `json:"user_id,omitempty"`
	FullName           string          `json:"full_name,omitempty"`
	Balance            decimal.Decimal `json:"balance"`
	AccumulatedBalance decimal.Decimal `json:"accumulated_balance"`
	ReferralCode       string          `json:"referral_code,omitempty"`
	HasDocument        bool            `json:"has_document"`
}

func (s *balanceService) GetProfile(ctx context.Context, userID int64) (*ProfileResponse, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return &ProfileResponse{
			Success:      false,
			ErrorCode:    ErrCodeNotFound,
			ErrorMessage: "perfil não encontrado",
		}, nil
	}

	return &ProfileResponse{
		Success:            true,
		UserID:             profile.UserID,
		FullName:           profile.FullName,
		Balance:            profile.Balance,
		AccumulatedBalance: profile.AccumulatedBalance,
		ReferralCode:       profile.ReferralCode,
		HasDocument:        profile.HasDocument(),
	}, nil
}

type TransferAccumulatedRequest struct {
	UserID int64           `json:"user_id"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type TransferAccumulatedResponse struct {
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TransferAccumulated moves earnings from the accumulated bucket to the
// spendable balance. The repository performs the decrement and increment in a
// single conditional update, so the two buckets always move zero-sum.
func (s *balanceService) TransferAccumulated(ctx context.Context, req *TransferAccumulatedRequest) (*TransferAccumulatedResponse, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return &TransferAccumulatedResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: "O valor da transferência deve ser positivo",
		}, nil
	}

	if err := s.profiles.TransferAccumulated(ctx, req.UserID, amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return &TransferAccumulatedResponse{
				Success:      false,
				ErrorCode:    ErrCodeInsufficientFunds,
				ErrorMessage: "Saldo acumulado insuficiente",
			}, nil
		}
		return nil, fmt.Errorf("failed to transfer accumulated balance: %w", err)
	}

	transaction := models.NewCompletedTransaction(
		req.UserID,
		models.TransactionTypeTransfer,
		amount,
		fmt.Sprintf("Transferência de R$ %s do saldo acumulado", amount.StringFixed(2)),
	)
	if err := s.transactions.Create(ctx, transaction); err != nil {
		logrus.WithError(err).WithField("user_id", req.UserID).
			Error("Failed to record accumulated transfer transaction")
	}

	event := events.NewLedgerEvent(events.EventBalanceTransferred, req.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = amount.String()
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish transfer event")
	}

	return &TransferAccumulatedResponse{Success: true}, nil
}

type TransactionListResponse struct {
	Transactions []*models.Transaction `json:"transactions"`
	Total        int64                 `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

func (s *balanceService) ListTransactions(ctx context.Context, userID int64, filter repository.TransactionFilter, limit, offset int) (*TransactionListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.transactions.GetByUserID(ctx, userID, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	total, err := s.transactions.CountByUserID(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	return &TransactionListResponse{
		Transactions: transactions,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}
