package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ledger-api/internal/events"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/repository"
)

type InvestmentService interface {
	CreateInvestment(ctx context.Context, req *CreateInvestmentRequest) (*CreateInvestmentResponse, error)
	ListPlans(ctx context.Context) ([]*models.InvestmentPlan, error)
	ListUserInvestments(ctx context.Context, userID int64) ([]*models.UserInvestment, error)
	ListUserCommissions(ctx context.Context, userID int64, limit, offset int) ([]*models.AffiliateCommission, error)
}

type investmentService struct {
	investments    repository.InvestmentRepository
	profiles       repository.ProfileRepository
	transactions   repository.TransactionRepository
	commissions    repository.CommissionRepository
	notifications  repository.NotificationRepository
	publisher      events.Publisher
	metrics        monitoring.MetricsService
	commissionPcts []decimal.Decimal
}

func NewInvestmentService(
	investments repository.InvestmentRepository,
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	commissions repository.CommissionRepository,
	notifications repository.NotificationRepository,
	publisher events.Publisher,
	metrics monitoring.MetricsService,
	commissionPcts []decimal.Decimal,
) InvestmentService {
	return &investmentService{
		investments:    investments,
		profiles:       profiles,
		transactions:   transactions,
		commissions:    commissions,
		notifications:  notifications,
		publisher:      publisher,
		metrics:        metrics,
		commissionPcts: commissionPcts,
	}
}

type CreateInvestmentRequest struct {
	UserID int64           `json:"user_id"`
	PlanID string          `json:"plan_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type CreateInvestmentResponse struct {
	Success      bool                   `json:"success"`
	ErrorCode    string                 `json:"error_code,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Investment   *models.UserInvestment `json:"investment,omitempty"`
}

// CreateInvestment funds a new position from the user's available balance and
// fans commissions out to up to three referral ancestors. The debit is the
// atomic guard: once it succeeds the position is created, and commission
// failures degrade to logs rather than unwinding the investment.
func (s *investmentService) CreateInvestment(ctx context.Context, req *CreateInvestmentRequest) (*CreateInvestmentResponse, error) {
	planID, err := primitive.ObjectIDFromHex(req.PlanID)
	if err != nil {
		return &CreateInvestmentResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: "plano inválido",
		}, nil
	}

	plan, err := s.investments.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if plan == nil || !plan.IsActive {
		return &CreateInvestmentResponse{
			Success:      false,
			ErrorCode:    ErrCodeNotFound,
			ErrorMessage: "plano não encontrado ou inativo",
		}, nil
	}

	amount := req.Amount.Round(2)
	if amount.LessThan(plan.MinAmount) || amount.GreaterThan(plan.MaxAmount) {
		return &CreateInvestmentResponse{
			Success:   false,
			ErrorCode: ErrCodeValidation,
			ErrorMessage: fmt.Sprintf("O valor deve estar entre R$ %s e R$ %s para este plano",
				plan.MinAmount.StringFixed(2), plan.MaxAmount.StringFixed(2)),
		}, nil
	}

	profile, err := s.profiles.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return &CreateInvestmentResponse{
			Success:      false,
			ErrorCode:    ErrCodeNotFound,
			ErrorMessage: "perfil não encontrado",
		}, nil
	}

	if err := s.profiles.DebitBalance(ctx, req.UserID, amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return &CreateInvestmentResponse{
				Success:      false,
				ErrorCode:    ErrCodeInsufficientFunds,
				ErrorMessage: "Saldo insuficiente para este investimento",
			}, nil
		}
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	investment := models.NewUserInvestment(req.UserID, plan, amount, time.Now())
	if err := s.investments.CreateInvestment(ctx, investment); err != nil {
		// Funds already left the balance; put them back before failing.
		if restoreErr := s.profiles.CreditBalance(ctx, req.UserID, amount); restoreErr != nil {
			logrus.WithError(restoreErr).WithField("user_id", req.UserID).
				Error("Investment creation failed and balance restore failed")
		}
		return nil, fmt.Errorf("failed to create investment: %w", err)
	}

	transaction := models.NewCompletedTransaction(
		req.UserID,
		models.TransactionTypeInvestment,
		amount,
		fmt.Sprintf("Investimento no plano %s", plan.Name),
	)
	if err := s.transactions.Create(ctx, transaction); err != nil {
		logrus.WithError(err).WithField("user_id", req.UserID).
			Error("Failed to record investment transaction")
	}

	event := events.NewLedgerEvent(events.EventInvestmentCreated, req.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = amount.String()
	event.Metadata = map[string]interface{}{"plan": plan.Name}
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish investment event")
	}

	s.payCommissions(ctx, profile, investment)

	return &CreateInvestmentResponse{
		Success:    true,
		Investment: investment,
	}, nil
}

// payCommissions walks the referral chain upward, crediting each ancestor a
// level-indexed percentage of the invested amount. A missing ancestor ends the
// walk; a failure at one level is logged and skipped so remaining levels and
// the investment itself are unaffected.
func (s *investmentService) payCommissions(ctx context.Context, investor *models.Profile, investment *models.UserInvestment) {
	referrerID := investor.ReferredBy
	for level := 1; level <= models.MaxCommissionLevels && referrerID != nil; level++ {
		beneficiary, err := s.profiles.GetByUserID(ctx, *referrerID)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"beneficiary_id": *referrerID,
				"level":          level,
			}).Error("Failed to load commission beneficiary")
			return
		}
		if beneficiary == nil {
			return
		}

		rate := s.commissionPcts[level-1]
		amount := investment.Amount.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
		if amount.IsPositive() {
			if err := s.payCommission(ctx, beneficiary, investor, investment, level, amount); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"beneficiary_id": beneficiary.UserID,
					"level":          level,
				}).Error("Failed to pay commission")
			}
		}

		referrerID = beneficiary.ReferredBy
	}
}

func (s *investmentService) payCommission(ctx context.Context, beneficiary, investor *models.Profile, investment *models.UserInvestment, level int, amount decimal.Decimal) error {
	commission := models.NewAffiliateCommission(beneficiary.UserID, investor.UserID, investment.ID, level, amount)
	if err := s.commissions.Create(ctx, commission); err != nil {
		return fmt.Errorf("failed to record commission: %w", err)
	}

	if err := s.profiles.CreditBalance(ctx, beneficiary.UserID, amount); err != nil {
		return fmt.Errorf("failed to credit commission: %w", err)
	}

	transaction := models.NewCompletedTransaction(
		beneficiary.UserID,
		models.TransactionTypeCommission,
		amount,
		fmt.Sprintf("Comissão de nível %d sobre investimento de indicado", level),
	)
	if err := s.transactions.Create(ctx, transaction); err != nil {
		logrus.WithError(err).Error("Failed to record commission transaction")
	}

	notification := models.NewNotification(
		beneficiary.UserID,
		"Comissão recebida",
		fmt.Sprintf("Você recebeu R$ %s de comissão por um investimento da sua rede.", amount.StringFixed(2)),
		models.NotificationTypeSuccess,
	)
	if err := s.notifications.Create(ctx, notification); err != nil {
		logrus.WithError(err).Warn("Failed to create commission notification")
	}

	event := events.NewLedgerEvent(events.EventCommissionPaid, beneficiary.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = amount.String()
	event.Metadata = map[string]interface{}{"level": fmt.Sprintf("%d", level)}
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish commission event")
	}

	amountFloat, _ := amount.Float64()
	s.metrics.RecordCommissionPaid(level, amountFloat)

	return nil
}

func (s *investmentService) ListPlans(ctx context.Context) ([]*models.InvestmentPlan, error) {
	return s.investments.GetActivePlans(ctx)
}

func (s *investmentService) ListUserInvestments(ctx context.Context, userID int64) ([]*models.UserInvestment, error) {
	return s.investments.GetByUserID(ctx, userID)
}

func (s *investmentService) ListUserCommissions(ctx context.Context, userID int64, limit, offset int) ([]*models.AffiliateCommission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.commissions.GetByBeneficiary(ctx, userID, limit, offset)
}
