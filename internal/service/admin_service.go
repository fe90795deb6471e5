package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/cache"
	"ledger-api/internal/engine"
	"ledger-api/internal/events"
	"ledger-api/internal/gateway"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/repository"
)

// Admin actions on a pending withdrawal. Approve and manual both mark the row
// approved; the PIX payout itself is performed out-of-band by the operator,
// which avoids duplicate payouts when the gateway is unreliable.
const (
	AdminActionApprove = "approve"
	AdminActionReject  = "reject"
	AdminActionManual  = "manual"
)

type AdminService interface {
	ProcessWithdrawal(ctx context.Context, req *ProcessWithdrawalRequest) (*ProcessWithdrawalResponse, error)
	ListPendingWithdrawals(ctx context.Context, adminID int64, limit int) (*PendingWithdrawalsResponse, error)
	GetGatewayBalance(ctx context.Context, adminID int64) (*GatewayBalanceResponse, error)
	RunAccruals(ctx context.Context, adminID int64) (*RunAccrualsResponse, error)
}

type adminService struct {
	roles         repository.RoleRepository
	profiles      repository.ProfileRepository
	transactions  repository.TransactionRepository
	notifications repository.NotificationRepository
	pixGateway    gateway.PixGateway
	accrualEngine *engine.AccrualEngine
	cacheService  cache.CacheService
	publisher     events.Publisher
	metrics       monitoring.MetricsService
	auditLogger   *logrus.Logger
	balanceTTL    time.Duration
}

func NewAdminService(
	roles repository.RoleRepository,
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	notifications repository.NotificationRepository,
	pixGateway gateway.PixGateway,
	accrualEngine *engine.AccrualEngine,
	cacheService cache.CacheService,
	publisher events.Publisher,
	metrics monitoring.MetricsService,
	auditLogger *logrus.Logger,
	balanceTTL time.Duration,
) AdminService {
	if balanceTTL == 0 {
		balanceTTL = 30 * time.Second
	}
	return &adminService{
		roles:         roles,
		profiles:      profiles,
		transactions:  transactions,
		notifications: notifications,
		pixGateway:    pixGateway,
		accrualEngine: accrualEngine,
		cacheService:  cacheService,
		publisher:     publisher,
		metrics:       metrics,
		auditLogger:   auditLogger,
		balanceTTL:    balanceTTL,
	}
}

type ProcessWithdrawalRequest struct {
	AdminID       int64  `json:"admin_id"`
	TransactionID string `json:"transaction_id"`
	Action        string `json:"action"`
	Reason        string `json:"reason,omitempty"`
}

type ProcessWithdrawalResponse struct {
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Status       string `json:"status,omitempty"`
}

// ProcessWithdrawal applies an admin decision to a pending withdrawal. The
// role check fails closed; the pending-only precondition is enforced by the
// same conditional transition the webhook uses, so a double click or a racing
// webhook surfaces as a state conflict instead of a double settlement.
func (s *adminService) ProcessWithdrawal(ctx context.Context, req *ProcessWithdrawalRequest) (*ProcessWithdrawalResponse, error) {
	if ok, resp := s.requireAdmin(ctx, req.AdminID); !ok {
		return &ProcessWithdrawalResponse{
			Success:      false,
			ErrorCode:    resp.ErrorCode,
			ErrorMessage: resp.ErrorMessage,
		}, nil
	}

	if req.Action != AdminActionApprove && req.Action != AdminActionReject && req.Action != AdminActionManual {
		return &ProcessWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: fmt.Sprintf("ação inválida: %s", req.Action),
		}, nil
	}

	transaction, err := s.transactions.GetByTransactionID(ctx, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if transaction == nil {
		return &ProcessWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeNotFound,
			ErrorMessage: "transação não encontrada",
		}, nil
	}
	if transaction.Type != models.TransactionTypeWithdrawal {
		return &ProcessWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: "a transação não é um saque",
		}, nil
	}
	if !transaction.IsPending() {
		s.metrics.RecordAdminAction(req.Action, "state_conflict")
		return &ProcessWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeStateConflict,
			ErrorMessage: fmt.Sprintf("o saque já foi processado (status %s)", transaction.Status),
		}, nil
	}

	var resp *ProcessWithdrawalResponse
	if req.Action == AdminActionReject {
		resp, err = s.rejectWithdrawal(ctx, transaction, req.Reason)
	} else {
		resp, err = s.approveWithdrawal(ctx, transaction)
	}
	if err != nil {
		return nil, err
	}

	outcome := "applied"
	if !resp.Success {
		outcome = resp.ErrorCode
	}
	s.metrics.RecordAdminAction(req.Action, outcome)
	s.auditLogger.WithFields(logrus.Fields{
		"admin_id":       req.AdminID,
		"transaction_id": transaction.TransactionID,
		"user_id":        transaction.UserID,
		"action":         req.Action,
		"amount":         transaction.Amount.String(),
		"outcome":        outcome,
	}).Info("Admin withdrawal decision")

	return resp, nil
}

func (s *adminService) rejectWithdrawal(ctx context.Context, transaction *models.Transaction, reason string) (*ProcessWithdrawalResponse, error) {
	if reason == "" {
		reason = "rejected by admin"
	}

	applied, err := s.transactions.MarkRejectedIfPending(ctx, transaction.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to reject withdrawal: %w", err)
	}
	if !applied {
		return &ProcessWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeStateConflict,
			ErrorMessage: "o saque já foi processado",
		}, nil
	}

	if err := s.profiles.CreditBalance(ctx, transaction.UserID, transaction.Amount); err != nil {
		logrus.WithError(err).WithField("transaction_id", transaction.TransactionID).
			Error("Withdrawal rejected by admin but balance restore failed")
		return nil, fmt.Errorf("failed to restore balance: %w", err)
	}

	notification := models.NewNotification(
		transaction.UserID,
		"Saque não aprovado",
		fmt.Sprintf("Seu saque de R$ %s foi recusado e o valor foi devolvido ao seu saldo.", transaction.Amount.StringFixed(2)),
		models.NotificationTypeError,
	)
	if err := s.notifications.Create(ctx, notification); err != nil {
		logrus.WithError(err).Warn("Failed to create rejection notification")
	}

	event := events.NewLedgerEvent(events.EventWithdrawalRejected, transaction.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = transaction.Amount.String()
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish admin rejection event")
	}

	return &ProcessWithdrawalResponse{
		Success: true,
		Status:  models.TransactionStatusRejected,
	}, nil
}

func (s *adminService) approveWithdrawal(ctx context.Context, transaction *models.Transaction) (*ProcessWithdrawalResponse, error) {
	applied, err := s.transactions.MarkApprovedIfPending(ctx, transaction.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to approve withdrawal: %w", err)
	}
	if !applied {
		return &ProcessWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeStateConflict,
			ErrorMessage: "o saque já foi processado",
		}, nil
	}

	net := transaction.NetAmount()
	notification := models.NewNotification(
		transaction.UserID,
		"Saque aprovado",
		fmt.Sprintf("Seu saque de R$ %s foi aprovado. Você receberá R$ %s via PIX.",
			transaction.Amount.StringFixed(2), net.StringFixed(2)),
		models.NotificationTypeSuccess,
	)
	if err := s.notifications.Create(ctx, notification); err != nil {
		logrus.WithError(err).Warn("Failed to create approval notification")
	}

	event := events.NewLedgerEvent(events.EventWithdrawalApproved, transaction.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = transaction.Amount.String()
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish admin approval event")
	}

	return &ProcessWithdrawalResponse{
		Success: true,
		Status:  models.TransactionStatusApproved,
	}, nil
}

type PendingWithdrawalsResponse struct {
	Success      bool                  `json:"success"`
	ErrorCode    string                `json:"error_code,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Withdrawals  []*models.Transaction `json:"withdrawals,omitempty"`
}

func (s *adminService) ListPendingWithdrawals(ctx context.Context, adminID int64, limit int) (*PendingWithdrawalsResponse, error) {
	if ok, resp := s.requireAdmin(ctx, adminID); !ok {
		return &PendingWithdrawalsResponse{
			Success:      false,
			ErrorCode:    resp.ErrorCode,
			ErrorMessage: resp.ErrorMessage,
		}, nil
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	withdrawals, err := s.transactions.GetPendingByType(ctx, models.TransactionTypeWithdrawal, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}

	return &PendingWithdrawalsResponse{
		Success:     true,
		Withdrawals: withdrawals,
	}, nil
}

type GatewayBalanceResponse struct {
	Success      bool            `json:"success"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Available    decimal.Decimal `json:"available,omitempty"`
	Pending      decimal.Decimal `json:"pending,omitempty"`
}

const gatewayBalanceCacheKey = "gateway:balance"

func (s *adminService) GetGatewayBalance(ctx context.Context, adminID int64) (*GatewayBalanceResponse, error) {
	if ok, resp := s.requireAdmin(ctx, adminID); !ok {
		return &GatewayBalanceResponse{
			Success:      false,
			ErrorCode:    resp.ErrorCode,
			ErrorMessage: resp.ErrorMessage,
		}, nil
	}

	var cached gateway.Balance
	if err := s.cacheService.Get(ctx, gatewayBalanceCacheKey, &cached); err == nil {
		return &GatewayBalanceResponse{
			Success:   true,
			Available: cached.Available,
			Pending:   cached.Pending,
		}, nil
	}

	started := time.Now()
	balance, err := s.pixGateway.GetBalance(ctx)
	s.metrics.RecordGatewayCall("balance", err == nil, time.Since(started))
	if err != nil {
		return &GatewayBalanceResponse{
			Success:      false,
			ErrorCode:    ErrCodeGateway,
			ErrorMessage: "não foi possível consultar o saldo do gateway",
		}, nil
	}

	if err := s.cacheService.Set(ctx, gatewayBalanceCacheKey, balance, s.balanceTTL); err != nil {
		logrus.WithError(err).Debug("Failed to cache gateway balance")
	}

	return &GatewayBalanceResponse{
		Success:   true,
		Available: balance.Available,
		Pending:   balance.Pending,
	}, nil
}

type RunAccrualsResponse struct {
	Success              bool   `json:"success"`
	ErrorCode            string `json:"error_code,omitempty"`
	ErrorMessage         string `json:"error_message,omitempty"`
	ProcessedReturns     int    `json:"processedReturns"`
	CompletedInvestments int    `json:"completedInvestments"`
}

func (s *adminService) RunAccruals(ctx context.Context, adminID int64) (*RunAccrualsResponse, error) {
	if ok, resp := s.requireAdmin(ctx, adminID); !ok {
		return &RunAccrualsResponse{
			Success:      false,
			ErrorCode:    resp.ErrorCode,
			ErrorMessage: resp.ErrorMessage,
		}, nil
	}

	summary, err := s.accrualEngine.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("accrual run failed: %w", err)
	}

	s.auditLogger.WithFields(logrus.Fields{
		"admin_id":              adminID,
		"processed_returns":     summary.ProcessedReturns,
		"completed_investments": summary.CompletedInvestments,
	}).Info("Manual accrual run")

	return &RunAccrualsResponse{
		Success:              true,
		ProcessedReturns:     summary.ProcessedReturns,
		CompletedInvestments: summary.CompletedInvestments,
	}, nil
}

type permissionFailure struct {
	ErrorCode    string
	ErrorMessage string
}

func (s *adminService) requireAdmin(ctx context.Context, adminID int64) (bool, *permissionFailure) {
	isAdmin, err := s.roles.HasRole(ctx, adminID, models.RoleAdmin)
	if err != nil {
		logrus.WithError(err).WithField("admin_id", adminID).Error("Role lookup failed, denying access")
		return false, &permissionFailure{
			ErrorCode:    ErrCodePermission,
			ErrorMessage: "não foi possível verificar as permissões",
		}
	}
	if !isAdmin {
		return false, &permissionFailure{
			ErrorCode:    ErrCodePermission,
			ErrorMessage: "acesso restrito a administradores",
		}
	}
	return true, nil
}
