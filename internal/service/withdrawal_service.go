package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/config"
	"ledger-api/internal/events"
	"ledger-api/internal/gateway"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/repository"
)

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, req *RequestWithdrawalRequest) (*RequestWithdrawalResponse, error)
}

type withdrawalService struct {
	profiles      repository.ProfileRepository
	transactions  repository.TransactionRepository
	notifications repository.NotificationRepository
	pixGateway    gateway.PixGateway
	publisher     events.Publisher
	metrics       monitoring.MetricsService
	business      config.BusinessConfig
}

func NewWithdrawalService(
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	notifications repository.NotificationRepository,
	pixGateway gateway.PixGateway,
	publisher events.Publisher,
	metrics monitoring.MetricsService,
	business config.BusinessConfig,
) WithdrawalService {
	return &withdrawalService{
		profiles:      profiles,
		transactions:  transactions,
		notifications: notifications,
		pixGateway:    pixGateway,
		publisher:     publisher,
		metrics:       metrics,
		business:      business,
	}
}

type RequestWithdrawalRequest struct {
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	PixKey     string          `json:"pix_key"`
	PixKeyType string          `json:"pix_key_type"`
}

type RequestWithdrawalResponse struct {
	Success       bool            `json:"success"`
	ErrorCode     string          `json:"error_code,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	RequiresCPF   bool            `json:"requires_cpf,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	GrossAmount   decimal.Decimal `json:"gross_amount,omitempty"`
	Fee           decimal.Decimal `json:"fee,omitempty"`
	NetAmount     decimal.Decimal `json:"net_amount,omitempty"`
	Status        string          `json:"status,omitempty"`
}

// RequestWithdrawal debits the full gross amount up front, records a pending
// ledger row with the fee, and either defers to admin approval or calls the
// gateway transfer with the net amount. The optimistic debit is what prevents
// two concurrent withdrawals from spending the same balance; any definitive
// gateway rejection restores it before returning.
func (s *withdrawalService) RequestWithdrawal(ctx context.Context, req *RequestWithdrawalRequest) (*RequestWithdrawalResponse, error) {
	if resp := s.validateRequest(req); resp != nil {
		s.metrics.RecordWithdrawalInitiated("rejected_validation")
		return resp, nil
	}

	profile, err := s.profiles.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return &RequestWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeNotFound,
			ErrorMessage: "Perfil não encontrado",
		}, nil
	}

	cpf := models.NormalizeCPF(profile.CPF)
	if cpf == "" || !models.IsValidCPF(cpf) {
		s.metrics.RecordWithdrawalInitiated("rejected_validation")
		return &RequestWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: "CPF válido é obrigatório para saques",
			RequiresCPF:  true,
		}, nil
	}

	// Fee on the gross; the user receives the net, the ledger records the
	// gross, and gross = net + fee to the cent.
	gross := req.Amount
	fee := gross.Mul(decimal.NewFromFloat(s.business.WithdrawalFeePct)).Div(decimal.NewFromInt(100)).Round(2)
	net := gross.Sub(fee)

	// Optimistic debit of the full gross, atomic and conditional.
	if err := s.profiles.DebitBalance(ctx, req.UserID, gross); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			s.metrics.RecordWithdrawalInitiated("rejected_funds")
			return &RequestWithdrawalResponse{
				Success:      false,
				ErrorCode:    ErrCodeInsufficientFunds,
				ErrorMessage: "Saldo insuficiente",
			}, nil
		}
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	transaction := models.NewPendingTransaction(
		req.UserID,
		models.TransactionTypeWithdrawal,
		gross,
		fmt.Sprintf("Saque PIX de R$ %s (taxa R$ %s)", gross.StringFixed(2), fee.StringFixed(2)),
	)
	transaction.Fee = fee
	transaction.PixKey = req.PixKey
	transaction.PixKeyType = req.PixKeyType

	if err := s.transactions.Create(ctx, transaction); err != nil {
		// The debit already happened; put it back before failing.
		if restoreErr := s.profiles.CreditBalance(ctx, req.UserID, gross); restoreErr != nil {
			logrus.WithError(restoreErr).WithField("user_id", req.UserID).
				Error("Failed to restore balance after transaction write failure")
		}
		return nil, fmt.Errorf("failed to record withdrawal transaction: %w", err)
	}

	event := events.NewLedgerEvent(events.EventWithdrawalInitiated, req.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = gross.String()
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish withdrawal initiation event")
	}

	if s.business.ManualWithdrawals {
		s.metrics.RecordWithdrawalInitiated("pending_manual")
		logrus.WithFields(logrus.Fields{
			"user_id":        req.UserID,
			"transaction_id": transaction.TransactionID,
			"gross":          gross.String(),
			"fee":            fee.String(),
		}).Info("Withdrawal recorded for manual approval")

		return &RequestWithdrawalResponse{
			Success:       true,
			TransactionID: transaction.TransactionID,
			GrossAmount:   gross,
			Fee:           fee,
			NetAmount:     net,
			Status:        models.TransactionStatusPending,
		}, nil
	}

	return s.transferViaGateway(ctx, profile, transaction, req, gross, fee, net)
}

func (s *withdrawalService) transferViaGateway(
	ctx context.Context,
	profile *models.Profile,
	transaction *models.Transaction,
	req *RequestWithdrawalRequest,
	gross, fee, net decimal.Decimal,
) (*RequestWithdrawalResponse, error) {
	transferReq := &gateway.TransferRequest{
		Amount:     net,
		PixKey:     req.PixKey,
		PixKeyType: req.PixKeyType,
		Owner: gateway.OwnerInfo{
			Name:     profile.FullName,
			Document: models.NormalizeCPF(profile.CPF),
		},
	}

	started := time.Now()
	transfer, err := s.pixGateway.CreateTransfer(ctx, transferReq)
	s.metrics.RecordGatewayCall("transfers", err == nil, time.Since(started))

	if err == nil {
		if refErr := s.transactions.SetExternalReference(ctx, transaction.ID, transfer.WithdrawID); refErr != nil {
			logrus.WithError(refErr).WithField("transaction_id", transaction.TransactionID).
				Error("Failed to store gateway withdraw id")
		}

		s.metrics.RecordWithdrawalInitiated("initiated")
		logrus.WithFields(logrus.Fields{
			"user_id":               req.UserID,
			"transaction_id":        transaction.TransactionID,
			"external_reference_id": transfer.WithdrawID,
			"net":                   net.String(),
		}).Info("Withdrawal transfer initiated")

		return &RequestWithdrawalResponse{
			Success:       true,
			TransactionID: transaction.TransactionID,
			GrossAmount:   gross,
			Fee:           fee,
			NetAmount:     net,
			Status:        models.TransactionStatusPending,
		}, nil
	}

	if errors.Is(err, gateway.ErrUnknownOutcome) {
		// The transfer may have gone through. Leave the row pending and the
		// debit in place; the webhook or an admin decides the outcome.
		s.metrics.RecordWithdrawalInitiated("pending_unknown")
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":        req.UserID,
			"transaction_id": transaction.TransactionID,
		}).Warn("Gateway transfer outcome unknown, leaving withdrawal pending")

		return &RequestWithdrawalResponse{
			Success:       true,
			TransactionID: transaction.TransactionID,
			GrossAmount:   gross,
			Fee:           fee,
			NetAmount:     net,
			Status:        models.TransactionStatusPending,
		}, nil
	}

	// Definitive rejection: compensate. The pending-status guard makes the
	// restore idempotent if this path races a webhook for the same transfer.
	applied, trErr := s.transactions.MarkRejectedIfPending(ctx, transaction.ID, "gateway rejection")
	if trErr != nil {
		return nil, fmt.Errorf("failed to mark withdrawal rejected: %w", trErr)
	}
	if applied {
		if restoreErr := s.profiles.CreditBalance(ctx, req.UserID, gross); restoreErr != nil {
			logrus.WithError(restoreErr).WithField("user_id", req.UserID).
				Error("Failed to restore balance after gateway rejection")
			return nil, fmt.Errorf("failed to restore balance: %w", restoreErr)
		}

		notification := models.NewNotification(
			req.UserID,
			"Saque não realizado",
			fmt.Sprintf("Seu saque de R$ %s foi recusado e o valor foi devolvido ao seu saldo.", gross.StringFixed(2)),
			models.NotificationTypeError,
		)
		if nErr := s.notifications.Create(ctx, notification); nErr != nil {
			logrus.WithError(nErr).Warn("Failed to create withdrawal rejection notification")
		}
	}

	s.metrics.RecordWithdrawalInitiated("rejected_gateway")
	logrus.WithError(err).WithFields(logrus.Fields{
		"user_id":        req.UserID,
		"transaction_id": transaction.TransactionID,
	}).Error("Gateway rejected withdrawal transfer")

	return &RequestWithdrawalResponse{
		Success:      false,
		ErrorCode:    ErrCodeGateway,
		ErrorMessage: "A transferência PIX foi recusada. O valor foi devolvido ao seu saldo.",
	}, nil
}

func (s *withdrawalService) validateRequest(req *RequestWithdrawalRequest) *RequestWithdrawalResponse {
	minAmount := decimal.NewFromFloat(s.business.MinWithdrawalAmount)
	if req.Amount.LessThan(minAmount) {
		return &RequestWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: fmt.Sprintf("O valor mínimo de saque é R$ %s", minAmount.StringFixed(2)),
		}
	}
	if req.PixKey == "" {
		return &RequestWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: "Chave PIX é obrigatória",
		}
	}
	if !gateway.IsValidPixKeyType(req.PixKeyType) {
		return &RequestWithdrawalResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: "Tipo de chave PIX inválido",
		}
	}
	return nil
}
