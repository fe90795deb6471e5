package service

import (
	"context"
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

type DepositService interface {
	InitiateDeposit(ctx context.Context, req *InitiateDepositRequest) (*InitiateDepositResponse, error)
}

type depositService struct {
	profiles     repository.ProfileRepository
	transactions repository.TransactionRepository
	pixGateway   gateway.PixGateway
	publisher    events.Publisher
	metrics      monitoring.MetricsService
	business     config.BusinessConfig
}

func NewDepositService(
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	pixGateway gateway.PixGateway,
	publisher events.Publisher,
	metrics monitoring.MetricsService,
	business config.BusinessConfig,
) DepositService {
	return &depositService{
		profiles:     profiles,
		transactions: transactions,
		pixGateway:   pixGateway,
		publisher:    publisher,
		metrics:      metrics,
		business:     business,
	}
}

type InitiateDepositRequest struct {
	UserID int64           `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	CPF    string          `json:"cpf,omitempty"`
}

type InitiateDepositResponse struct {
	Success             bool            `json:"success"`
	ErrorCode           string          `json:"error_code,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	RequiresCPF         bool            `json:"requires_cpf,omitempty"`
	TransactionID       string          `json:"transaction_id,omitempty"`
	ExternalReferenceID string          `json:"external_reference_id,omitempty"`
	Amount              decimal.Decimal `json:"amount,omitempty"`
	PixCopyPaste        string          `json:"pix_copy_paste,omitempty"`
	QRCodeBase64        string          `json:"qr_code_base64,omitempty"`
}

// InitiateDeposit creates a PIX charge at the gateway and records a pending
// ledger row carrying the gateway's transaction id. The balance is untouched:
// only reconciliation credits it. If the gateway call fails, nothing is
// written.
func (s *depositService) InitiateDeposit(ctx context.Context, req *InitiateDepositRequest) (*InitiateDepositResponse, error) {
	minAmount := decimal.NewFromFloat(s.business.MinDepositAmount)
	if req.Amount.LessThan(minAmount) {
		s.metrics.RecordDepositInitiated("rejected_validation")
		return &InitiateDepositResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: fmt.Sprintf("O valor mínimo de depósito é R$ %s", minAmount.StringFixed(2)),
		}, nil
	}

	profile, err := s.profiles.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return &InitiateDepositResponse{
			Success:      false,
			ErrorCode:    ErrCodeNotFound,
			ErrorMessage: "Perfil não encontrado",
		}, nil
	}

	// A charge without a document cannot be attributed; fail with the
	// requires_cpf signal so the client can prompt for it.
	cpf := models.NormalizeCPF(req.CPF)
	if cpf == "" {
		cpf = models.NormalizeCPF(profile.CPF)
	}
	if cpf == "" {
		s.metrics.RecordDepositInitiated("rejected_validation")
		return &InitiateDepositResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: "CPF é obrigatório para depósitos",
			RequiresCPF:  true,
		}, nil
	}
	if !models.IsValidCPF(cpf) {
		s.metrics.RecordDepositInitiated("rejected_validation")
		return &InitiateDepositResponse{
			Success:      false,
			ErrorCode:    ErrCodeValidation,
			ErrorMessage: "CPF inválido",
			RequiresCPF:  true,
		}, nil
	}

	// Persist a CPF supplied on the request so future operations have it.
	if models.NormalizeCPF(profile.CPF) != cpf {
		if err := s.profiles.UpdateContact(ctx, profile.UserID, profile.FullName, profile.Phone, cpf); err != nil {
			logrus.WithError(err).WithField("user_id", profile.UserID).Warn("Failed to persist CPF on profile")
		}
	}

	chargeReq := &gateway.ChargeRequest{
		Amount:     req.Amount,
		Identifier: fmt.Sprintf("dep_%d_%d", req.UserID, time.Now().UnixMilli()),
		Client: gateway.ClientInfo{
			Name:     profile.FullName,
			Email:    profile.Email,
			Phone:    profile.Phone,
			Document: cpf,
		},
	}

	started := time.Now()
	charge, err := s.pixGateway.CreateCharge(ctx, chargeReq)
	s.metrics.RecordGatewayCall("pix/receive", err == nil, time.Since(started))
	if err != nil {
		s.metrics.RecordDepositInitiated("rejected_gateway")
		logrus.WithError(err).WithField("user_id", req.UserID).Error("Gateway charge creation failed")

		code := ErrCodeGateway
		if !gateway.IsRejection(err) {
			code = ErrCodeGatewayUnknown
		}
		return &InitiateDepositResponse{
			Success:      false,
			ErrorCode:    code,
			ErrorMessage: "Não foi possível gerar a cobrança PIX. Tente novamente.",
		}, nil
	}

	transaction := models.NewPendingTransaction(
		req.UserID,
		models.TransactionTypeDeposit,
		req.Amount,
		fmt.Sprintf("Depósito PIX de R$ %s", req.Amount.StringFixed(2)),
	)
	transaction.ExternalReferenceID = charge.TransactionID

	if err := s.transactions.Create(ctx, transaction); err != nil {
		return nil, fmt.Errorf("failed to record deposit transaction: %w", err)
	}

	event := events.NewLedgerEvent(events.EventDepositInitiated, req.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = req.Amount.String()
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish deposit initiation event")
	}

	s.metrics.RecordDepositInitiated("initiated")
	logrus.WithFields(logrus.Fields{
		"user_id":               req.UserID,
		"transaction_id":        transaction.TransactionID,
		"external_reference_id": charge.TransactionID,
		"amount":                req.Amount.String(),
	}).Info("Deposit initiated")

	return &InitiateDepositResponse{
		Success:             true,
		TransactionID:       transaction.TransactionID,
		ExternalReferenceID: charge.TransactionID,
		Amount:              req.Amount,
		PixCopyPaste:        charge.CopyPaste,
		QRCodeBase64:        charge.QRCodeBase64,
	}, nil
}
