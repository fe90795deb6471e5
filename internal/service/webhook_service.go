package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"ledger-api/internal/engine"
	"ledger-api/internal/events"
	"ledger-api/internal/gateway"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/repository"
)

// WebhookService reconciles asynchronous gateway callbacks into ledger state.
// The caller is untrusted and at-least-once: the same event may arrive twice,
// out of order, or for a transaction this system never created. Every path
// through ProcessGatewayEvent is therefore a conditional update or a no-op.
type WebhookService interface {
	ProcessGatewayEvent(ctx context.Context, payload *GatewayWebhookPayload) error
}

type webhookService struct {
	profiles      repository.ProfileRepository
	transactions  repository.TransactionRepository
	notifications repository.NotificationRepository
	replayGuard   *engine.ReplayGuard
	publisher     events.Publisher
	metrics       monitoring.MetricsService
}

func NewWebhookService(
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	notifications repository.NotificationRepository,
	replayGuard *engine.ReplayGuard,
	publisher events.Publisher,
	metrics monitoring.MetricsService,
) WebhookService {
	return &webhookService{
		profiles:      profiles,
		transactions:  transactions,
		notifications: notifications,
		replayGuard:   replayGuard,
		publisher:     publisher,
		metrics:       metrics,
	}
}

// GatewayWebhookPayload accepts both callback shapes the gateway sends: a
// top-level transaction id + status for deposits, or a nested withdraw object
// for transfers.
type GatewayWebhookPayload struct {
	TransactionID string            `json:"transactionId"`
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Withdraw      *WithdrawCallback `json:"withdraw,omitempty"`
}

type WithdrawCallback struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	RejectedReason string `json:"rejectedReason,omitempty"`
}

// ExternalReference extracts the correlation id from either payload shape.
func (p *GatewayWebhookPayload) ExternalReference() string {
	if p.Withdraw != nil && p.Withdraw.ID != "" {
		return p.Withdraw.ID
	}
	if p.TransactionID != "" {
		return p.TransactionID
	}
	return p.ID
}

// GatewayStatus extracts the status string from either payload shape.
func (p *GatewayWebhookPayload) GatewayStatus() string {
	if p.Withdraw != nil && p.Withdraw.Status != "" {
		return p.Withdraw.Status
	}
	return p.Status
}

func (p *GatewayWebhookPayload) rejectedReason() string {
	if p.Withdraw != nil && p.Withdraw.RejectedReason != "" {
		return p.Withdraw.RejectedReason
	}
	return "rejected by gateway"
}

// ProcessGatewayEvent applies at most one settlement effect for the event.
// Errors returned here are for logging only; the controller answers 200
// regardless, so the gateway stops retrying.
func (s *webhookService) ProcessGatewayEvent(ctx context.Context, payload *GatewayWebhookPayload) error {
	externalRef := payload.ExternalReference()
	if externalRef == "" {
		logrus.Warn("Webhook payload carried no external reference, ignoring")
		return nil
	}

	outcome := gateway.MapGatewayStatus(payload.GatewayStatus())
	if outcome == gateway.OutcomePending {
		// Intermediate status: nothing to settle yet.
		logrus.WithFields(logrus.Fields{
			"external_reference_id": externalRef,
			"gateway_status":        payload.GatewayStatus(),
		}).Debug("Webhook with non-terminal status ignored")
		return nil
	}

	first, err := s.replayGuard.FirstDelivery(ctx, externalRef, outcome)
	if err != nil {
		logrus.WithError(err).Warn("Webhook replay guard degraded, relying on conditional transition")
	}
	if !first {
		s.metrics.RecordWebhookEvent("unknown", "replay")
		return nil
	}

	if err := s.settle(ctx, payload, externalRef, outcome); err != nil {
		// The claim must not outlive a failed settlement: the gateway's
		// re-delivery is the recovery path, and a standing claim would
		// drop it as a replay until the TTL expires.
		if relErr := s.replayGuard.Release(ctx, externalRef, outcome); relErr != nil {
			logrus.WithError(relErr).WithField("external_reference_id", externalRef).
				Warn("Failed to release webhook replay claim after settlement error")
		}
		return err
	}
	return nil
}

func (s *webhookService) settle(ctx context.Context, payload *GatewayWebhookPayload, externalRef, outcome string) error {
	transaction, err := s.transactions.GetByExternalReference(ctx, externalRef)
	if err != nil {
		return fmt.Errorf("failed to look up transaction for webhook: %w", err)
	}
	if transaction == nil {
		s.metrics.RecordWebhookEvent("unknown", "unmatched")
		logrus.WithField("external_reference_id", externalRef).
			Warn("Webhook for unknown external reference ignored")
		return nil
	}

	switch {
	case transaction.Type == models.TransactionTypeDeposit && outcome == gateway.OutcomeApproved:
		return s.settleDepositApproved(ctx, transaction)
	case transaction.Type == models.TransactionTypeDeposit && outcome == gateway.OutcomeRejected:
		return s.settleDepositRejected(ctx, transaction, payload.rejectedReason())
	case transaction.Type == models.TransactionTypeWithdrawal && outcome == gateway.OutcomeApproved:
		return s.settleWithdrawalApproved(ctx, transaction)
	case transaction.Type == models.TransactionTypeWithdrawal && outcome == gateway.OutcomeRejected:
		return s.settleWithdrawalRejected(ctx, transaction, payload.rejectedReason())
	default:
		s.metrics.RecordWebhookEvent(transaction.Type, "ignored")
		logrus.WithFields(logrus.Fields{
			"transaction_id": transaction.TransactionID,
			"type":           transaction.Type,
			"outcome":        outcome,
		}).Warn("Webhook for unexpected transaction type ignored")
		return nil
	}
}

// settleDepositApproved credits the balance exactly once: the conditional
// pending->approved transition is the gate, so the credit only happens on the
// delivery that wins the transition.
func (s *webhookService) settleDepositApproved(ctx context.Context, transaction *models.Transaction) error {
	applied, err := s.transactions.MarkApprovedIfPending(ctx, transaction.ID)
	if err != nil {
		return fmt.Errorf("failed to approve deposit: %w", err)
	}
	if !applied {
		s.metrics.RecordWebhookEvent(models.TransactionTypeDeposit, "already_settled")
		return nil
	}

	if err := s.profiles.CreditBalance(ctx, transaction.UserID, transaction.Amount); err != nil {
		// The row is approved but the credit failed; surface loudly.
		logrus.WithError(err).WithField("transaction_id", transaction.TransactionID).
			Error("Deposit approved but balance credit failed")
		return fmt.Errorf("failed to credit deposit: %w", err)
	}

	s.notify(ctx, transaction.UserID,
		"Depósito confirmado",
		fmt.Sprintf("Seu depósito de R$ %s foi confirmado.", transaction.Amount.StringFixed(2)),
		models.NotificationTypeSuccess)
	s.publish(ctx, events.EventDepositApproved, transaction)
	s.metrics.RecordWebhookEvent(models.TransactionTypeDeposit, "approved")

	logrus.WithFields(logrus.Fields{
		"transaction_id": transaction.TransactionID,
		"user_id":        transaction.UserID,
		"amount":         transaction.Amount.String(),
	}).Info("Deposit settled")
	return nil
}

// settleDepositRejected only flips the row and notifies: no balance was moved
// at initiation, so there is nothing to revert.
func (s *webhookService) settleDepositRejected(ctx context.Context, transaction *models.Transaction, reason string) error {
	applied, err := s.transactions.MarkRejectedIfPending(ctx, transaction.ID, reason)
	if err != nil {
		return fmt.Errorf("failed to reject deposit: %w", err)
	}
	if !applied {
		s.metrics.RecordWebhookEvent(models.TransactionTypeDeposit, "already_settled")
		return nil
	}

	s.notify(ctx, transaction.UserID,
		"Depósito não realizado",
		fmt.Sprintf("Seu depósito de R$ %s não foi concluído.", transaction.Amount.StringFixed(2)),
		models.NotificationTypeError)
	s.publish(ctx, events.EventDepositRejected, transaction)
	s.metrics.RecordWebhookEvent(models.TransactionTypeDeposit, "rejected")
	return nil
}

// settleWithdrawalApproved notifies only: the balance was already debited at
// initiation.
func (s *webhookService) settleWithdrawalApproved(ctx context.Context, transaction *models.Transaction) error {
	applied, err := s.transactions.MarkApprovedIfPending(ctx, transaction.ID)
	if err != nil {
		return fmt.Errorf("failed to approve withdrawal: %w", err)
	}
	if !applied {
		s.metrics.RecordWebhookEvent(models.TransactionTypeWithdrawal, "already_settled")
		return nil
	}

	s.notify(ctx, transaction.UserID,
		"Saque realizado",
		fmt.Sprintf("Seu saque de R$ %s foi concluído.", transaction.Amount.StringFixed(2)),
		models.NotificationTypeSuccess)
	s.publish(ctx, events.EventWithdrawalApproved, transaction)
	s.metrics.RecordWebhookEvent(models.TransactionTypeWithdrawal, "approved")
	return nil
}

// settleWithdrawalRejected restores the full debited gross, once.
func (s *webhookService) settleWithdrawalRejected(ctx context.Context, transaction *models.Transaction, reason string) error {
	applied, err := s.transactions.MarkRejectedIfPending(ctx, transaction.ID, reason)
	if err != nil {
		return fmt.Errorf("failed to reject withdrawal: %w", err)
	}
	if !applied {
		s.metrics.RecordWebhookEvent(models.TransactionTypeWithdrawal, "already_settled")
		return nil
	}

	if err := s.profiles.CreditBalance(ctx, transaction.UserID, transaction.Amount); err != nil {
		logrus.WithError(err).WithField("transaction_id", transaction.TransactionID).
			Error("Withdrawal rejected but balance restore failed")
		return fmt.Errorf("failed to restore withdrawal debit: %w", err)
	}

	s.notify(ctx, transaction.UserID,
		"Saque não realizado",
		fmt.Sprintf("Seu saque de R$ %s foi recusado e o valor foi devolvido ao seu saldo.", transaction.Amount.StringFixed(2)),
		models.NotificationTypeError)
	s.publish(ctx, events.EventWithdrawalRejected, transaction)
	s.metrics.RecordWebhookEvent(models.TransactionTypeWithdrawal, "rejected")
	return nil
}

func (s *webhookService) notify(ctx context.Context, userID int64, title, message, notifType string) {
	notification := models.NewNotification(userID, title, message, notifType)
	if err := s.notifications.Create(ctx, notification); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to create settlement notification")
	}
}

func (s *webhookService) publish(ctx context.Context, eventType string, transaction *models.Transaction) {
	event := events.NewLedgerEvent(eventType, transaction.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = transaction.Amount.String()
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish settlement event")
	}
}
