package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ledger-api/internal/engine"
	"ledger-api/internal/events"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
)

func pendingTransaction(txType string, amount decimal.Decimal, externalRef string) *models.Transaction {
	tx := models.NewPendingTransaction(1, txType, amount, "test")
	tx.ID = primitive.NewObjectID()
	tx.ExternalReferenceID = externalRef
	if txType == models.TransactionTypeWithdrawal {
		tx.PixKey = validCPF
		tx.PixKeyType = "cpf"
		tx.Fee = amount.Mul(decimal.NewFromFloat(0.1)).Round(2)
	}
	return tx
}

func TestWebhookService_ProcessGatewayEvent(t *testing.T) {
	amount := decimal.NewFromInt(100)

	tests := []struct {
		name        string
		payload     *GatewayWebhookPayload
		firstSeen   bool
		setupMocks  func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository)
		expectError bool
	}{
		{
			name:      "completed deposit credits the balance once",
			payload:   &GatewayWebhookPayload{TransactionID: "gw-1", Status: "COMPLETED"},
			firstSeen: true,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
				tx := pendingTransaction(models.TransactionTypeDeposit, amount, "gw-1")
				transactions.On("GetByExternalReference", mock.Anything, "gw-1").Return(tx, nil)
				transactions.On("MarkApprovedIfPending", mock.Anything, tx.ID).Return(true, nil)
				profiles.On("CreditBalance", mock.Anything, int64(1), amount).Return(nil)
				notifications.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name:      "already settled deposit does not credit again",
			payload:   &GatewayWebhookPayload{TransactionID: "gw-1", Status: "COMPLETED"},
			firstSeen: true,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
				tx := pendingTransaction(models.TransactionTypeDeposit, amount, "gw-1")
				transactions.On("GetByExternalReference", mock.Anything, "gw-1").Return(tx, nil)
				transactions.On("MarkApprovedIfPending", mock.Anything, tx.ID).Return(false, nil)
			},
		},
		{
			name:      "failed deposit flips the row without touching the balance",
			payload:   &GatewayWebhookPayload{TransactionID: "gw-1", Status: "FAILED"},
			firstSeen: true,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
				tx := pendingTransaction(models.TransactionTypeDeposit, amount, "gw-1")
				transactions.On("GetByExternalReference", mock.Anything, "gw-1").Return(tx, nil)
				transactions.On("MarkRejectedIfPending", mock.Anything, tx.ID, "rejected by gateway").Return(true, nil)
				notifications.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name: "rejected withdrawal restores the debited gross",
			payload: &GatewayWebhookPayload{
				Withdraw: &WithdrawCallback{ID: "gw-wd-1", Status: "REFUNDED", RejectedReason: "key not found"},
			},
			firstSeen: true,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
				tx := pendingTransaction(models.TransactionTypeWithdrawal, amount, "gw-wd-1")
				transactions.On("GetByExternalReference", mock.Anything, "gw-wd-1").Return(tx, nil)
				transactions.On("MarkRejectedIfPending", mock.Anything, tx.ID, "key not found").Return(true, nil)
				profiles.On("CreditBalance", mock.Anything, int64(1), amount).Return(nil)
				notifications.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name: "completed withdrawal only flips the row",
			payload: &GatewayWebhookPayload{
				Withdraw: &WithdrawCallback{ID: "gw-wd-1", Status: "COMPLETED"},
			},
			firstSeen: true,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
				tx := pendingTransaction(models.TransactionTypeWithdrawal, amount, "gw-wd-1")
				transactions.On("GetByExternalReference", mock.Anything, "gw-wd-1").Return(tx, nil)
				transactions.On("MarkApprovedIfPending", mock.Anything, tx.ID).Return(true, nil)
				notifications.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name:      "non-terminal status is ignored",
			payload:   &GatewayWebhookPayload{TransactionID: "gw-1", Status: "WAITING_PAYMENT"},
			firstSeen: true,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
			},
		},
		{
			name:      "unmatched external reference is ignored",
			payload:   &GatewayWebhookPayload{TransactionID: "gw-unknown", Status: "COMPLETED"},
			firstSeen: true,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
				transactions.On("GetByExternalReference", mock.Anything, "gw-unknown").Return(nil, nil)
			},
		},
		{
			name:      "replayed delivery is dropped by the fast guard",
			payload:   &GatewayWebhookPayload{TransactionID: "gw-1", Status: "COMPLETED"},
			firstSeen: false,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
			},
		},
		{
			name:      "payload without any reference is ignored",
			payload:   &GatewayWebhookPayload{Status: "COMPLETED"},
			firstSeen: true,
			setupMocks: func(profiles *MockProfileRepository, transactions *MockTransactionRepository, notifications *MockNotificationRepository) {
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := new(MockProfileRepository)
			transactions := new(MockTransactionRepository)
			notifications := new(MockNotificationRepository)
			cacheSvc := new(MockCacheService)
			cacheSvc.On("SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(tt.firstSeen, nil).Maybe()
			tt.setupMocks(profiles, transactions, notifications)

			svc := NewWebhookService(
				profiles,
				transactions,
				notifications,
				engine.NewReplayGuard(cacheSvc, time.Hour),
				events.NoopPublisher{},
				monitoring.NoopMetrics{},
			)

			err := svc.ProcessGatewayEvent(context.Background(), tt.payload)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			profiles.AssertExpectations(t)
			transactions.AssertExpectations(t)
			notifications.AssertExpectations(t)
		})
	}
}

func TestWebhookService_FailedSettlementAllowsRedelivery(t *testing.T) {
	amount := decimal.NewFromInt(100)
	tx := pendingTransaction(models.TransactionTypeDeposit, amount, "gw-1")

	profiles := new(MockProfileRepository)
	transactions := new(MockTransactionRepository)
	notifications := new(MockNotificationRepository)
	cacheSvc := new(MockCacheService)

	var claimedKey, releasedKey string
	cacheSvc.On("SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil).
		Run(func(args mock.Arguments) { claimedKey = args.String(1) })
	cacheSvc.On("Delete", mock.Anything, mock.Anything).
		Return(nil).Once().
		Run(func(args mock.Arguments) { releasedKey = args.String(1) })

	transactions.On("GetByExternalReference", mock.Anything, "gw-1").Return(tx, nil).Twice()
	transactions.On("MarkApprovedIfPending", mock.Anything, tx.ID).
		Return(false, errors.New("write conflict")).Once()
	transactions.On("MarkApprovedIfPending", mock.Anything, tx.ID).
		Return(true, nil).Once()
	profiles.On("CreditBalance", mock.Anything, int64(1), amount).Return(nil).Once()
	notifications.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := NewWebhookService(
		profiles,
		transactions,
		notifications,
		engine.NewReplayGuard(cacheSvc, time.Hour),
		events.NoopPublisher{},
		monitoring.NoopMetrics{},
	)

	payload := &GatewayWebhookPayload{TransactionID: "gw-1", Status: "COMPLETED"}

	// The first delivery claims the guard key but fails to settle; the
	// claim must be released so the gateway's retry is not dropped.
	err := svc.ProcessGatewayEvent(context.Background(), payload)
	assert.Error(t, err)
	assert.Equal(t, claimedKey, releasedKey)

	err = svc.ProcessGatewayEvent(context.Background(), payload)
	assert.NoError(t, err)

	cacheSvc.AssertExpectations(t)
	transactions.AssertExpectations(t)
	profiles.AssertNumberOfCalls(t, "CreditBalance", 1)
}

func TestGatewayWebhookPayload_ExternalReference(t *testing.T) {
	tests := []struct {
		name    string
		payload GatewayWebhookPayload
		wantRef string
	}{
		{"withdraw id wins", GatewayWebhookPayload{TransactionID: "a", ID: "b", Withdraw: &WithdrawCallback{ID: "c"}}, "c"},
		{"transactionId over id", GatewayWebhookPayload{TransactionID: "a", ID: "b"}, "a"},
		{"bare id as fallback", GatewayWebhookPayload{ID: "b"}, "b"},
		{"empty payload", GatewayWebhookPayload{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantRef, tt.payload.ExternalReference())
		})
	}
}
