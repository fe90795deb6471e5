package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher emits ledger events to interested consumers (statements, CRM,
// analytics). Publishing is fire-and-forget: settlement correctness never
// depends on a delivered event.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, event *LedgerEvent) error
	Close() error
}

// Ledger event types
const (
	EventDepositInitiated    = "deposit.initiated"
	EventDepositApproved     = "deposit.approved"
	EventDepositRejected     = "deposit.rejected"
	EventWithdrawalInitiated = "withdrawal.initiated"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalRejected  = "withdrawal.rejected"
	EventInvestmentCreated   = "investment.created"
	EventInvestmentCompleted = "investment.completed"
	EventCommissionPaid      = "commission.paid"
	EventReturnAccrued       = "return.accrued"
	EventBalanceTransferred  = "balance.transferred"
	EventCheckinCompleted    = "checkin.completed"
)

type LedgerEvent struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	UserID        int64                  `json:"user_id"`
	TransactionID string                 `json:"transaction_id,omitempty"`
	Amount        string                 `json:"amount,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

func NewLedgerEvent(eventType string, userID int64) *LedgerEvent {
	return &LedgerEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

type PublisherConfig struct {
	URL           string
	ExchangeName  string
	RetryAttempts int
	RetryDelay    time.Duration
}

type amqpPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *PublisherConfig
}

func NewPublisher(config *PublisherConfig) (Publisher, error) {
	if config.ExchangeName == "" {
		config.ExchangeName = "ledger.events"
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 2 * time.Second
	}

	p := &amqpPublisher{config: config}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *amqpPublisher) connect() error {
	var err error
	p.conn, err = amqp.Dial(p.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = p.channel.ExchangeDeclare(
		p.config.ExchangeName, // name
		"topic",               // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	return nil
}

func (p *amqpPublisher) PublishLedgerEvent(ctx context.Context, event *LedgerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    event.Timestamp,
		MessageId:    event.EventID,
		DeliveryMode: amqp.Persistent,
	}

	var publishErr error
	for attempt := 0; attempt < p.config.RetryAttempts; attempt++ {
		publishErr = p.channel.PublishWithContext(
			ctx,
			p.config.ExchangeName, // exchange
			event.EventType,       // routing key
			false,                 // mandatory
			false,                 // immediate
			publishing,
		)
		if publishErr == nil {
			return nil
		}

		if p.conn.IsClosed() {
			if reconnectErr := p.reconnect(); reconnectErr != nil {
				logrus.WithError(reconnectErr).Warn("failed to reconnect to RabbitMQ")
			}
		}

		if attempt < p.config.RetryAttempts-1 {
			time.Sleep(p.config.RetryDelay * time.Duration(attempt+1))
		}
	}

	return fmt.Errorf("failed to publish event after %d attempts: %w", p.config.RetryAttempts, publishErr)
}

func (p *amqpPublisher) reconnect() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	return p.connect()
}

func (p *amqpPublisher) Close() error {
	var errs []error

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}
	return nil
}

// NoopPublisher is used when the queue is disabled by configuration.
type NoopPublisher struct{}

func (NoopPublisher) PublishLedgerEvent(ctx context.Context, event *LedgerEvent) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
