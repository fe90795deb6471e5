package engine

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

// AccrualItem is one daily-return credit the plan wants applied.
type AccrualItem struct {
	Investment *models.UserInvestment
	Date       string
	Amount     decimal.Decimal
}

// AccrualPlan is the pure output of a run decision: which positions get
// today's credit and which transition to completed.
type AccrualPlan struct {
	Accruals    []AccrualItem
	Completions []*models.UserInvestment
}

// BuildAccrualPlan decides, without side effects, what a run at instant now
// should do with the given active positions:
//   - a position whose end date has passed is completed, with no back-pay for
//     missed windows;
//   - otherwise, a position at least 24 hours past its start is scheduled for
//     today's credit of its precomputed daily return.
//
// Whether today's credit was already applied is not decided here: the unique
// (investment, date) accrual entry resolves that at apply time, which is what
// makes concurrent or repeated runs idempotent.
func BuildAccrualPlan(now time.Time, positions []*models.UserInvestment) AccrualPlan {
	plan := AccrualPlan{}
	date := models.AccrualDateFor(now)

	for _, position := range positions {
		if position.Status != models.InvestmentStatusActive {
			continue
		}
		if position.IsMatured(now) {
			plan.Completions = append(plan.Completions, position)
			continue
		}
		if !position.EligibleForAccrual(now) {
			continue
		}
		plan.Accruals = append(plan.Accruals, AccrualItem{
			Investment: position,
			Date:       date,
			Amount:     position.DailyReturn,
		})
	}

	return plan
}

// AccrualSummary is the run report returned to the caller.
type AccrualSummary struct {
	ProcessedReturns     int `json:"processedReturns"`
	CompletedInvestments int `json:"completedInvestments"`
}

// AccrualEngine applies accrual plans against the store. Per-position failures
// are logged and skipped so one bad row cannot stall the whole run; every
// mutation is individually idempotent, so the next run picks up the remainder.
type AccrualEngine struct {
	investments   repository.InvestmentRepository
	profiles      repository.ProfileRepository
	transactions  repository.TransactionRepository
	notifications repository.NotificationRepository
	publisher     events.Publisher
	metrics       monitoring.MetricsService
	clock         func() time.Time
}

func NewAccrualEngine(
	investments repository.InvestmentRepository,
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	notifications repository.NotificationRepository,
	publisher events.Publisher,
	metrics monitoring.MetricsService,
) *AccrualEngine {
	return &AccrualEngine{
		investments:   investments,
		profiles:      profiles,
		transactions:  transactions,
		notifications: notifications,
		publisher:     publisher,
		metrics:       metrics,
		clock:         time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (e *AccrualEngine) WithClock(clock func() time.Time) *AccrualEngine {
	e.clock = clock
	return e
}

func (e *AccrualEngine) Run(ctx context.Context) (*AccrualSummary, error) {
	started := e.clock()

	positions, err := e.investments.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active investments: %w", err)
	}

	plan := BuildAccrualPlan(started, positions)
	summary := &AccrualSummary{}

	for _, position := range plan.Completions {
		if e.completePosition(ctx, position) {
			summary.CompletedInvestments++
		}
	}

	for _, item := range plan.Accruals {
		if e.applyAccrual(ctx, item) {
			summary.ProcessedReturns++
		}
	}

	e.metrics.RecordAccrualRun(summary.ProcessedReturns, summary.CompletedInvestments, time.Since(started))

	logrus.WithFields(logrus.Fields{
		"active_positions":      len(positions),
		"processed_returns":     summary.ProcessedReturns,
		"completed_investments": summary.CompletedInvestments,
	}).Info("Accrual run finished")

	return summary, nil
}

func (e *AccrualEngine) completePosition(ctx context.Context, position *models.UserInvestment) bool {
	applied, err := e.investments.CompleteIfActive(ctx, position.ID)
	if err != nil {
		logrus.WithError(err).WithField("investment_id", position.ID.Hex()).
			Error("Failed to complete matured investment")
		return false
	}
	if !applied {
		// Another run already completed it.
		return false
	}

	notification := models.NewNotification(
		position.UserID,
		"Investimento concluído",
		fmt.Sprintf("Seu investimento no plano %s foi concluído.", position.PlanName),
		models.NotificationTypeInfo,
	)
	if err := e.notifications.Create(ctx, notification); err != nil {
		logrus.WithError(err).Warn("Failed to create completion notification")
	}

	event := events.NewLedgerEvent(events.EventInvestmentCompleted, position.UserID)
	event.Amount = position.Amount.String()
	event.Metadata = map[string]interface{}{"investment_id": position.ID.Hex()}
	if err := e.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish investment completion event")
	}

	return true
}

func (e *AccrualEngine) applyAccrual(ctx context.Context, item AccrualItem) bool {
	entry := &models.AccrualEntry{
		InvestmentID: item.Investment.ID,
		UserID:       item.Investment.UserID,
		AccrualDate:  item.Date,
		Amount:       item.Amount,
	}

	inserted, err := e.investments.InsertAccrualEntry(ctx, entry)
	if err != nil {
		logrus.WithError(err).WithField("investment_id", item.Investment.ID.Hex()).
			Error("Failed to record accrual entry")
		return false
	}
	if !inserted {
		// Today's credit already happened.
		return false
	}

	if err := e.profiles.CreditAccumulated(ctx, item.Investment.UserID, item.Amount); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"investment_id": item.Investment.ID.Hex(),
			"user_id":       item.Investment.UserID,
		}).Error("Failed to credit accumulated balance for accrual")
		return false
	}

	transaction := models.NewCompletedTransaction(
		item.Investment.UserID,
		models.TransactionTypeReturn,
		item.Amount,
		fmt.Sprintf("Rendimento diário do plano %s", item.Investment.PlanName),
	)
	transaction.ExternalReferenceID = fmt.Sprintf("accrual_%s_%s", item.Investment.ID.Hex(), item.Date)
	if err := e.transactions.Create(ctx, transaction); err != nil {
		logrus.WithError(err).WithField("investment_id", item.Investment.ID.Hex()).
			Error("Failed to record return transaction")
	}

	event := events.NewLedgerEvent(events.EventReturnAccrued, item.Investment.UserID)
	event.TransactionID = transaction.TransactionID
	event.Amount = item.Amount.String()
	event.Metadata = map[string]interface{}{
		"investment_id": item.Investment.ID.Hex(),
		"accrual_date":  item.Date,
	}
	if err := e.publisher.PublishLedgerEvent(ctx, event); err != nil {
		logrus.WithError(err).Warn("Failed to publish accrual event")
	}

	return true
}
