package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsService interface {
	// HTTP metrics
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)

	// Ledger metrics
	RecordDepositInitiated(outcome string)
	RecordWithdrawalInitiated(outcome string)
	RecordWebhookEvent(txType, outcome string)
	RecordAdminAction(action, outcome string)
	RecordAccrualRun(processedReturns, completedInvestments int, duration time.Duration)
	RecordCommissionPaid(level int, amount float64)
	RecordCheckin()

	// Gateway metrics
	RecordGatewayCall(endpoint string, success bool, duration time.Duration)
}

type prometheusMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	depositsInitiatedTotal    *prometheus.CounterVec
	withdrawalsInitiatedTotal *prometheus.CounterVec
	webhookEventsTotal        *prometheus.CounterVec
	adminActionsTotal         *prometheus.CounterVec

	accrualRunsTotal          prometheus.Counter
	accrualCreditsTotal       prometheus.Counter
	investmentsCompletedTotal prometheus.Counter
	accrualRunDuration        prometheus.Histogram

	commissionsPaidTotal  *prometheus.CounterVec
	commissionVolumeTotal *prometheus.CounterVec
	checkinsTotal         prometheus.Counter

	gatewayCallsTotal   *prometheus.CounterVec
	gatewayCallDuration *prometheus.HistogramVec
}

func NewPrometheusMetrics() MetricsService {
	m := &prometheusMetrics{}
	m.initMetrics()
	return m
}

func (m *prometheusMetrics) initMetrics() {
	m.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_api_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	m.depositsInitiatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_deposits_initiated_total",
			Help: "Deposit initiations by outcome",
		},
		[]string{"outcome"},
	)

	m.withdrawalsInitiatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_withdrawals_initiated_total",
			Help: "Withdrawal initiations by outcome",
		},
		[]string{"outcome"},
	)

	m.webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_webhook_events_total",
			Help: "Gateway webhook deliveries by transaction type and outcome",
		},
		[]string{"type", "outcome"},
	)

	m.adminActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_admin_actions_total",
			Help: "Admin withdrawal decisions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	m.accrualRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_api_accrual_runs_total",
			Help: "Completed daily-return accrual runs",
		},
	)

	m.accrualCreditsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_api_accrual_credits_total",
			Help: "Daily-return credits applied",
		},
	)

	m.investmentsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_api_investments_completed_total",
			Help: "Investments transitioned to completed",
		},
	)

	m.accrualRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_api_accrual_run_duration_seconds",
			Help:    "Duration of accrual runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	m.commissionsPaidTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_commissions_paid_total",
			Help: "Referral commissions paid by level",
		},
		[]string{"level"},
	)

	m.commissionVolumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_commission_volume_total",
			Help: "Referral commission volume by level",
		},
		[]string{"level"},
	)

	m.checkinsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_api_checkins_total",
			Help: "Daily check-in rewards claimed",
		},
	)

	m.gatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_gateway_calls_total",
			Help: "PIX gateway calls by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	m.gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_api_gateway_call_duration_seconds",
			Help:    "PIX gateway call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
}

func (m *prometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, httpStatusLabel(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordDepositInitiated(outcome string) {
	m.depositsInitiatedTotal.WithLabelValues(outcome).Inc()
}

func (m *prometheusMetrics) RecordWithdrawalInitiated(outcome string) {
	m.withdrawalsInitiatedTotal.WithLabelValues(outcome).Inc()
}

func (m *prometheusMetrics) RecordWebhookEvent(txType, outcome string) {
	m.webhookEventsTotal.WithLabelValues(txType, outcome).Inc()
}

func (m *prometheusMetrics) RecordAdminAction(action, outcome string) {
	m.adminActionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *prometheusMetrics) RecordAccrualRun(processedReturns, completedInvestments int, duration time.Duration) {
	m.accrualRunsTotal.Inc()
	m.accrualCreditsTotal.Add(float64(processedReturns))
	m.investmentsCompletedTotal.Add(float64(completedInvestments))
	m.accrualRunDuration.Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordCommissionPaid(level int, amount float64) {
	label := commissionLevelLabel(level)
	m.commissionsPaidTotal.WithLabelValues(label).Inc()
	m.commissionVolumeTotal.WithLabelValues(label).Add(amount)
}

func (m *prometheusMetrics) RecordCheckin() {
	m.checkinsTotal.Inc()
}

func (m *prometheusMetrics) RecordGatewayCall(endpoint string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "error"
	}
	m.gatewayCallsTotal.WithLabelValues(endpoint, result).Inc()
	m.gatewayCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func httpStatusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func commissionLevelLabel(level int) string {
	switch level {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "other"
	}
}

// NoopMetrics satisfies MetricsService for tests.
type NoopMetrics struct{}

func (NoopMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
}
func (NoopMetrics) RecordDepositInitiated(outcome string)    {}
func (NoopMetrics) RecordWithdrawalInitiated(outcome string) {}
func (NoopMetrics) RecordWebhookEvent(txType, outcome string) {
}
func (NoopMetrics) RecordAdminAction(action, outcome string) {}
func (NoopMetrics) RecordAccrualRun(processedReturns, completedInvestments int, duration time.Duration) {
}
func (NoopMetrics) RecordCommissionPaid(level int, amount float64)                  {}
func (NoopMetrics) RecordCheckin()                                                  {}
func (NoopMetrics) RecordGatewayCall(endpoint string, success bool, d time.Duration) {}
