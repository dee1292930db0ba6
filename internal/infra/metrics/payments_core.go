package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		attemptRecordFailures,
		paymentRetriesTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment initiations by provider and outcome (initiated/rejected/auth_failed/network_error).",
		},
		[]string{"provider", "outcome"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of credited payments, labeled by provider.",
		},
		[]string{"provider"},
	)

	attemptRecordFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_attempt_record_failures_total",
			Help: "Attempts that could not be persisted after a successful initiation.",
		},
	)

	paymentRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_retries_total",
			Help: "Initiation retries after transport failures, by provider.",
		},
		[]string{"provider"},
	)
)

func IncPayment(provider, outcome string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func AddPaymentRevenue(provider string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(provider)).Add(float64(amount))
}

func IncAttemptRecordFailure() { attemptRecordFailures.Inc() }

func IncPaymentRetry(provider string) {
	paymentRetriesTotal.WithLabelValues(norm(provider)).Inc()
}
