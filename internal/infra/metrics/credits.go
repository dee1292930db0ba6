package metrics

import (
	"paygate/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		creditsTotal,
		tokensCreditedTotal,
		attemptsByStatus,
	)
}

var (
	creditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_total",
			Help: "Credit engine outcomes by status, skip reason and source.",
		},
		[]string{"status", "reason", "source"},
	)

	tokensCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_credited_total",
			Help: "Tokens credited per service type.",
		},
		[]string{"service"},
	)

	attemptsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_attempts",
			Help: "Current number of payment attempts by status.",
		},
		[]string{"status"}, // 'pending', 'completed', 'failed'
	)
)

func ObserveCredit(res model.CreditResult, source model.CreditSource, serviceType string) {
	creditsTotal.WithLabelValues(string(res.Status), string(res.Reason), string(source)).Inc()
	if res.IsCredited() {
		tokensCreditedTotal.WithLabelValues(norm(serviceType)).Add(float64(res.Tokens))
	}
}

func SetAttemptsByStatus(counts map[model.PaymentStatus]int) {
	for _, status := range []model.PaymentStatus{
		model.PaymentStatusPending,
		model.PaymentStatusCompleted,
		model.PaymentStatusFailed,
	} {
		attemptsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
