package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(verifyTotal, verifyLatency) }

var (
	// status: pending|completed|failed|error
	verifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_checks_total",
			Help: "Provider status queries by provider and normalized status.",
		},
		[]string{"provider", "status"},
	)

	verifyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_status_check_seconds",
			Help:    "End-to-end duration of a status query including settlement.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)
)

// ObserveVerify records one status query started at started.
func ObserveVerify(provider, status string, started time.Time) {
	verifyTotal.WithLabelValues(norm(provider), norm(status)).Inc()
	verifyLatency.WithLabelValues(norm(provider)).Observe(time.Since(started).Seconds())
}
