package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(gatewayCallsTotal, gatewayLatencyMs) }

var (
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Outbound provider calls by provider, operation and success.",
		},
		[]string{"provider", "op", "success"},
	)

	gatewayLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_calls_latency_ms",
			Help:    "Provider call latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000},
		},
		[]string{"provider", "op"},
	)
)

// ObserveGatewayCall records one outbound call (op: auth|pay|webpay|checkout|verify).
func ObserveGatewayCall(provider, op string, started time.Time, success bool) {
	gatewayCallsTotal.WithLabelValues(norm(provider), norm(op), boolLabel(success)).Inc()
	gatewayLatencyMs.WithLabelValues(norm(provider), norm(op)).Observe(float64(time.Since(started).Milliseconds()))
}
