package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhooksTotal, rateLimitedTotal) }

var (
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_total",
			Help: "Inbound provider callbacks by provider and result (credited/skipped/ignored/invalid).",
		},
		[]string{"provider", "result"},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the initiation rate limiter.",
		},
	)
)

func IncWebhook(provider, result string) {
	webhooksTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}

func IncRateLimited() { rateLimitedTotal.Inc() }
