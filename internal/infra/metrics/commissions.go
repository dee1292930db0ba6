package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(commissionsTotal, commissionAmountTotal) }

var (
	commissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissions_total",
			Help: "Commission and reward postings by kind and result (posted/duplicate/no_referrer/error).",
		},
		[]string{"kind", "result"}, // kind: commission|credit_points
	)

	commissionAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "commission_amount_total",
			Help: "Sum of posted commission amounts in minor units.",
		},
	)
)

func IncCommission(kind, result string) {
	commissionsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func AddCommissionAmount(amount int64) {
	commissionAmountTotal.Add(float64(amount))
}
