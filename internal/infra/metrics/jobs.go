package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal, ledgerDrift) }

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sched_job_runs_total",
			Help: "Total number of scheduled job runs, labeled by job and status.",
		},
		[]string{"job", "status"}, // 'ok', 'error'
	)

	ledgerDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_drift_subscriptions",
			Help: "Subscriptions whose token balance differs from their transaction log at the last audit.",
		},
	)
)

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}

func SetLedgerDrift(n int) { ledgerDrift.Set(float64(n)) }
