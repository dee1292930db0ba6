package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo, tokenCacheRequests, dbPoolConns) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paygate_build_info",
			Help: "Constant 1, labeled with the running version, commit and Go release.",
		},
		[]string{"version", "commit", "goversion"},
	)

	tokenCacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_token_cache_requests_total",
			Help: "Provider session token lookups, labeled by provider and hit/miss.",
		},
		[]string{"provider", "result"},
	)

	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_conns",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // total | idle | acquired
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

func IncTokenCache(provider string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	tokenCacheRequests.WithLabelValues(norm(provider), result).Inc()
}

func SetDBPoolStats(total, idle, acquired int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}
