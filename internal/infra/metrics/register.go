package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register queues collectors from each file's init; nothing is exported until
// MustRegister runs.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister adds every queued collector to the default registry. Safe to call
// more than once.
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(collectors...)
	})
}

// Handler registers the collectors if needed and serves the default registry.
func Handler() http.Handler {
	MustRegister()
	return promhttp.Handler()
}
