package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualstore_routing_decisions_total",
		Help: "Routing decisions by strategy, complexity and degradation",
	}, []string{"strategy", "complexity", "degraded"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualstore_routing_cache_lookups_total",
		Help: "Decision cache lookups by result (hit, miss)",
	}, []string{"result"})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dualstore_routing_execution_duration_seconds",
		Help:    "End-to-end query execution time by strategy",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})
)
