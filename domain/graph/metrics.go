package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dualstore_graph_query_duration_seconds",
		Help:    "Duration of graph store calls by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualstore_graph_query_errors_total",
		Help: "Total number of failed graph store calls by operation",
	}, []string{"operation"})
)
