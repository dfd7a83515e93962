package storehealth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dualstore_store_up",
		Help: "1 when the store passed its last health probe",
	}, []string{"store"})

	StoreLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dualstore_store_probe_latency_ms",
		Help: "Latency of the last successful health probe in milliseconds",
	}, []string{"store"})

	ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualstore_store_probe_failures_total",
		Help: "Total number of failed store health probes",
	}, []string{"store"})

	WorkerConcurrency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dualstore_worker_current_concurrency",
		Help: "Current concurrency level granted to a worker by the health scaler",
	}, []string{"worker_type"})

	WorkerAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dualstore_worker_concurrency_adjustments_total",
		Help: "Total number of concurrency adjustments performed",
	}, []string{"worker_type", "direction"})
)
