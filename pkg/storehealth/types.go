package storehealth

import "time"

// Zone classifies a store's health for consumers that scale work down under pressure.
type Zone string

const (
	// ZoneCritical means the store failed its last checks.
	ZoneCritical Zone = "critical"
	// ZoneWarning means the store answers but slower than the warning latency.
	ZoneWarning Zone = "warning"
	// ZoneSafe means the store answers within the warning latency.
	ZoneSafe Zone = "safe"
)

// Status is the latest probe outcome for one store.
type Status struct {
	Healthy bool
	// LatencyMs is -1 when the last probe failed.
	LatencyMs           float64
	Zone                Zone
	Error               string
	ConsecutiveFailures int
	CheckedAt           time.Time
}

// Snapshot is an immutable view of every registered store. A new Snapshot
// replaces the previous one after each collection cycle.
type Snapshot struct {
	Stores    map[string]Status
	Timestamp time.Time
	// Stale is set on read when Timestamp is older than the staleness threshold.
	Stale bool
}

// Store returns the status for name. Unknown stores report unhealthy.
func (s *Snapshot) Store(name string) Status {
	if s == nil {
		return Status{LatencyMs: -1, Zone: ZoneCritical, Error: "no health data"}
	}
	st, ok := s.Stores[name]
	if !ok {
		return Status{LatencyMs: -1, Zone: ZoneCritical, Error: "store not monitored"}
	}
	return st
}

// Monitor is the interface for store health monitoring.
type Monitor interface {
	// Start runs one collection synchronously, then keeps collecting in the background.
	Start() error

	// Stop halts the background loop.
	Stop() error

	// Snapshot returns the latest snapshot. It never blocks on a probe.
	Snapshot() *Snapshot
}
