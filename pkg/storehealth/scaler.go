package storehealth

import (
	"math"
	"sync"
	"time"
)

// ConcurrencyScaler adjusts a worker's concurrency from the zone of the store it writes to.
type ConcurrencyScaler struct {
	monitor        Monitor
	store          string
	minConcurrency int
	maxConcurrency int
	enabled        bool
	workerType     string

	mu                 sync.Mutex
	currentConcurrency int
	lastAdjustment     time.Time
	now                func() time.Time
}

// NewConcurrencyScaler creates a scaler for workerType, driven by store's health.
func NewConcurrencyScaler(monitor Monitor, store, workerType string, enabled bool, min, max int) *ConcurrencyScaler {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return &ConcurrencyScaler{
		monitor:            monitor,
		store:              store,
		workerType:         workerType,
		enabled:            enabled,
		minConcurrency:     min,
		maxConcurrency:     max,
		currentConcurrency: max,
		lastAdjustment:     time.Now(),
		now:                time.Now,
	}
}

// GetConcurrency returns the concurrency currently allowed. Disabled scalers
// return staticValue unchanged.
func (s *ConcurrencyScaler) GetConcurrency(staticValue int) int {
	if !s.enabled || s.monitor == nil {
		return staticValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.monitor.Snapshot()
	zone := snap.Store(s.store).Zone
	if snap != nil && snap.Stale {
		zone = ZoneWarning
	}

	now := s.now()
	sinceLast := now.Sub(s.lastAdjustment)
	target := s.currentConcurrency

	switch zone {
	case ZoneCritical:
		target = s.minConcurrency
	case ZoneWarning:
		target = int(math.Max(float64(s.minConcurrency), float64(s.maxConcurrency)*0.5))
	case ZoneSafe:
		target = s.maxConcurrency
	}

	switch {
	case target < s.currentConcurrency:
		// scale down immediately on critical, otherwise after a 1m cooldown
		if zone == ZoneCritical || sinceLast >= time.Minute {
			s.currentConcurrency = target
			s.lastAdjustment = now
			WorkerAdjustments.WithLabelValues(s.workerType, "down").Inc()
		}
	case target > s.currentConcurrency:
		// scale up by at most 50% every 5m
		if sinceLast >= 5*time.Minute {
			step := int(math.Max(1, float64(s.currentConcurrency)*0.5))
			s.currentConcurrency = int(math.Min(float64(target), float64(s.currentConcurrency+step)))
			s.lastAdjustment = now
			WorkerAdjustments.WithLabelValues(s.workerType, "up").Inc()
		}
	}

	s.currentConcurrency = max(s.minConcurrency, min(s.currentConcurrency, s.maxConcurrency))
	WorkerConcurrency.WithLabelValues(s.workerType).Set(float64(s.currentConcurrency))
	return s.currentConcurrency
}
