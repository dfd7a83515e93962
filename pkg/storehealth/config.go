package storehealth

import "time"

// Config holds configuration for the store health monitor.
type Config struct {
	// Interval is how often every store is probed (default: 10s).
	Interval time.Duration

	// CheckTimeout bounds a single probe (default: 3s). A timeout counts as a failure.
	CheckTimeout time.Duration

	// StalenessThreshold marks a snapshot stale when older (default: 30s).
	StalenessThreshold time.Duration

	// FailureThreshold is the number of consecutive failures before a store is
	// reported unhealthy (default: 1).
	FailureThreshold int

	// LatencyWarning moves a healthy store into ZoneWarning (default: 500ms).
	LatencyWarning time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:           10 * time.Second,
		CheckTimeout:       3 * time.Second,
		StalenessThreshold: 30 * time.Second,
		FailureThreshold:   1,
		LatencyWarning:     500 * time.Millisecond,
	}
}
