package scheduler

import (
	"time"

	"github.com/emergent-company/dualstore/internal/config"
)

// Config holds scheduler configuration
type Config struct {
	// SyncSchedule is the cron expression for sync runs; empty disables them
	SyncSchedule string

	// StatsRefreshInterval refreshes the pending-items gauges between runs
	StatsRefreshInterval time.Duration

	TaskTimeout time.Duration
}

// NewConfig derives scheduler settings from the application config
func NewConfig(cfg *config.Config) *Config {
	return &Config{
		SyncSchedule:         cfg.Sync.Schedule,
		StatsRefreshInterval: time.Minute,
		TaskTimeout:          30 * time.Minute,
	}
}

// Enabled reports whether any task is scheduled
func (c *Config) Enabled() bool {
	return c.SyncSchedule != "" || c.StatsRefreshInterval > 0
}
