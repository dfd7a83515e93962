package storehealth

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emergent-company/dualstore/pkg/logger"
)

// CheckFunc probes one store. A nil error means the store answered.
type CheckFunc func(ctx context.Context) error

type storeMonitor struct {
	cfg      *Config
	log      *slog.Logger
	checkers map[string]CheckFunc
	names    []string

	current atomic.Pointer[Snapshot]

	mu      sync.Mutex
	ticker  *time.Ticker
	stopCh  chan struct{}
	running bool

	// guarded by collectMu; collect never runs concurrently with itself
	collectMu      sync.Mutex
	consecFailures map[string]int

	now func() time.Time
}

// NewMonitor creates a monitor over the named checkers.
// cfg: Configuration for the monitor (uses DefaultConfig if nil).
func NewMonitor(cfg *Config, checkers map[string]CheckFunc, log *slog.Logger) Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}

	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	return &storeMonitor{
		cfg:            cfg,
		log:            log.With(logger.Scope("storehealth.monitor")),
		checkers:       checkers,
		names:          names,
		consecFailures: make(map[string]int, len(checkers)),
		now:            time.Now,
	}
}

func (m *storeMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	// routing must see real data before the first request
	m.collect()

	m.running = true
	m.stopCh = make(chan struct{})
	m.ticker = time.NewTicker(m.cfg.Interval)

	ticker, stopCh := m.ticker, m.stopCh
	go func() {
		for {
			select {
			case <-ticker.C:
				m.collect()
			case <-stopCh:
				return
			}
		}
	}()

	m.log.Info("store health monitor started",
		slog.Duration("interval", m.cfg.Interval),
		slog.Any("stores", m.names))
	return nil
}

func (m *storeMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	m.ticker.Stop()
	close(m.stopCh)
	m.log.Info("store health monitor stopped")
	return nil
}

func (m *storeMonitor) Snapshot() *Snapshot {
	snap := m.current.Load()
	if snap == nil {
		return nil
	}
	if m.now().Sub(snap.Timestamp) <= m.cfg.StalenessThreshold {
		return snap
	}
	stale := *snap
	stale.Stale = true
	return &stale
}

func (m *storeMonitor) collect() {
	m.collectMu.Lock()
	defer m.collectMu.Unlock()

	type probe struct {
		name    string
		latency time.Duration
		err     error
	}

	results := make(chan probe, len(m.names))
	for _, name := range m.names {
		go func(name string, check CheckFunc) {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CheckTimeout)
			defer cancel()
			start := time.Now()
			err := check(ctx)
			if err == nil && ctx.Err() != nil {
				err = ctx.Err()
			}
			results <- probe{name: name, latency: time.Since(start), err: err}
		}(name, m.checkers[name])
	}

	prev := m.current.Load()
	next := &Snapshot{
		Stores:    make(map[string]Status, len(m.names)),
		Timestamp: m.now(),
	}

	for range m.names {
		p := <-results
		st := Status{CheckedAt: next.Timestamp}

		if p.err != nil {
			m.consecFailures[p.name]++
			st.ConsecutiveFailures = m.consecFailures[p.name]
			st.LatencyMs = -1
			st.Error = p.err.Error()
			st.Healthy = st.ConsecutiveFailures < m.cfg.FailureThreshold
			st.Zone = ZoneCritical
			if st.Healthy {
				st.Zone = ZoneWarning
			}
			ProbeFailures.WithLabelValues(p.name).Inc()

			if st.ConsecutiveFailures >= 3 {
				m.log.Error("CRITICAL: persistent store probe failures",
					slog.String("store", p.name),
					slog.Int("failures", st.ConsecutiveFailures),
					logger.Error(p.err))
			} else {
				m.log.Warn("store probe failed",
					slog.String("store", p.name),
					logger.Error(p.err))
			}
		} else {
			m.consecFailures[p.name] = 0
			st.Healthy = true
			st.LatencyMs = float64(p.latency.Microseconds()) / 1000.0
			st.Zone = ZoneSafe
			if p.latency > m.cfg.LatencyWarning {
				st.Zone = ZoneWarning
			}
			StoreLatency.WithLabelValues(p.name).Set(st.LatencyMs)
		}

		if prev != nil {
			if old, ok := prev.Stores[p.name]; ok && old.Healthy != st.Healthy {
				m.log.Warn("store health transition",
					slog.String("store", p.name),
					slog.Bool("healthy", st.Healthy),
					slog.String("zone", string(st.Zone)))
			}
		}

		up := 0.0
		if st.Healthy {
			up = 1
		}
		StoreUp.WithLabelValues(p.name).Set(up)
		next.Stores[p.name] = st
	}

	m.current.Store(next)

	m.log.Debug("store health collected", slog.Int("stores", len(next.Stores)))
}
