package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rahullalw/smart-ev-analytics/internal/utils"
)

// Pinger is the minimal liveness probe a Monitor polls. storage.Pool
// satisfies this with its cached health flag; the Redis-backed queue is
// wrapped in an adapter (cmd/server's queuePinger) that pings Redis.
type Pinger interface {
	IsHealthy() bool
}

// MonitorConfig controls a Monitor's polling cadence and circuit-breaker
// threshold.
type MonitorConfig struct {
	Name             string
	CheckInterval    time.Duration
	FailureThreshold int32
	Logger           *slog.Logger
}

// MonitorStats reports a Monitor's current state.
type MonitorStats struct {
	LastCheckTime       time.Time
	ConsecutiveFailures int32
	IsHealthy           bool
}

// Monitor periodically polls a Pinger and updates a Checker, engaging a
// circuit breaker after FailureThreshold consecutive failures so a single
// flaky check doesn't flip readiness.
type Monitor struct {
	config              *MonitorConfig
	checker             *Checker
	target              Pinger
	consecutiveFailures int32
	lastCheckTime       time.Time
	mu                  sync.RWMutex
}

func NewMonitor(cfg *MonitorConfig, checker *Checker, target Pinger) *Monitor {
	if cfg == nil {
		cfg = &MonitorConfig{CheckInterval: 30 * time.Second, FailureThreshold: 3, Logger: slog.Default()}
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{config: cfg, checker: checker, target: target, lastCheckTime: utils.NowUTC()}
}

// Start runs the polling loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.config.Logger.Info("health monitor started",
		"target", m.config.Name, "check_interval", m.config.CheckInterval, "failure_threshold", m.config.FailureThreshold)

	for {
		select {
		case <-ctx.Done():
			m.config.Logger.Info("health monitor stopped", "target", m.config.Name)
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Monitor) checkHealth() {
	now := utils.NowUTC()
	isHealthy := m.target.IsHealthy()
	wasHealthy := m.checker.IsHealthy()

	if isHealthy {
		atomic.StoreInt32(&m.consecutiveFailures, 0)
		if !wasHealthy {
			m.config.Logger.Warn("target recovered", "target", m.config.Name)
		}
		m.checker.SetHealthy(true)
	} else {
		failures := atomic.AddInt32(&m.consecutiveFailures, 1)
		if failures == 1 {
			m.config.Logger.Warn("health check failed", "target", m.config.Name, "failure_count", failures,
				"impact", fmt.Sprintf("circuit breaker engages after %d consecutive failures", m.config.FailureThreshold))
		}
		if failures >= m.config.FailureThreshold && wasHealthy {
			m.config.Logger.Error("circuit breaker engaged", "target", m.config.Name, "consecutive_failures", failures)
			m.checker.SetHealthy(false)
		}
	}

	m.mu.Lock()
	m.lastCheckTime = now
	m.mu.Unlock()
}

func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MonitorStats{
		LastCheckTime:       m.lastCheckTime,
		ConsecutiveFailures: atomic.LoadInt32(&m.consecutiveFailures),
		IsHealthy:           m.checker.IsHealthy(),
	}
}
