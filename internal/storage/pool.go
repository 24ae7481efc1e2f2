// Package storage owns the PostgreSQL connection pool and the bulk-write
// and read queries for the hot-state and history tables of §3.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rahullalw/smart-ev-analytics/internal/security"
	"github.com/rahullalw/smart-ev-analytics/internal/utils"
)

// Config configures the pool. ApplyDefaults/Validate mirror the rest of
// this codebase's config packages.
type Config struct {
	DatabaseURL         string
	MaxConns            int32
	MinConns            int32
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
}

func (c *Config) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 50
	}
	if c.MinConns == 0 {
		c.MinConns = 5
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("storage: DatabaseURL is required")
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("storage: MaxConns (%d) must be >= MinConns (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}

// Pool wraps pgxpool.Pool with a background health checker and bounded
// exponential-backoff reconnect, the same shape every pgx-backed service in
// this fleet uses.
type Pool struct {
	pool   *pgxpool.Pool
	config *Config
	logger *slog.Logger

	healthy atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	reconnectMu    sync.Mutex
	lastReconnect  time.Time
	reconnectDelay time.Duration
}

// New opens the pool, verifies connectivity, and starts the background
// health checker.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Pool, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		config:         cfg,
		logger:         logger,
		ctx:            runCtx,
		cancel:         cancel,
		reconnectDelay: time.Second,
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("storage: invalid database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.HealthCheckPeriod = cfg.HealthCheckInterval
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolConfig.ConnConfig.OnNotice = func(c *pgconn.PgConn, n *pgconn.Notice) {
		p.logger.Debug("postgres notice", "severity", n.Severity, "message", n.Message)
	}

	connectCtx, connectCancel := context.WithTimeout(runCtx, cfg.ConnectTimeout)
	defer connectCancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("storage: failed to connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		cancel()
		return nil, fmt.Errorf("storage: ping failed: %w", err)
	}

	p.pool = pool
	p.healthy.Store(true)

	p.wg.Add(1)
	go p.healthCheckLoop()

	p.logger.Info("storage pool initialized",
		"max_conns", cfg.MaxConns,
		"min_conns", cfg.MinConns,
		"database", security.MaskDatabaseURL(cfg.DatabaseURL),
	)

	return p, nil
}

// Pgx returns the underlying pgxpool.Pool for query execution.
func (p *Pool) Pgx() *pgxpool.Pool {
	return p.pool
}

func (p *Pool) IsHealthy() bool {
	return p.healthy.Load()
}

func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		p.logger.Warn("storage health check goroutine did not stop within timeout")
	}

	if p.pool != nil {
		p.pool.Close()
	}
	p.logger.Info("storage pool closed")
}

func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.performHealthCheck()
		}
	}
}

func (p *Pool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	var result int
	err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		wasHealthy := p.healthy.Swap(false)
		if wasHealthy {
			p.logger.Error("storage health check failed", "error", err)
		}
		p.tryReconnect()
		return
	}

	wasUnhealthy := !p.healthy.Swap(true)
	if wasUnhealthy {
		p.logger.Info("storage connection restored")
		p.reconnectDelay = time.Second
	}
}

func (p *Pool) tryReconnect() {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	if time.Since(p.lastReconnect) < p.reconnectDelay {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.config.ConnectTimeout)
	defer cancel()

	err := p.pool.Ping(ctx)
	p.lastReconnect = utils.NowUTC()

	if err != nil {
		p.reconnectDelay = minDuration(p.reconnectDelay*2, 30*time.Second)
		p.logger.Error("storage reconnect failed", "error", err, "next_delay", p.reconnectDelay)
		return
	}
	p.healthy.Store(true)
	p.reconnectDelay = time.Second
	p.logger.Info("storage reconnect successful")
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
