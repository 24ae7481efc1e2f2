// Package session implements the vehicle<->meter mapping lifecycle of
// spec.md §4.4: start, end, lookup, and fleet-wide bulk variants.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rahullalw/smart-ev-analytics/internal/monitoring"
	"github.com/rahullalw/smart-ev-analytics/internal/storage"
	"github.com/rahullalw/smart-ev-analytics/internal/worker"
)

var (
	// ErrConflict is returned by Start when the vehicle already has an
	// active session (enforced physically by the unique partial index on
	// vehicle_meter_session(vehicle_id) WHERE active).
	ErrConflict = errors.New("session: vehicle already has an active session")
	// ErrNotFound is returned by End when the vehicle has no active
	// session to close.
	ErrNotFound = errors.New("session: no active session for vehicle")
)

const pgUniqueViolation = "23505"

// Config controls the lookup cache.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

func (c *Config) ApplyDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = 10000
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Second
	}
}

// Service is the session lifecycle API.
type Service struct {
	pool    *storage.Pool
	cache   *lookupCache
	logger  *slog.Logger
	metrics *monitoring.Metrics
}

func New(pool *storage.Pool, cfg Config, logger *slog.Logger, metrics *monitoring.Metrics) (*Service, error) {
	cfg.ApplyDefaults()
	cache, err := newLookupCache(cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("session: failed to create lookup cache: %w", err)
	}
	return &Service{pool: pool, cache: cache, logger: logger, metrics: metrics}, nil
}

const queryStartSession = `
INSERT INTO vehicle_meter_session (vehicle_id, meter_id, mapped_at, active)
VALUES ($1, $2, now(), true)`

const queryEndSession = `
UPDATE vehicle_meter_session
SET unmapped_at = now(), active = false
WHERE vehicle_id = $1 AND active`

const queryLookupActive = `
SELECT meter_id FROM vehicle_meter_session
WHERE vehicle_id = $1 AND active`

// Start opens a new mapping between vehicleID and meterID. It returns
// ErrConflict if vehicleID already has an active session.
func (s *Service) Start(ctx context.Context, vehicleID, meterID string) error {
	_, err := s.pool.Pgx().Exec(ctx, queryStartSession, vehicleID, meterID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			s.metrics.RecordSessionOp("start", "conflict")
			return ErrConflict
		}
		s.metrics.RecordSessionOp("start", "error")
		return fmt.Errorf("session: start: %w", err)
	}
	s.cache.invalidate(vehicleID)
	s.metrics.RecordSessionOp("start", "ok")
	return nil
}

// End closes vehicleID's active session. It returns ErrNotFound if the
// vehicle has none.
func (s *Service) End(ctx context.Context, vehicleID string) error {
	tag, err := s.pool.Pgx().Exec(ctx, queryEndSession, vehicleID)
	if err != nil {
		s.metrics.RecordSessionOp("end", "error")
		return fmt.Errorf("session: end: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.metrics.RecordSessionOp("end", "not_found")
		return ErrNotFound
	}
	s.cache.invalidate(vehicleID)
	s.metrics.RecordSessionOp("end", "ok")
	return nil
}

// Lookup returns the meter id currently mapped to vehicleID, if any.
func (s *Service) Lookup(ctx context.Context, vehicleID string) (meterID string, found bool, err error) {
	if cachedMeterID, cachedFound, ok := s.cache.get(vehicleID); ok {
		s.metrics.RecordSessionCache(true)
		return cachedMeterID, cachedFound, nil
	}
	s.metrics.RecordSessionCache(false)

	err = s.pool.Pgx().QueryRow(ctx, queryLookupActive, vehicleID).Scan(&meterID)
	switch {
	case err == nil:
		found = true
	case errors.Is(err, pgx.ErrNoRows):
		err = nil
		found = false
	default:
		return "", false, fmt.Errorf("session: lookup: %w", err)
	}

	s.cache.set(vehicleID, meterID, found)
	return meterID, found, nil
}

// Mapping is one vehicle<->meter pair for a bulk operation.
type Mapping struct {
	VehicleID string
	MeterID   string
}

// BulkStart fans Start out over a worker pool so a fleet-wide bulk-start
// doesn't serialize on one connection. It returns one error per input,
// nil where the start succeeded, in the same order as mappings.
func (s *Service) BulkStart(ctx context.Context, mappings []Mapping, concurrency int) []error {
	return s.bulk(ctx, len(mappings), concurrency, func(i int) error {
		return s.Start(ctx, mappings[i].VehicleID, mappings[i].MeterID)
	})
}

// BulkEnd is BulkStart's counterpart for closing sessions.
func (s *Service) BulkEnd(ctx context.Context, vehicleIDs []string, concurrency int) []error {
	return s.bulk(ctx, len(vehicleIDs), concurrency, func(i int) error {
		return s.End(ctx, vehicleIDs[i])
	})
}

type bulkJob struct {
	index int
	fn    func(i int) error
	out   chan<- bulkResult
}

type bulkResult struct {
	index int
	err   error
}

func (r bulkResult) Error() error { return r.err }

func (j bulkJob) Execute(ctx context.Context) worker.Result {
	err := j.fn(j.index)
	res := bulkResult{index: j.index, err: err}
	j.out <- res
	return res
}

func (s *Service) bulk(ctx context.Context, n, concurrency int, fn func(i int) error) []error {
	if n == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 16
	}

	jobs := make(chan worker.Job, n)
	results := make(chan bulkResult, n)
	for i := 0; i < n; i++ {
		jobs <- bulkJob{index: i, fn: fn, out: results}
	}
	close(jobs)

	wg := worker.SpawnWorkerPool(ctx, concurrency, jobs, s.logger)
	wg.Wait()
	close(results)

	errs := make([]error, n)
	for r := range results {
		errs[r.index] = r.err
	}
	return errs
}
