package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rahullalw/smart-ev-analytics/internal/analytics"
	"github.com/rahullalw/smart-ev-analytics/internal/api"
	"github.com/rahullalw/smart-ev-analytics/internal/broker"
	"github.com/rahullalw/smart-ev-analytics/internal/config"
	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/health"
	"github.com/rahullalw/smart-ev-analytics/internal/ingest"
	"github.com/rahullalw/smart-ev-analytics/internal/intake"
	"github.com/rahullalw/smart-ev-analytics/internal/logger"
	"github.com/rahullalw/smart-ev-analytics/internal/monitoring"
	"github.com/rahullalw/smart-ev-analytics/internal/queue"
	"github.com/rahullalw/smart-ev-analytics/internal/session"
	"github.com/rahullalw/smart-ev-analytics/internal/storage"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

// deadLetterSweepInterval is how often each stream's pending entries are
// checked for staleness; minIdle is how long an entry must have been
// pending before it's eligible for dead-lettering.
const (
	deadLetterSweepInterval = 1 * time.Minute
	deadLetterMinIdle       = 5 * time.Minute
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	lg := newLogger(cfg)
	config.PrintConfig(lg, cfg)

	lg.Info("starting smart-ev-analytics", "version", Version, "commit", Commit, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.New(true)

	pool, err := storage.New(ctx, &storage.Config{
		DatabaseURL:         cfg.Database.URL,
		MaxConns:            cfg.Database.MaxConns,
		MinConns:            cfg.Database.MinConns,
		HealthCheckInterval: cfg.Database.HealthCheckInterval,
		ConnectTimeout:      cfg.Database.ConnectTimeout,
	}, lg)
	if err != nil {
		lg.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()

	q := queue.New(redisClient, cfg.Redis.QueueMaxAttempts, lg)
	if err := q.EnsureGroups(ctx); err != nil {
		lg.Error("failed to create consumer groups", "error", err)
		os.Exit(1)
	}

	writer := storage.NewWriter(pool, metrics, lg)
	reader := storage.NewReader(pool)

	sessionSvc, err := session.New(pool, session.Config{
		CacheSize: cfg.Session.CacheSize,
		CacheTTL:  cfg.Session.CacheTTL,
	}, lg, metrics)
	if err != nil {
		lg.Error("failed to create session service", "error", err)
		os.Exit(1)
	}

	aggregator := analytics.New(reader)

	dbHealth := health.NewChecker()
	queueHealth := health.NewChecker()
	dbMonitor := health.NewMonitor(&health.MonitorConfig{Name: "database", CheckInterval: cfg.Database.HealthCheckInterval, Logger: lg}, dbHealth, pool)
	queueMonitor := health.NewMonitor(&health.MonitorConfig{Name: "queue", CheckInterval: 15 * time.Second, Logger: lg}, queueHealth, &queuePinger{queue: q})

	sub := broker.NewMemory() // real wire transport plugs in here via cfg.Broker.URL; out of scope per spec
	intakeAdapter := intake.New(sub, q, lg, metrics)

	meterWorker := ingest.NewMeterWorker(q, writer.WriteMeterBatch, ingest.Config{
		BatchSize:     cfg.Batch.Size,
		FlushInterval: cfg.Batch.Timeout,
		ConsumerName:  "writer-meter-1",
	}, lg, metrics)
	vehicleWorker := ingest.NewVehicleWorker(q, writer.WriteVehicleBatch, ingest.Config{
		BatchSize:     cfg.Batch.Size,
		FlushInterval: cfg.Batch.Timeout,
		ConsumerName:  "writer-vehicle-1",
	}, lg, metrics)

	router := api.New(aggregator, reader, sessionSvc, dbHealth, queueHealth, lg)
	httpServer := api.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return intakeAdapter.Start(gctx) })
	g.Go(func() error { return meterWorker.Run(gctx) })
	g.Go(func() error { return vehicleWorker.Run(gctx) })
	g.Go(func() error {
		dbMonitor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		queueMonitor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return deadLetterSweepLoop(gctx, q, lg, metrics)
	})
	g.Go(func() error {
		lg.Info("http server starting", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	<-gctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Error("http server forced to shutdown", "error", err)
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		lg.Error("service exited with error", "error", err)
		os.Exit(1)
	}

	lg.Info("shutdown complete")
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Server.Environment == "development" {
		return logger.New(cfg.Server.LoggingLevel)
	}
	return logger.NewJSON(cfg.Server.LoggingLevel)
}

// deadLetterSweepLoop periodically claims stale pending messages on both
// streams and moves exhausted ones to their dead-letter stream, per spec.md
// §4.2's recovery path.
func deadLetterSweepLoop(ctx context.Context, q *queue.Queue, lg *slog.Logger, metrics *monitoring.Metrics) error {
	ticker := time.NewTicker(deadLetterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, stream := range []domain.StreamKind{domain.StreamMeter, domain.StreamVehicle} {
				n, err := q.DeadLetterStale(ctx, stream, "dead-letter-sweeper", deadLetterMinIdle)
				if err != nil {
					lg.Error("dead-letter sweep failed", "stream", stream, "error", err)
					continue
				}
				if n > 0 {
					metrics.RecordDeadLetter(string(stream), n)
					lg.Warn("dead-lettered stale messages", "stream", stream, "count", n)
				}
			}
		}
	}
}

// queuePinger adapts queue.Queue's context-and-error Ping to the
// health.Pinger interface's synchronous bool check.
type queuePinger struct {
	queue *queue.Queue
}

func (p *queuePinger) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.queue.Ping(ctx) == nil
}
