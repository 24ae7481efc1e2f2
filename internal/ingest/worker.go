// Package ingest runs one single-flight batching worker per device stream:
// it drains the durable queue, assembles a batch by size or time trigger,
// and hands it to the storage writer in one transaction.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/monitoring"
	"github.com/rahullalw/smart-ev-analytics/internal/queue"
)

// Reader is the subset of queue.Queue the worker needs, so tests can
// substitute a fake without standing up Redis.
type Reader interface {
	ReadBatch(ctx context.Context, stream domain.StreamKind, consumer string, count int64, block time.Duration) ([]queue.Message, error)
	Ack(ctx context.Context, stream domain.StreamKind, ids []string) error
	Len(ctx context.Context, stream domain.StreamKind) (int64, error)
}

// flushBackoff mirrors this codebase's standard retry schedule: immediate,
// then 1s, 5s, 30s before the batch is left pending for the dead-letter
// recovery loop to pick up.
var flushBackoff = []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second}

// Config controls batch assembly thresholds, per spec.md §4.2/§6.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	ConsumerName  string
}

func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.ConsumerName == "" {
		c.ConsumerName = "writer-1"
	}
}

// Worker is a single-flight batching worker for one device stream. T is the
// decoded sample type (domain.MeterSample or domain.VehicleSample); decode
// and writeBatch are supplied by the caller so the size/time-trigger loop
// and retry/dead-letter handling are written once.
type Worker[T any] struct {
	stream     domain.StreamKind
	reader     Reader
	decode     func([]byte) (T, error)
	writeBatch func(ctx context.Context, batch []T) error
	cfg        Config
	logger     *slog.Logger
	metrics    *monitoring.Metrics
}

func NewWorker[T any](
	stream domain.StreamKind,
	reader Reader,
	decode func([]byte) (T, error),
	writeBatch func(context.Context, []T) error,
	cfg Config,
	logger *slog.Logger,
	metrics *monitoring.Metrics,
) *Worker[T] {
	cfg.ApplyDefaults()
	return &Worker[T]{stream: stream, reader: reader, decode: decode, writeBatch: writeBatch, cfg: cfg, logger: logger, metrics: metrics}
}

// NewMeterWorker builds the meter-stream worker.
func NewMeterWorker(reader Reader, writeBatch func(context.Context, []domain.MeterSample) error, cfg Config, logger *slog.Logger, metrics *monitoring.Metrics) *Worker[domain.MeterSample] {
	return NewWorker(domain.StreamMeter, reader, decodeMeterSample, writeBatch, cfg, logger, metrics)
}

// NewVehicleWorker builds the vehicle-stream worker.
func NewVehicleWorker(reader Reader, writeBatch func(context.Context, []domain.VehicleSample) error, cfg Config, logger *slog.Logger, metrics *monitoring.Metrics) *Worker[domain.VehicleSample] {
	return NewWorker(domain.StreamVehicle, reader, decodeVehicleSample, writeBatch, cfg, logger, metrics)
}

func decodeMeterSample(payload []byte) (domain.MeterSample, error) {
	var s domain.MeterSample
	err := json.Unmarshal(payload, &s)
	return s, err
}

func decodeVehicleSample(payload []byte) (domain.VehicleSample, error) {
	var s domain.VehicleSample
	err := json.Unmarshal(payload, &s)
	return s, err
}

// Run drains the stream until ctx is cancelled. On cancellation it flushes
// whatever batch is currently assembled, then returns — any messages still
// sitting in the queue are left in place for the next startup, per the
// graceful-shutdown rule of §5.
func (w *Worker[T]) Run(ctx context.Context) error {
	var batch []T
	var ids []string
	lastFlush := time.Now()

	for {
		if ctx.Err() != nil {
			w.flush(context.Background(), batch, ids, "shutdown")
			return ctx.Err()
		}

		if depth, err := w.reader.Len(ctx, w.stream); err == nil {
			w.metrics.SetQueueDepth(string(w.stream), depth)
		}

		remaining := w.cfg.FlushInterval - time.Since(lastFlush)
		if remaining <= 0 {
			if len(batch) > 0 {
				w.flush(ctx, batch, ids, "time")
			}
			batch, ids = nil, nil
			lastFlush = time.Now()
			remaining = w.cfg.FlushInterval
		}

		want := int64(w.cfg.BatchSize - len(batch))
		if want <= 0 {
			want = 1
		}
		msgs, err := w.reader.ReadBatch(ctx, w.stream, w.cfg.ConsumerName, want, remaining)
		if err != nil {
			w.logger.Error("stream read failed", "stream", w.stream, "error", err)
			continue
		}

		for _, m := range msgs {
			sample, err := w.decode(m.Payload)
			if err != nil {
				w.logger.Error("failed to decode queued sample, acking to drop it",
					"stream", w.stream, "id", m.ID, "error", err)
				_ = w.reader.Ack(ctx, w.stream, []string{m.ID})
				continue
			}
			batch = append(batch, sample)
			ids = append(ids, m.ID)
		}

		if len(batch) >= w.cfg.BatchSize {
			w.flush(ctx, batch, ids, "size")
			batch, ids = nil, nil
			lastFlush = time.Now()
		}
	}
}

func (w *Worker[T]) flush(ctx context.Context, batch []T, ids []string, trigger string) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()

	var err error
	for attempt, backoff := range flushBackoff {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}
		err = w.writeBatch(ctx, batch)
		if err == nil {
			break
		}
		w.logger.Warn("batch write failed, retrying", "stream", w.stream, "attempt", attempt+1, "error", err)
	}

	if err != nil {
		w.metrics.RecordBatchFailure(string(w.stream))
		w.logger.Error("batch write exhausted retries, leaving batch pending for dead-letter recovery",
			"stream", w.stream, "size", len(batch), "error", err)
		return
	}

	if ackErr := w.reader.Ack(ctx, w.stream, ids); ackErr != nil {
		w.logger.Error("failed to ack written batch", "stream", w.stream, "error", ackErr)
	}
	w.metrics.RecordBatch(string(w.stream), trigger, len(batch), time.Since(start))
}
