// Package queue is the durable job queue spec.md §4.2 calls for: one Redis
// Stream per device class, drained by a single consumer group so each
// message is delivered to exactly one in-flight worker at a time. Messages
// that exhaust their retry budget are moved to a dead-letter stream rather
// than dropped.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
)

const consumerGroup = "ingest-writer"

// Message is one pending entry read back from a stream. Payload is the raw
// JSON the producer enqueued; the caller (internal/ingest) knows which
// domain type to decode it into based on the stream it was read from.
type Message struct {
	ID      string
	Payload []byte
}

// Queue wraps a redis.Client with the stream naming and consumer-group
// semantics the batching workers need.
type Queue struct {
	client      *redis.Client
	maxAttempts int
	logger      *slog.Logger
}

func New(client *redis.Client, maxAttempts int, logger *slog.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Queue{client: client, maxAttempts: maxAttempts, logger: logger}
}

// Ping checks connectivity to the Redis backend.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func streamKey(stream domain.StreamKind) string {
	return "streams:" + string(stream)
}

func deadLetterKey(stream domain.StreamKind) string {
	return streamKey(stream) + ":dead"
}

// EnsureGroups creates the consumer group for both streams if it does not
// already exist. It is idempotent and safe to call on every startup.
func (q *Queue) EnsureGroups(ctx context.Context) error {
	for _, s := range []domain.StreamKind{domain.StreamMeter, domain.StreamVehicle} {
		err := q.client.XGroupCreateMkStream(ctx, streamKey(s), consumerGroup, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create consumer group for %s: %w", s, err)
		}
	}
	return nil
}

// EnqueueMeter durably appends a meter sample. It returns once Redis has
// acknowledged the append, satisfying intake.Enqueuer's durability contract.
func (q *Queue) EnqueueMeter(ctx context.Context, s domain.MeterSample) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal meter sample: %w", err)
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(domain.StreamMeter),
		Values: map[string]interface{}{"data": body},
	}).Err()
}

// EnqueueVehicle is EnqueueMeter's counterpart for vehicle samples.
func (q *Queue) EnqueueVehicle(ctx context.Context, s domain.VehicleSample) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal vehicle sample: %w", err)
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(domain.StreamVehicle),
		Values: map[string]interface{}{"data": body},
	}).Err()
}

// Len reports the stream's length (XLEN), which the ingest worker publishes
// as monitoring.QueueDepth. Acked entries are not removed from the stream,
// so they are counted too.
func (q *Queue) Len(ctx context.Context, stream domain.StreamKind) (int64, error) {
	return q.client.XLen(ctx, streamKey(stream)).Result()
}

// ReadBatch reads up to count pending messages for consumer, blocking up to
// block for at least one message to arrive. A block of 0 returns
// immediately with whatever is available.
func (q *Queue) ReadBatch(ctx context.Context, stream domain.StreamKind, consumer string, count int64, block time.Duration) ([]Message, error) {
	// go-redis sends BLOCK in whole milliseconds and BLOCK 0 waits forever;
	// a negative Block omits the option so the read does not wait.
	if block < time.Millisecond {
		block = -1
	}
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer,
		Streams:  []string{streamKey(stream), ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var out []Message
	for _, s := range res {
		for _, entry := range s.Messages {
			raw, _ := entry.Values["data"].(string)
			out = append(out, Message{ID: entry.ID, Payload: []byte(raw)})
		}
	}
	return out, nil
}

// Ack confirms a batch was durably written; the messages leave the
// consumer group's pending entries list and will not be redelivered.
func (q *Queue) Ack(ctx context.Context, stream domain.StreamKind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return q.client.XAck(ctx, streamKey(stream), consumerGroup, ids...).Err()
}

// DeadLetterStale claims pending messages idle longer than minIdle and, for
// those that have already been delivered maxAttempts times, moves them to
// the dead-letter stream and acks them off the live stream. It returns the
// number of messages dead-lettered.
func (q *Queue) DeadLetterStale(ctx context.Context, stream domain.StreamKind, consumer string, minIdle time.Duration) (int, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: streamKey(stream),
		Group:  consumerGroup,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	var staleIDs []string
	for _, p := range pending {
		if p.RetryCount >= int64(q.maxAttempts) {
			staleIDs = append(staleIDs, p.ID)
		}
	}
	if len(staleIDs) == 0 {
		return 0, nil
	}

	claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   streamKey(stream),
		Group:    consumerGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: staleIDs,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("claim stale messages for %s: %w", stream, err)
	}

	for _, msg := range claimed {
		raw, _ := msg.Values["data"].(string)
		if err := q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: deadLetterKey(stream),
			Values: map[string]interface{}{"data": raw, "original_id": msg.ID},
		}).Err(); err != nil {
			q.logger.Error("failed to write dead letter", "stream", stream, "id", msg.ID, "error", err)
			continue
		}
		if err := q.client.XAck(ctx, streamKey(stream), consumerGroup, msg.ID).Err(); err != nil {
			q.logger.Error("failed to ack dead-lettered message", "stream", stream, "id", msg.ID, "error", err)
		}
	}
	return len(claimed), nil
}
