package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/monitoring"
	"github.com/rahullalw/smart-ev-analytics/internal/queue"
	"github.com/rahullalw/smart-ev-analytics/internal/testhelpers"
)

// fakeReader is an in-memory stand-in for queue.Queue that lets tests
// control exactly when messages become available, without standing up
// Redis.
type fakeReader struct {
	mu      sync.Mutex
	pending []queue.Message
	acked   []string
}

func (f *fakeReader) push(msgs ...queue.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, msgs...)
}

func (f *fakeReader) ReadBatch(ctx context.Context, stream domain.StreamKind, consumer string, count int64, block time.Duration) ([]queue.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		n := int64(len(f.pending))
		if count < n {
			n = count
		}
		out := f.pending[:n]
		f.pending = f.pending[n:]
		f.mu.Unlock()
		return out, nil
	}
	f.mu.Unlock()

	select {
	case <-time.After(block):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeReader) Ack(ctx context.Context, stream domain.StreamKind, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeReader) Len(ctx context.Context, stream domain.StreamKind) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.pending)), nil
}

func meterMessage(id, meterID string) queue.Message {
	s := domain.MeterSample{MeterID: meterID, KWhConsumedAC: 1, Voltage: 220, RecordedAt: time.Now()}
	body, _ := json.Marshal(s)
	return queue.Message{ID: id, Payload: body}
}

func TestWorker_FlushesOnSizeTrigger(t *testing.T) {
	reader := &fakeReader{}
	for i := 0; i < 3; i++ {
		reader.push(meterMessage("id-"+string(rune('a'+i)), "m-1"))
	}

	var writeCount atomic.Int32
	var lastBatchSize int
	writeBatch := func(ctx context.Context, batch []domain.MeterSample) error {
		writeCount.Add(1)
		lastBatchSize = len(batch)
		return nil
	}

	cfg := Config{BatchSize: 3, FlushInterval: time.Hour, ConsumerName: "test"}
	w := NewMeterWorker(reader, writeBatch, cfg, testhelpers.NewTestLogger(), monitoring.New(false))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	require.Equal(t, int32(1), writeCount.Load())
	assert.Equal(t, 3, lastBatchSize)
	assert.Len(t, reader.acked, 3)
}

func TestWorker_FlushesOnTimeTrigger(t *testing.T) {
	reader := &fakeReader{}
	reader.push(meterMessage("id-1", "m-1"))

	var writeCount atomic.Int32
	var lastBatchSize int
	writeBatch := func(ctx context.Context, batch []domain.MeterSample) error {
		writeCount.Add(1)
		lastBatchSize = len(batch)
		return nil
	}

	cfg := Config{BatchSize: 1000, FlushInterval: 50 * time.Millisecond, ConsumerName: "test"}
	w := NewMeterWorker(reader, writeBatch, cfg, testhelpers.NewTestLogger(), monitoring.New(false))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	require.GreaterOrEqual(t, writeCount.Load(), int32(1))
	assert.Equal(t, 1, lastBatchSize)
}

func TestWorker_WriteFailure_DoesNotAck(t *testing.T) {
	reader := &fakeReader{}
	reader.push(meterMessage("id-1", "m-1"))

	writeBatch := func(ctx context.Context, batch []domain.MeterSample) error {
		return assertErr
	}

	cfg := Config{BatchSize: 1, FlushInterval: time.Hour, ConsumerName: "test"}
	w := NewMeterWorker(reader, writeBatch, cfg, testhelpers.NewTestLogger(), monitoring.New(false))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	assert.Empty(t, reader.acked, "a failed write must not ack — the message stays pending for retry/dead-letter")
}

var assertErr = &staticError{"write failed"}

type staticError struct{ msg string }

func (e *staticError) Error() string { return e.msg }
