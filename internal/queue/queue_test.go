package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/testhelpers"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := New(client, 3, testhelpers.NewTestLogger())
	require.NoError(t, q.EnsureGroups(context.Background()))
	return q
}

func TestQueue_EnqueueAndReadBatch(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	sample := domain.MeterSample{MeterID: "m-1", KWhConsumedAC: 10, Voltage: 230, RecordedAt: time.Now().UTC()}
	require.NoError(t, q.EnqueueMeter(ctx, sample))

	depth, err := q.Len(ctx, domain.StreamMeter)
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	msgs, err := q.ReadBatch(ctx, domain.StreamMeter, "worker-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got domain.MeterSample
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	require.Equal(t, "m-1", got.MeterID)
}

func TestQueue_Ack_RemovesFromPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueMeter(ctx, domain.MeterSample{MeterID: "m-1", Voltage: 200, RecordedAt: time.Now()}))
	msgs, err := q.ReadBatch(ctx, domain.StreamMeter, "worker-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, q.Ack(ctx, domain.StreamMeter, []string{msgs[0].ID}))

	n, err := q.DeadLetterStale(ctx, domain.StreamMeter, "worker-1", 0)
	require.NoError(t, err)
	require.Equal(t, 0, n, "acked message must not be claimable")
}

func TestQueue_ReadBatch_EmptyReturnsNil(t *testing.T) {
	q := newTestQueue(t)
	msgs, err := q.ReadBatch(context.Background(), domain.StreamVehicle, "worker-1", 10, 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
