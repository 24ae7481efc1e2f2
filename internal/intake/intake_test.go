package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahullalw/smart-ev-analytics/internal/broker"
	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/monitoring"
	"github.com/rahullalw/smart-ev-analytics/internal/testhelpers"
)

type fakeQueue struct {
	meters   []domain.MeterSample
	vehicles []domain.VehicleSample
	failNext bool
}

func (f *fakeQueue) EnqueueMeter(ctx context.Context, s domain.MeterSample) error {
	if f.failNext {
		return assert.AnError
	}
	f.meters = append(f.meters, s)
	return nil
}

func (f *fakeQueue) EnqueueVehicle(ctx context.Context, s domain.VehicleSample) error {
	if f.failNext {
		return assert.AnError
	}
	f.vehicles = append(f.vehicles, s)
	return nil
}

func newTestAdapter(t *testing.T) (*Adapter, *broker.Memory, *fakeQueue) {
	t.Helper()
	mem := broker.NewMemory()
	q := &fakeQueue{}
	a := New(mem, q, testhelpers.NewTestLogger(), monitoring.New(false))
	require.NoError(t, a.Start(context.Background()))
	return a, mem, q
}

func TestAdapter_ValidMeterSample_Enqueued(t *testing.T) {
	_, mem, q := newTestAdapter(t)

	payload := []byte(`{"meterId":"m-1","kwhConsumedAc":12.5,"voltage":230.0,"timestamp":"2026-07-31T10:00:00Z"}`)
	acked := mem.PublishAndWait(context.Background(), "telemetry/meter/m-1", payload)

	assert.True(t, acked)
	require.Len(t, q.meters, 1)
	assert.Equal(t, "m-1", q.meters[0].MeterID)
	assert.Equal(t, 12.5, q.meters[0].KWhConsumedAC)
}

func TestAdapter_ValidVehicleSample_Enqueued(t *testing.T) {
	_, mem, q := newTestAdapter(t)

	payload := []byte(`{"vehicleId":"v-1","soc":55.5,"kwhDeliveredDc":3.2,"batteryTemp":28.1,"timestamp":"2026-07-31T10:00:00Z"}`)
	acked := mem.PublishAndWait(context.Background(), "telemetry/vehicle/v-1", payload)

	assert.True(t, acked)
	require.Len(t, q.vehicles, 1)
	assert.Equal(t, "v-1", q.vehicles[0].VehicleID)
}

func TestAdapter_OutOfRangeSoC_DroppedAndAcked(t *testing.T) {
	_, mem, q := newTestAdapter(t)

	payload := []byte(`{"vehicleId":"v-1","soc":150.0,"kwhDeliveredDc":3.2,"batteryTemp":28.1,"timestamp":"2026-07-31T10:00:00Z"}`)
	acked := mem.PublishAndWait(context.Background(), "telemetry/vehicle/v-1", payload)

	assert.True(t, acked, "invalid samples are acked, not redelivered")
	assert.Empty(t, q.vehicles)
}

func TestAdapter_MalformedJSON_DroppedAndAcked(t *testing.T) {
	_, mem, q := newTestAdapter(t)

	acked := mem.PublishAndWait(context.Background(), "telemetry/meter/m-1", []byte(`not json`))

	assert.True(t, acked)
	assert.Empty(t, q.meters)
}

func TestAdapter_MissingTimestamp_DroppedAndAcked(t *testing.T) {
	_, mem, q := newTestAdapter(t)

	payload := []byte(`{"meterId":"m-1","kwhConsumedAc":12.5,"voltage":230.0}`)
	acked := mem.PublishAndWait(context.Background(), "telemetry/meter/m-1", payload)

	assert.True(t, acked)
	assert.Empty(t, q.meters)
}

func TestAdapter_QueueUnavailable_Nacked(t *testing.T) {
	mem := broker.NewMemory()
	q := &fakeQueue{failNext: true}
	a := New(mem, q, testhelpers.NewTestLogger(), monitoring.New(false))
	require.NoError(t, a.Start(context.Background()))

	payload := []byte(`{"meterId":"m-1","kwhConsumedAc":12.5,"voltage":230.0,"timestamp":"2026-07-31T10:00:00Z"}`)
	acked := mem.PublishAndWait(context.Background(), "telemetry/meter/m-1", payload)

	assert.False(t, acked, "queue failure must nack so the broker redelivers")
}
