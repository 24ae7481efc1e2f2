package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
)

func TestDedupMeterSamples_KeepsLargestRecordedAt(t *testing.T) {
	t1 := time.Now().Add(-time.Minute)
	t2 := time.Now()

	samples := []domain.MeterSample{
		{MeterID: "m-1", KWhConsumedAC: 10, Voltage: 220, RecordedAt: t1},
		{MeterID: "m-2", KWhConsumedAC: 5, Voltage: 225, RecordedAt: t1},
		{MeterID: "m-1", KWhConsumedAC: 12, Voltage: 221, RecordedAt: t2},
	}

	deduped := dedupMeterSamples(samples)

	assert.Len(t, deduped, 2)
	assert.Equal(t, 12.0, deduped["m-1"].KWhConsumedAC)
	assert.Equal(t, t2, deduped["m-1"].RecordedAt)
	assert.Equal(t, 5.0, deduped["m-2"].KWhConsumedAC)
}

// TestDedupMeterSamples_OutOfOrderBatch exercises the case spec §4.1 warns
// about: a batch where the sample with the largest RecordedAt is not the
// last one read off the queue. A naive last-seen overwrite would keep the
// earlier sample here.
func TestDedupMeterSamples_OutOfOrderBatch(t *testing.T) {
	earlier := time.Now().Add(-time.Minute)
	later := time.Now()

	samples := []domain.MeterSample{
		{MeterID: "m-1", KWhConsumedAC: 12, Voltage: 221, RecordedAt: later},
		{MeterID: "m-1", KWhConsumedAC: 10, Voltage: 220, RecordedAt: earlier},
	}

	deduped := dedupMeterSamples(samples)

	assert.Len(t, deduped, 1)
	assert.Equal(t, 12.0, deduped["m-1"].KWhConsumedAC, "must keep the sample with the largest RecordedAt, not the last one read")
	assert.Equal(t, later, deduped["m-1"].RecordedAt)
}

// TestDedupMeterSamples_TieBreaksOnLastSeen covers the one case where
// iteration order does matter: equal RecordedAt values.
func TestDedupMeterSamples_TieBreaksOnLastSeen(t *testing.T) {
	tied := time.Now()

	samples := []domain.MeterSample{
		{MeterID: "m-1", KWhConsumedAC: 10, RecordedAt: tied},
		{MeterID: "m-1", KWhConsumedAC: 99, RecordedAt: tied},
	}

	deduped := dedupMeterSamples(samples)

	assert.Equal(t, 99.0, deduped["m-1"].KWhConsumedAC)
}

func TestDedupVehicleSamples_KeepsLargestRecordedAt(t *testing.T) {
	t1 := time.Now().Add(-time.Minute)
	t2 := time.Now()

	samples := []domain.VehicleSample{
		{VehicleID: "v-1", SoC: 40, RecordedAt: t1},
		{VehicleID: "v-1", SoC: 45, RecordedAt: t2},
	}

	deduped := dedupVehicleSamples(samples)

	assert.Len(t, deduped, 1)
	assert.Equal(t, 45.0, deduped["v-1"].SoC)
}

// TestDedupVehicleSamples_OutOfOrderBatch is dedupMeterSamples' out-of-order
// case, for the vehicle side.
func TestDedupVehicleSamples_OutOfOrderBatch(t *testing.T) {
	earlier := time.Now().Add(-time.Minute)
	later := time.Now()

	samples := []domain.VehicleSample{
		{VehicleID: "v-1", SoC: 80, RecordedAt: later},
		{VehicleID: "v-1", SoC: 40, RecordedAt: earlier},
	}

	deduped := dedupVehicleSamples(samples)

	assert.Equal(t, 80.0, deduped["v-1"].SoC)
	assert.Equal(t, later, deduped["v-1"].RecordedAt)
}

func TestMeterHistoryArrays_PreservesEverySample(t *testing.T) {
	samples := []domain.MeterSample{
		{MeterID: "m-1", KWhConsumedAC: 10, RecordedAt: time.Now()},
		{MeterID: "m-1", KWhConsumedAC: 12, RecordedAt: time.Now()},
	}

	ids, kwh, _, _, _ := meterHistoryArrays(samples)

	assert.Len(t, ids, 2, "history keeps every sample, unlike the deduped hot-state upsert")
	assert.Equal(t, []float64{10, 12}, kwh)
}
