// Package intake adapts broker.Delivery messages into validated
// domain.MeterSample / domain.VehicleSample values and hands them to the
// durable queue. It owns in-flight samples only until enqueue succeeds.
package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/rahullalw/smart-ev-analytics/internal/broker"
	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/monitoring"
	"github.com/rahullalw/smart-ev-analytics/internal/utils"
)

// RejectReason classifies why a delivery was not handed to the queue. It is
// logged, never returned as an error up the call stack.
type RejectReason string

const (
	RejectMalformedJSON      RejectReason = "malformed_json"
	RejectMalformedTimestamp RejectReason = "malformed_timestamp"
	RejectOutOfRange         RejectReason = "out_of_range"
	RejectMissingField       RejectReason = "missing_field"
)

// Rejection describes one dropped delivery for structured logging.
type Rejection struct {
	Topic  string
	Stream domain.StreamKind
	Reason RejectReason
	Detail string
}

// Enqueuer is the durable queue's write side, as seen by intake. Enqueue
// must return an error if the sample could not be durably queued; intake
// nacks the delivery in that case so the broker redelivers.
type Enqueuer interface {
	EnqueueMeter(ctx context.Context, s domain.MeterSample) error
	EnqueueVehicle(ctx context.Context, s domain.VehicleSample) error
}

// wireSample mirrors the JSON wire shape for both meter and vehicle
// payloads; fields that don't apply to a given stream are left zero.
type wireSample struct {
	MeterID        string  `json:"meterId"`
	VehicleID      string  `json:"vehicleId"`
	KWhConsumedAC  float64 `json:"kwhConsumedAc"`
	Voltage        float64 `json:"voltage"`
	SoC            float64 `json:"soc"`
	KWhDeliveredDC float64 `json:"kwhDeliveredDc"`
	BatteryTemp    float64 `json:"batteryTemp"`
	Timestamp      string  `json:"timestamp"`
}

// Adapter subscribes to the meter and vehicle topic patterns and dispatches
// validated samples to an Enqueuer.
type Adapter struct {
	sub     broker.Subscriber
	queue   Enqueuer
	logger  *slog.Logger
	metrics *monitoring.Metrics
}

func New(sub broker.Subscriber, queue Enqueuer, logger *slog.Logger, metrics *monitoring.Metrics) *Adapter {
	return &Adapter{sub: sub, queue: queue, logger: logger, metrics: metrics}
}

// topicMeterPattern / topicVehiclePattern are the two patterns spec.md §6
// names: telemetry/meter/<meterId> and telemetry/vehicle/<vehicleId>.
const (
	topicMeterPattern   = "telemetry/meter/+"
	topicVehiclePattern = "telemetry/vehicle/+"
)

// Start subscribes both patterns. It returns once both subscriptions are
// established; delivery continues until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.sub.Subscribe(ctx, topicMeterPattern, a.handleMeter); err != nil {
		return err
	}
	if err := a.sub.Subscribe(ctx, topicVehiclePattern, a.handleVehicle); err != nil {
		return err
	}
	return nil
}

func (a *Adapter) handleMeter(ctx context.Context, d *broker.Delivery) {
	var w wireSample
	if err := json.Unmarshal(d.Payload, &w); err != nil {
		a.reject(d, domain.StreamMeter, RejectMalformedJSON, err.Error())
		return
	}

	recordedAt, err := parseTimestamp(w.Timestamp)
	if err != nil {
		a.reject(d, domain.StreamMeter, RejectMalformedTimestamp, err.Error())
		return
	}

	meterID := w.MeterID
	if meterID == "" {
		meterID = topicLeaf(d.Topic)
	}

	sample := domain.MeterSample{
		MeterID:       meterID,
		KWhConsumedAC: w.KWhConsumedAC,
		Voltage:       w.Voltage,
		RecordedAt:    recordedAt,
		IngestedAt:    utils.NowUTC(),
	}

	if err := domain.ValidateMeterSample(sample); err != nil {
		a.reject(d, domain.StreamMeter, classify(err), err.Error())
		return
	}

	if err := a.queue.EnqueueMeter(ctx, sample); err != nil {
		a.logger.Warn("enqueue meter sample failed, nacking for redelivery",
			"topic", d.Topic, "meter_id", sample.MeterID, "error", err)
		d.Nack()
		return
	}

	a.metrics.RecordIngested(string(domain.StreamMeter), 1)
	d.Ack()
}

func (a *Adapter) handleVehicle(ctx context.Context, d *broker.Delivery) {
	var w wireSample
	if err := json.Unmarshal(d.Payload, &w); err != nil {
		a.reject(d, domain.StreamVehicle, RejectMalformedJSON, err.Error())
		return
	}

	recordedAt, err := parseTimestamp(w.Timestamp)
	if err != nil {
		a.reject(d, domain.StreamVehicle, RejectMalformedTimestamp, err.Error())
		return
	}

	vehicleID := w.VehicleID
	if vehicleID == "" {
		vehicleID = topicLeaf(d.Topic)
	}

	sample := domain.VehicleSample{
		VehicleID:      vehicleID,
		SoC:            w.SoC,
		KWhDeliveredDC: w.KWhDeliveredDC,
		BatteryTemp:    w.BatteryTemp,
		RecordedAt:     recordedAt,
		IngestedAt:     utils.NowUTC(),
	}

	if err := domain.ValidateVehicleSample(sample); err != nil {
		a.reject(d, domain.StreamVehicle, classify(err), err.Error())
		return
	}

	if err := a.queue.EnqueueVehicle(ctx, sample); err != nil {
		a.logger.Warn("enqueue vehicle sample failed, nacking for redelivery",
			"topic", d.Topic, "vehicle_id", sample.VehicleID, "error", err)
		d.Nack()
		return
	}

	a.metrics.RecordIngested(string(domain.StreamVehicle), 1)
	d.Ack()
}

// reject acks the delivery (a malformed/invalid message is never
// redelivered, per spec.md §4.1) and logs a structured rejection.
func (a *Adapter) reject(d *broker.Delivery, stream domain.StreamKind, reason RejectReason, detail string) {
	a.logger.Warn("dropping invalid telemetry sample",
		"topic", d.Topic, "stream", string(stream), "reason", string(reason), "detail", detail)
	a.metrics.RecordDropped(string(stream), string(reason))
	d.Ack()
}

// classify maps a domain.ValidationError to a RejectReason for logging.
func classify(err error) RejectReason {
	ve, ok := err.(*domain.ValidationError)
	if !ok {
		return RejectOutOfRange
	}
	if ve.Field == "meterId" || ve.Field == "vehicleId" {
		return RejectMissingField
	}
	if ve.Field == "timestamp" {
		return RejectMalformedTimestamp
	}
	return RejectOutOfRange
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errMissingTimestamp
	}
	return time.Parse(time.RFC3339, s)
}

var errMissingTimestamp = &domain.ValidationError{Field: "timestamp", Reason: "missing"}

// topicLeaf returns the last "/"-separated segment of a topic, used as a
// fallback device id when the payload omits it.
func topicLeaf(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}
