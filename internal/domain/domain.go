// Package domain holds the core types shared across the ingestion pipeline:
// the two telemetry sample shapes, hot-state rows, session mappings, and the
// analytics result. Nothing in this package talks to a database or a broker.
package domain

import "time"

// StreamKind identifies one of the two independent device classes.
type StreamKind string

const (
	StreamMeter   StreamKind = "meter"
	StreamVehicle StreamKind = "vehicle"
)

// MeterSample is a single reading from an AC smart meter.
type MeterSample struct {
	MeterID       string
	KWhConsumedAC float64
	Voltage       float64
	RecordedAt    time.Time
	IngestedAt    time.Time
}

// VehicleSample is a single reading from a vehicle.
type VehicleSample struct {
	VehicleID     string
	SoC           float64
	KWhDeliveredDC float64
	BatteryTemp   float64
	RecordedAt    time.Time
	IngestedAt    time.Time
}

// MeterState is the latest known row for one meter.
type MeterState struct {
	MeterID       string
	KWhConsumedAC float64
	Voltage       float64
	LastUpdated   time.Time
}

// VehicleState is the latest known row for one vehicle.
type VehicleState struct {
	VehicleID      string
	SoC            float64
	KWhDeliveredDC float64
	BatteryTemp    float64
	LastUpdated    time.Time
}

// FleetRow is one entry of the fleet snapshot: a vehicle state optionally
// left-joined to the meter state of its currently-active session.
type FleetRow struct {
	Vehicle VehicleState
	Meter   *MeterState // nil when the vehicle has no active session
}

// Session is one row of the vehicle<->meter mapping table.
type Session struct {
	VehicleID string
	MeterID   string
	MappedAt  time.Time
	UnmappedAt *time.Time
	Active    bool
}

// PerformanceMetrics is the analytics aggregator's result for one vehicle
// over one time window.
type PerformanceMetrics struct {
	VehicleID          string
	WindowStart        time.Time
	WindowEnd          time.Time
	TotalAcConsumption float64
	TotalDcDelivery    float64
	EfficiencyRatio    float64
	AvgBatteryTemp     float64
	DataPoints         int64
}

// Validation bounds from spec.md §3.
const (
	MinSoC         = 0.0
	MaxSoC         = 100.0
	MinVoltage     = 0.0
	MaxVoltage     = 500.0
	MinBatteryTemp = -40.0
	MaxBatteryTemp = 80.0
)

// ValidateMeterSample checks the invariants of §3 for an AC sample.
func ValidateMeterSample(s MeterSample) error {
	if s.MeterID == "" {
		return &ValidationError{Field: "meterId", Reason: "missing"}
	}
	if s.KWhConsumedAC < 0 {
		return &ValidationError{Field: "kwhConsumedAc", Reason: "negative cumulative energy"}
	}
	if s.Voltage < MinVoltage || s.Voltage > MaxVoltage {
		return &ValidationError{Field: "voltage", Reason: "out of range [0,500]"}
	}
	if s.RecordedAt.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "missing or unparsable"}
	}
	return nil
}

// ValidateVehicleSample checks the invariants of §3 for a DC sample.
func ValidateVehicleSample(s VehicleSample) error {
	if s.VehicleID == "" {
		return &ValidationError{Field: "vehicleId", Reason: "missing"}
	}
	if s.SoC < MinSoC || s.SoC > MaxSoC {
		return &ValidationError{Field: "soc", Reason: "out of range [0,100]"}
	}
	if s.KWhDeliveredDC < 0 {
		return &ValidationError{Field: "kwhDeliveredDc", Reason: "negative cumulative energy"}
	}
	if s.BatteryTemp < MinBatteryTemp || s.BatteryTemp > MaxBatteryTemp {
		return &ValidationError{Field: "batteryTemp", Reason: "out of range [-40,80]"}
	}
	if s.RecordedAt.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "missing or unparsable"}
	}
	return nil
}

// ValidationError describes why a sample was rejected at the intake boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
