package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
)

// Reader serves the hot-store and performance-window reads: the fleet
// snapshot (§4.6) and the raw aggregates the analytics package turns into
// domain.PerformanceMetrics (§4.5).
type Reader struct {
	pool *Pool
}

func NewReader(pool *Pool) *Reader {
	return &Reader{pool: pool}
}

// FleetSnapshot returns the limit most-recently-updated vehicles,
// left-joined to the meter state of their active session.
func (r *Reader) FleetSnapshot(ctx context.Context, limit int) ([]domain.FleetRow, error) {
	rows, err := r.pool.Pgx().Query(ctx, queryFleetSnapshot, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: fleet snapshot query: %w", err)
	}
	defer rows.Close()

	var out []domain.FleetRow
	for rows.Next() {
		var v domain.VehicleState
		var meterID *string
		var kwhAC, voltage *float64
		var meterLastUpdated *time.Time

		if err := rows.Scan(
			&v.VehicleID, &v.SoC, &v.KWhDeliveredDC, &v.BatteryTemp, &v.LastUpdated,
			&meterID, &kwhAC, &voltage, &meterLastUpdated,
		); err != nil {
			return nil, fmt.Errorf("storage: scan fleet snapshot row: %w", err)
		}

		row := domain.FleetRow{Vehicle: v}
		if meterID != nil {
			row.Meter = &domain.MeterState{
				MeterID:       *meterID,
				KWhConsumedAC: derefFloat(kwhAC),
				Voltage:       derefFloat(voltage),
				LastUpdated:   derefTime(meterLastUpdated),
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate fleet snapshot rows: %w", err)
	}
	return out, nil
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// RawPerformanceAggregate is the un-rounded result of queryPerformanceMetrics.
type RawPerformanceAggregate struct {
	TotalAC        float64
	TotalDC        float64
	AvgBatteryTemp float64
	DataPoints     int64
}

// PerformanceAggregate runs the two-independent-subquery + cross-product
// query of §4.5 for one vehicle's session-overlapping windows.
func (r *Reader) PerformanceAggregate(ctx context.Context, vehicleID string, windowStart, windowEnd time.Time) (RawPerformanceAggregate, error) {
	var agg RawPerformanceAggregate
	err := r.pool.Pgx().QueryRow(ctx, queryPerformanceMetrics, vehicleID, windowStart, windowEnd).
		Scan(&agg.TotalAC, &agg.TotalDC, &agg.AvgBatteryTemp, &agg.DataPoints)
	if err != nil {
		return RawPerformanceAggregate{}, fmt.Errorf("storage: performance aggregate query: %w", err)
	}
	return agg, nil
}
