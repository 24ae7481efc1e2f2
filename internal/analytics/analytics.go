// Package analytics computes the AC->DC efficiency metrics of spec.md §4.5:
// for a vehicle's session-overlapping windows, how much AC energy a meter
// consumed versus how much DC energy the vehicle actually received.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/storage"
)

// ErrNoData is returned when the vehicle has no history data points in the
// requested window — there is nothing to aggregate, not even a zero-value
// result.
var ErrNoData = errors.New("analytics: no data points in window")

// DefaultWindow is the window the HTTP handler uses when the caller does
// not specify one.
const DefaultWindow = 24 * time.Hour

type Reader interface {
	PerformanceAggregate(ctx context.Context, vehicleID string, windowStart, windowEnd time.Time) (storage.RawPerformanceAggregate, error)
}

type Aggregator struct {
	reader Reader
}

func New(reader Reader) *Aggregator {
	return &Aggregator{reader: reader}
}

// Performance computes domain.PerformanceMetrics for vehicleID over
// [windowStart, windowEnd). Returns ErrNoData if the vehicle has zero DC
// history data points in that window.
func (a *Aggregator) Performance(ctx context.Context, vehicleID string, windowStart, windowEnd time.Time) (domain.PerformanceMetrics, error) {
	raw, err := a.reader.PerformanceAggregate(ctx, vehicleID, windowStart, windowEnd)
	if err != nil {
		return domain.PerformanceMetrics{}, fmt.Errorf("analytics: performance: %w", err)
	}

	if raw.DataPoints == 0 {
		return domain.PerformanceMetrics{}, ErrNoData
	}

	var ratio float64
	if raw.TotalAC > 0 {
		ratio = raw.TotalDC / raw.TotalAC
	}
	// raw.TotalAC == 0 with DataPoints > 0 means the vehicle had DC
	// history but no AC consumption overlapped its session window; the
	// ratio is left at zero rather than dividing by zero.

	return domain.PerformanceMetrics{
		VehicleID:          vehicleID,
		WindowStart:        windowStart,
		WindowEnd:          windowEnd,
		TotalAcConsumption: raw.TotalAC,
		TotalDcDelivery:    raw.TotalDC,
		EfficiencyRatio:    ratio,
		AvgBatteryTemp:     raw.AvgBatteryTemp,
		DataPoints:         raw.DataPoints,
	}, nil
}

// PerformanceDefaultWindow computes Performance over the most recent
// DefaultWindow ending now.
func (a *Aggregator) PerformanceDefaultWindow(ctx context.Context, vehicleID string) (domain.PerformanceMetrics, error) {
	end := time.Now().UTC()
	start := end.Add(-DefaultWindow)
	return a.Performance(ctx, vehicleID, start, end)
}
