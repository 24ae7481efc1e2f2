package storage

// Bulk writes use pgx's UNNEST-of-arrays form: one round trip per
// statement, independent of batch size, rather than a generated multi-row
// VALUES list.

const queryUpsertMeterState = `
INSERT INTO meter_state (meter_id, kwh_consumed_ac, voltage, last_updated)
SELECT * FROM unnest($1::uuid[], $2::numeric[], $3::numeric[], $4::timestamptz[])
ON CONFLICT (meter_id) DO UPDATE SET
	kwh_consumed_ac = EXCLUDED.kwh_consumed_ac,
	voltage         = EXCLUDED.voltage,
	last_updated    = EXCLUDED.last_updated`

const queryInsertMeterHistory = `
INSERT INTO meter_history (meter_id, kwh_consumed_ac, voltage, recorded_at, ingested_at)
SELECT * FROM unnest($1::uuid[], $2::numeric[], $3::numeric[], $4::timestamptz[], $5::timestamptz[])`

const queryUpsertVehicleState = `
INSERT INTO vehicle_state (vehicle_id, soc, kwh_delivered_dc, battery_temp, last_updated)
SELECT * FROM unnest($1::uuid[], $2::numeric[], $3::numeric[], $4::numeric[], $5::timestamptz[])
ON CONFLICT (vehicle_id) DO UPDATE SET
	soc              = EXCLUDED.soc,
	kwh_delivered_dc = EXCLUDED.kwh_delivered_dc,
	battery_temp     = EXCLUDED.battery_temp,
	last_updated     = EXCLUDED.last_updated`

const queryInsertVehicleHistory = `
INSERT INTO vehicle_history (vehicle_id, soc, kwh_delivered_dc, battery_temp, recorded_at, ingested_at)
SELECT * FROM unnest($1::uuid[], $2::numeric[], $3::numeric[], $4::numeric[], $5::timestamptz[], $6::timestamptz[])`

// queryFleetSnapshot returns the N most-recently-updated vehicles,
// left-joined to the meter state of their currently active session. Pure
// hot-store read, no history access (§4.6).
const queryFleetSnapshot = `
SELECT
	v.vehicle_id, v.soc, v.kwh_delivered_dc, v.battery_temp, v.last_updated,
	m.meter_id, m.kwh_consumed_ac, m.voltage, m.last_updated
FROM vehicle_state v
LEFT JOIN vehicle_meter_session s
	ON s.vehicle_id = v.vehicle_id AND s.active
LEFT JOIN meter_state m
	ON m.meter_id = s.meter_id
ORDER BY v.last_updated DESC
LIMIT $1`

// queryPerformanceMetrics computes AC consumption and DC delivery over a
// vehicle's active session windows that overlap [$2, $3], as two
// independent subqueries combined by a single-row cross product — never a
// history-to-history join. kwh_consumed_ac and kwh_delivered_dc are
// cumulative monotonic meter/vehicle readings, not per-sample deltas, so
// usage within the window is MAX(reading) - MIN(reading) across the
// window's samples, not their SUM.
const queryPerformanceMetrics = `
WITH sessions AS (
	SELECT meter_id, mapped_at, COALESCE(unmapped_at, now()) AS unmapped_at
	FROM vehicle_meter_session
	WHERE vehicle_id = $1
	  AND mapped_at < $3
	  AND COALESCE(unmapped_at, now()) > $2
),
ac AS (
	SELECT COALESCE(MAX(h.kwh_consumed_ac) - MIN(h.kwh_consumed_ac), 0) AS total_ac
	FROM meter_history h
	JOIN sessions s ON h.meter_id = s.meter_id
		AND h.recorded_at >= GREATEST(s.mapped_at, $2)
		AND h.recorded_at <  LEAST(s.unmapped_at, $3)
),
dc AS (
	SELECT
		COALESCE(MAX(h.kwh_delivered_dc) - MIN(h.kwh_delivered_dc), 0) AS total_dc,
		COALESCE(AVG(h.battery_temp), 0)                  AS avg_battery_temp,
		COUNT(*)                                          AS data_points
	FROM vehicle_history h
	WHERE h.vehicle_id = $1
	  AND h.recorded_at >= $2
	  AND h.recorded_at <  $3
)
SELECT ac.total_ac, dc.total_dc, dc.avg_battery_temp, dc.data_points
FROM ac, dc`
