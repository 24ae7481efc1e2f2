package storage

// DDL reference. Migrations are out of scope for this package (the spec
// treats the relational engine's internals as an external collaborator);
// these statements document the schema the queries in this package assume.
const (
	ddlMeterState = `
CREATE TABLE IF NOT EXISTS meter_state (
	meter_id        uuid PRIMARY KEY,
	kwh_consumed_ac numeric(10,3) NOT NULL,
	voltage         numeric(6,2)  NOT NULL,
	last_updated    timestamptz   NOT NULL
) WITH (fillfactor = 70);`

	ddlVehicleState = `
CREATE TABLE IF NOT EXISTS vehicle_state (
	vehicle_id       uuid PRIMARY KEY,
	soc              numeric(5,2)  NOT NULL,
	kwh_delivered_dc numeric(10,3) NOT NULL,
	battery_temp     numeric(5,2)  NOT NULL,
	last_updated     timestamptz   NOT NULL
) WITH (fillfactor = 70);`

	ddlMeterHistory = `
CREATE TABLE IF NOT EXISTS meter_history (
	id              bigserial,
	meter_id        uuid          NOT NULL,
	kwh_consumed_ac numeric(10,3) NOT NULL,
	voltage         numeric(6,2)  NOT NULL,
	recorded_at     timestamptz   NOT NULL,
	ingested_at     timestamptz   NOT NULL
) PARTITION BY RANGE (recorded_at);
CREATE INDEX IF NOT EXISTS meter_history_meter_recorded_idx
	ON meter_history (meter_id, recorded_at DESC);`

	ddlVehicleHistory = `
CREATE TABLE IF NOT EXISTS vehicle_history (
	id               bigserial,
	vehicle_id       uuid          NOT NULL,
	soc              numeric(5,2)  NOT NULL,
	kwh_delivered_dc numeric(10,3) NOT NULL,
	battery_temp     numeric(5,2)  NOT NULL,
	recorded_at      timestamptz   NOT NULL,
	ingested_at      timestamptz   NOT NULL
) PARTITION BY RANGE (recorded_at);
CREATE INDEX IF NOT EXISTS vehicle_history_vehicle_recorded_idx
	ON vehicle_history (vehicle_id, recorded_at DESC);`

	ddlVehicleMeterSession = `
CREATE TABLE IF NOT EXISTS vehicle_meter_session (
	vehicle_id  uuid        NOT NULL,
	meter_id    uuid        NOT NULL,
	mapped_at   timestamptz NOT NULL,
	unmapped_at timestamptz,
	active      bool        NOT NULL,
	PRIMARY KEY (vehicle_id, meter_id, mapped_at)
);
CREATE UNIQUE INDEX IF NOT EXISTS vehicle_meter_session_active_vehicle_idx
	ON vehicle_meter_session (vehicle_id) WHERE active;
CREATE INDEX IF NOT EXISTS vehicle_meter_session_active_meter_idx
	ON vehicle_meter_session (meter_id) WHERE active;`
)
