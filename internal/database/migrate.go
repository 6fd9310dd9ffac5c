package database

import "context"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id          TEXT PRIMARY KEY,
		timestamp   TIMESTAMPTZ NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		ph          DOUBLE PRECISION NOT NULL,
		tds_level   DOUBLE PRECISION NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sensor_readings_timestamp
		ON sensor_readings (timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS system_status (
		id                TEXT PRIMARY KEY,
		connection_status TEXT NOT NULL,
		last_update       TIMESTAMPTZ NOT NULL,
		data_points       BIGINT NOT NULL DEFAULT 0,
		cpu_usage         DOUBLE PRECISION NOT NULL DEFAULT 0,
		memory_usage      DOUBLE PRECISION NOT NULL DEFAULT 0,
		storage_usage     DOUBLE PRECISION NOT NULL DEFAULT 0,
		uptime            TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS alert_settings (
		id                 TEXT PRIMARY KEY,
		temperature_alerts BOOLEAN NOT NULL,
		ph_alerts          BOOLEAN NOT NULL,
		tds_level_alerts   BOOLEAN NOT NULL
	)`,
}

// Migrate creates the three tables on an idempotent best-effort basis.
func (g *Gateway) Migrate(ctx context.Context) error {
	pool, err := g.Pool(ctx)
	if err != nil {
		return err
	}

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
