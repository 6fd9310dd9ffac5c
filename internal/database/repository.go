package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/savegress/aquasense/pkg/models"
)

// Singleton row keys. Status and settings are logical singletons stored as
// one fixed-id row each, upserted in place.
const (
	systemStatusID  = "system-status"
	alertSettingsID = "alert-settings"
)

// =============================================================================
// Sensor readings
// =============================================================================

// InsertReading appends one reading. Readings are immutable once written.
func (g *Gateway) InsertReading(ctx context.Context, r *models.Reading) error {
	pool, err := g.Pool(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sensor_readings (id, timestamp, temperature, ph, tds_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = pool.Exec(ctx, query, r.ID, r.Timestamp, r.Temperature, r.PH, r.TDSLevel, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ListReadings returns up to limit readings, newest first.
func (g *Gateway) ListReadings(ctx context.Context, limit int) ([]models.Reading, error) {
	pool, err := g.Pool(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, timestamp, temperature, ph, tds_level, created_at
		FROM sensor_readings
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// ListReadingsByRange returns readings with start <= timestamp <= end in
// ascending timestamp order.
func (g *Gateway) ListReadingsByRange(ctx context.Context, start, end time.Time) ([]models.Reading, error) {
	pool, err := g.Pool(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, timestamp, temperature, ph, tds_level, created_at
		FROM sensor_readings
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC
	`
	rows, err := pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("list readings by range: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

func scanReadings(rows pgx.Rows) ([]models.Reading, error) {
	readings := []models.Reading{}
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Temperature, &r.PH, &r.TDSLevel, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return readings, nil
}

// CountReadings returns the exact persisted row count. The orchestrator uses
// this full recount for dataPoints; incremented counters would double-count
// under concurrent writers.
func (g *Gateway) CountReadings(ctx context.Context) (int64, error) {
	pool, err := g.Pool(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return count, nil
}

// =============================================================================
// System status singleton
// =============================================================================

// GetSystemStatus returns the singleton status row, ErrNotFound when absent.
func (g *Gateway) GetSystemStatus(ctx context.Context) (*models.SystemStatus, error) {
	pool, err := g.Pool(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, connection_status, last_update, data_points,
		       cpu_usage, memory_usage, storage_usage, uptime
		FROM system_status WHERE id = $1
	`
	s := &models.SystemStatus{}
	err = pool.QueryRow(ctx, query, systemStatusID).Scan(
		&s.ID, &s.ConnectionStatus, &s.LastUpdate, &s.DataPoints,
		&s.CPUUsage, &s.MemoryUsage, &s.StorageUsage, &s.Uptime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get system status: %w", err)
	}
	return s, nil
}

// SaveSystemStatus writes the singleton status row, creating it if absent.
func (g *Gateway) SaveSystemStatus(ctx context.Context, s *models.SystemStatus) error {
	pool, err := g.Pool(ctx)
	if err != nil {
		return err
	}

	s.ID = systemStatusID
	query := `
		INSERT INTO system_status (id, connection_status, last_update, data_points,
		                           cpu_usage, memory_usage, storage_usage, uptime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			connection_status = EXCLUDED.connection_status,
			last_update       = EXCLUDED.last_update,
			data_points       = EXCLUDED.data_points,
			cpu_usage         = EXCLUDED.cpu_usage,
			memory_usage      = EXCLUDED.memory_usage,
			storage_usage     = EXCLUDED.storage_usage,
			uptime            = EXCLUDED.uptime
	`
	_, err = pool.Exec(ctx, query, s.ID, s.ConnectionStatus, s.LastUpdate, s.DataPoints,
		s.CPUUsage, s.MemoryUsage, s.StorageUsage, s.Uptime)
	if err != nil {
		return fmt.Errorf("save system status: %w", err)
	}
	return nil
}

// =============================================================================
// Alert settings singleton
// =============================================================================

// GetAlertSettings returns the singleton settings row, ErrNotFound when absent.
func (g *Gateway) GetAlertSettings(ctx context.Context) (*models.AlertSettings, error) {
	pool, err := g.Pool(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, temperature_alerts, ph_alerts, tds_level_alerts
		FROM alert_settings WHERE id = $1
	`
	s := &models.AlertSettings{}
	err = pool.QueryRow(ctx, query, alertSettingsID).Scan(
		&s.ID, &s.TemperatureAlerts, &s.PHAlerts, &s.TDSLevelAlerts,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get alert settings: %w", err)
	}
	return s, nil
}

// SaveAlertSettings writes the singleton settings row, creating it if absent.
func (g *Gateway) SaveAlertSettings(ctx context.Context, s *models.AlertSettings) error {
	pool, err := g.Pool(ctx)
	if err != nil {
		return err
	}

	s.ID = alertSettingsID
	query := `
		INSERT INTO alert_settings (id, temperature_alerts, ph_alerts, tds_level_alerts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			temperature_alerts = EXCLUDED.temperature_alerts,
			ph_alerts          = EXCLUDED.ph_alerts,
			tds_level_alerts   = EXCLUDED.tds_level_alerts
	`
	_, err = pool.Exec(ctx, query, s.ID, s.TemperatureAlerts, s.PHAlerts, s.TDSLevelAlerts)
	if err != nil {
		return fmt.Errorf("save alert settings: %w", err)
	}
	return nil
}
