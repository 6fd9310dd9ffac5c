// Package models contains the wire and domain types shared across AquaSense.
package models

import (
	"fmt"
	"time"
)

// ConnectionStatus describes the health of the persistence backend as seen
// by dashboard clients.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// Acceptable sensor value ranges, enforced at the API boundary before a
// manual reading reaches storage.
const (
	TemperatureMin = -50.0
	TemperatureMax = 100.0
	PHMin          = 0.0
	PHMax          = 14.0
	TDSMin         = 0.0
	TDSMax         = 2000.0
)

// Reading is one water-quality sample. Immutable once created.
type Reading struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	PH          float64   `json:"ph"`
	TDSLevel    float64   `json:"tdsLevel"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate checks the physical ranges for a manually submitted reading.
func (r *Reading) Validate() error {
	if r.Temperature < TemperatureMin || r.Temperature > TemperatureMax {
		return fmt.Errorf("temperature %.2f out of range [%g, %g]", r.Temperature, TemperatureMin, TemperatureMax)
	}
	if r.PH < PHMin || r.PH > PHMax {
		return fmt.Errorf("ph %.2f out of range [%g, %g]", r.PH, PHMin, PHMax)
	}
	if r.TDSLevel < TDSMin || r.TDSLevel > TDSMax {
		return fmt.Errorf("tdsLevel %.2f out of range [%g, %g]", r.TDSLevel, TDSMin, TDSMax)
	}
	return nil
}

// SystemStatus is the singleton health snapshot shown on the dashboard.
type SystemStatus struct {
	ID               string           `json:"id"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	LastUpdate       time.Time        `json:"lastUpdate"`
	DataPoints       int64            `json:"dataPoints"`
	CPUUsage         float64          `json:"cpuUsage"`
	MemoryUsage      float64          `json:"memoryUsage"`
	StorageUsage     float64          `json:"storageUsage"`
	Uptime           string           `json:"uptime"`
}

// AlertSettings is the singleton alert configuration.
type AlertSettings struct {
	ID                string `json:"id"`
	TemperatureAlerts bool   `json:"temperatureAlerts"`
	PHAlerts          bool   `json:"phAlerts"`
	TDSLevelAlerts    bool   `json:"tdsLevelAlerts"`
}

// DefaultAlertSettings returns the settings used until the first explicit
// configuration update.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		ID:                "alert-settings",
		TemperatureAlerts: true,
		PHAlerts:          true,
		TDSLevelAlerts:    false,
	}
}

// AlertSeverity classifies a threshold alert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a triggered threshold violation.
type Alert struct {
	ID        string        `json:"id"`
	Metric    string        `json:"metric"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Timestamp time.Time     `json:"timestamp"`
}

// SyncResult is the response of a manually triggered fetch cycle.
type SyncResult struct {
	Success          bool             `json:"success"`
	Message          string           `json:"message"`
	LatestReading    *Reading         `json:"latestReading"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
}
