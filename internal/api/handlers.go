package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/savegress/aquasense/internal/storage"
	"github.com/savegress/aquasense/pkg/models"
)

// Health check
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "aquasense",
		"time":    time.Now().UTC(),
	})
}

// Reading handlers

func (s *Server) getSensorReadings(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	readings := s.store.GetSensorReadings(r.Context(), limit)
	respondJSON(w, http.StatusOK, readings)
}

func (s *Server) getLatestReading(w http.ResponseWriter, r *http.Request) {
	reading := s.store.GetLatestReading(r.Context())
	if reading == nil {
		respondError(w, http.StatusNotFound, "No readings available")
		return
	}
	respondJSON(w, http.StatusOK, reading)
}

func (s *Server) getReadingsByRange(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings := s.store.GetReadingsByTimeRange(r.Context(), start, end)
	respondJSON(w, http.StatusOK, readings)
}

func (s *Server) createSensorReading(w http.ResponseWriter, r *http.Request) {
	var reading models.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := reading.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created := s.store.CreateSensorReading(r.Context(), reading)
	respondJSON(w, http.StatusCreated, created)
}

// System status handler

func (s *Server) getSystemStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.GetSystemStatus(r.Context()))
}

// Alert settings handlers

func (s *Server) getAlertSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.GetAlertSettings(r.Context()))
}

func (s *Server) updateAlertSettings(w http.ResponseWriter, r *http.Request) {
	// waterLevelAlerts is the dashboard's name for the TDS toggle.
	var req struct {
		TemperatureAlerts *bool `json:"temperatureAlerts"`
		PHAlerts          *bool `json:"phAlerts"`
		WaterLevelAlerts  *bool `json:"waterLevelAlerts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated := s.store.UpdateAlertSettings(r.Context(), storage.AlertSettingsUpdate{
		TemperatureAlerts: req.TemperatureAlerts,
		PHAlerts:          req.PHAlerts,
		TDSLevelAlerts:    req.WaterLevelAlerts,
	})
	respondJSON(w, http.StatusOK, updated)
}

// Alert handlers

func (s *Server) getActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.alerts.Active()
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

// Sync handler

func (s *Server) syncAntares(w http.ResponseWriter, r *http.Request) {
	// The result carries its own success flag; a failed cycle is still a
	// well-formed answer for the dashboard, not a transport error.
	respondJSON(w, http.StatusOK, s.store.SyncNow(r.Context()))
}

// Helper functions

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	start := time.Now().AddDate(0, -1, 0) // Default: 1 month ago
	end := time.Now()

	if v := r.URL.Query().Get("startTime"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errInvalidTime("startTime")
		}
		start = t
	}
	if v := r.URL.Query().Get("endTime"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errInvalidTime("endTime")
		}
		end = t
	}
	return start, end, nil
}

type errInvalidTime string

func (e errInvalidTime) Error() string {
	return string(e) + " must be an RFC 3339 timestamp"
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
