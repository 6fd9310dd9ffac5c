package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/savegress/aquasense/internal/metrics"
	"github.com/savegress/aquasense/internal/storage"
	"github.com/savegress/aquasense/pkg/models"
)

// Store is the orchestrator surface the API serves from.
type Store interface {
	GetSensorReadings(ctx context.Context, limit int) []models.Reading
	GetLatestReading(ctx context.Context) *models.Reading
	GetReadingsByTimeRange(ctx context.Context, start, end time.Time) []models.Reading
	CreateSensorReading(ctx context.Context, r models.Reading) models.Reading
	GetSystemStatus(ctx context.Context) *models.SystemStatus
	GetAlertSettings(ctx context.Context) models.AlertSettings
	UpdateAlertSettings(ctx context.Context, upd storage.AlertSettingsUpdate) models.AlertSettings
	SyncNow(ctx context.Context) models.SyncResult
}

// Alerter exposes currently active threshold alerts.
type Alerter interface {
	Active() []*models.Alert
}

// Server represents the API server
type Server struct {
	router chi.Router
	store  Store
	alerts Alerter
}

// NewServer creates a new API server
func NewServer(store Store, alerts Alerter) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		alerts: alerts,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	s.router.Get("/health", s.healthCheck)

	// Prometheus scrape endpoint
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/sensor-readings", func(r chi.Router) {
			r.Get("/", s.getSensorReadings)
			r.Post("/", s.createSensorReading)
			r.Get("/latest", s.getLatestReading)
			r.Get("/range", s.getReadingsByRange)
		})

		r.Get("/system-status", s.getSystemStatus)

		r.Route("/alert-settings", func(r chi.Router) {
			r.Get("/", s.getAlertSettings)
			r.Put("/", s.updateAlertSettings)
		})

		r.Get("/alerts", s.getActiveAlerts)

		r.Post("/sync-antares", s.syncAntares)

		r.Get("/export-data", s.exportData)
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}
