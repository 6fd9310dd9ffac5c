package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savegress/aquasense/internal/alerts"
	"github.com/savegress/aquasense/internal/antares"
	"github.com/savegress/aquasense/internal/api"
	"github.com/savegress/aquasense/internal/cache"
	"github.com/savegress/aquasense/internal/config"
	"github.com/savegress/aquasense/internal/database"
	"github.com/savegress/aquasense/internal/storage"
	"github.com/savegress/aquasense/pkg/models"
)

func main() {
	// Load configuration
	var cfg *config.Config
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	log.Printf("Starting AquaSense - Water Quality Telemetry Service")
	log.Printf("Environment: %s", cfg.Server.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence gateway. A failed connection is not fatal: the service
	// starts degraded and recovers when the store comes back.
	gateway := database.NewGateway(cfg.Database.URL, cfg.Server.Environment, cfg.Database.MaxConns)
	if gateway.Configured() {
		if err := gateway.Connect(ctx); err != nil {
			log.Printf("Database unavailable, starting degraded: %v", err)
		} else if err := gateway.Migrate(ctx); err != nil {
			log.Printf("Migration failed, starting degraded: %v", err)
			gateway.MarkUnavailable()
		} else {
			log.Println("Database connected and migrated")
		}
	} else {
		log.Println("DATABASE_URL not set, running on in-memory fallback only")
	}
	defer gateway.Close()

	// Optional Redis hot cache
	var hotCache *cache.Cache
	if cfg.Redis.Enabled {
		c, err := cache.New(cfg.Redis.URL, cfg.Antares.CacheTimeout)
		if err != nil {
			log.Printf("Redis unavailable, running without cache: %v", err)
			hotCache = cache.Disabled()
		} else {
			log.Println("Redis cache connected")
			hotCache = c
		}
	} else {
		hotCache = cache.Disabled()
	}
	defer hotCache.Close()

	// Upstream fetcher
	fetcher := antares.New(cfg.Antares)
	if fetcher.Enabled() {
		log.Printf("Antares fetcher enabled for device %s", cfg.Antares.DeviceID)
	} else {
		log.Println("ANTARES_API_KEY not set, upstream fetching disabled")
	}

	// Alerting engine
	alertsEngine := alerts.NewEngine(cfg.Alerts)
	if cfg.Alerts.WebhookURL != "" {
		alertsEngine.AddNotifier(alerts.NewWebhookNotifier(cfg.Alerts.WebhookURL))
		log.Println("Webhook notifier configured")
	}
	if cfg.Server.Environment == "development" {
		alertsEngine.AddNotifier(alerts.NewConsoleNotifier())
	}

	// Storage orchestrator
	store := storage.New(gateway, gateway, fetcher, hotCache, storage.Options{
		Environment:     cfg.Server.Environment,
		FreshnessWindow: cfg.Antares.CacheTimeout,
		MaxFallback:     cfg.Fallback.MaxReadings,
	})
	store.SetReadingCallback(func(r models.Reading, settings models.AlertSettings) {
		alertsEngine.Evaluate(&r, settings)
	})

	// Background sync loop
	if cfg.Sync.Enabled && fetcher.Enabled() {
		syncer := storage.NewSyncer(store, cfg.Sync.Interval)
		syncer.Start(ctx)
		defer syncer.Stop()
	}

	// Create API server
	server := api.NewServer(store, alertsEngine)

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("AquaSense stopped")
}
