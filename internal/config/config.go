package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for AquaSense
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Antares  AntaresConfig  `yaml:"antares"`
	Sync     SyncConfig     `yaml:"sync"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Fallback FallbackConfig `yaml:"fallback"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
}

// IsProduction reports whether the service runs with production policies
// (strict TLS to the store, no synthetic writes).
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// DatabaseConfig holds PostgreSQL configuration. An empty URL is a valid
// state: the service then runs permanently on the in-memory fallback.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// RedisConfig holds the optional hot-cache configuration
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// AntaresConfig holds upstream telemetry platform configuration. Missing
// credentials disable the fetcher instead of failing startup.
type AntaresConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	ApplicationID string        `yaml:"application_id"`
	DeviceID      string        `yaml:"device_id"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	CacheTimeout  time.Duration `yaml:"cache_timeout"`
}

// SyncConfig holds the background fetch loop configuration
type SyncConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// AlertsConfig holds threshold alerting configuration
type AlertsConfig struct {
	Enabled        bool    `yaml:"enabled"`
	TemperatureMin float64 `yaml:"temperature_min"`
	TemperatureMax float64 `yaml:"temperature_max"`
	PHMin          float64 `yaml:"ph_min"`
	PHMax          float64 `yaml:"ph_max"`
	TDSMax         float64 `yaml:"tds_max"`
	WebhookURL     string  `yaml:"webhook_url"`
}

// FallbackConfig bounds the in-memory reading list used in degraded mode
type FallbackConfig struct {
	MaxReadings int `yaml:"max_readings"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := LoadFromEnv()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnvInt("PORT", 3007),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			Enabled: getEnvBool("REDIS_ENABLED", os.Getenv("REDIS_URL") != ""),
		},
		Antares: AntaresConfig{
			BaseURL:       getEnv("ANTARES_BASE_URL", "https://platform.antares.id:8443/~/antares-cse/antares-id"),
			APIKey:        getEnv("ANTARES_API_KEY", ""),
			ApplicationID: getEnv("ANTARES_APPLICATION_ID", "aquasense"),
			DeviceID:      getEnv("ANTARES_DEVICE_ID", "HZ1-pond"),
			FetchTimeout:  getEnvDuration("ANTARES_FETCH_TIMEOUT", 10*time.Second),
			CacheTimeout:  getEnvDuration("ANTARES_CACHE_TIMEOUT", 10*time.Second),
		},
		Sync: SyncConfig{
			Enabled:  getEnvBool("SYNC_ENABLED", true),
			Interval: getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		},
		Alerts: AlertsConfig{
			Enabled:        getEnvBool("ALERTS_ENABLED", true),
			TemperatureMin: getEnvFloat("ALERT_TEMPERATURE_MIN", 18),
			TemperatureMax: getEnvFloat("ALERT_TEMPERATURE_MAX", 32),
			PHMin:          getEnvFloat("ALERT_PH_MIN", 6),
			PHMax:          getEnvFloat("ALERT_PH_MAX", 8.5),
			TDSMax:         getEnvFloat("ALERT_TDS_MAX", 500),
			WebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
		},
		Fallback: FallbackConfig{
			MaxReadings: getEnvInt("FALLBACK_MAX_READINGS", 50),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
