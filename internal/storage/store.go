// Package storage is the orchestration core of AquaSense. It coordinates
// the upstream fetcher, the persistence gateway, the optional hot cache,
// and a bounded in-memory fallback so that read requests always get a
// plausible answer regardless of backend health.
//
// Per logical resource the store is in one of two modes: live (gateway
// available, serving from PostgreSQL) or degraded (serving from the
// fallback). Any persistence failure flips live to degraded; the next
// successful gateway operation flips it back. Every gateway attempt while
// degraded doubles as a recovery probe, so recovery needs no manual
// intervention.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savegress/aquasense/internal/cache"
	"github.com/savegress/aquasense/internal/database"
	"github.com/savegress/aquasense/internal/metrics"
	"github.com/savegress/aquasense/pkg/models"
)

// Repository is the persistence surface the store drives. *database.Gateway
// implements it; tests inject failing fakes.
type Repository interface {
	InsertReading(ctx context.Context, r *models.Reading) error
	ListReadings(ctx context.Context, limit int) ([]models.Reading, error)
	ListReadingsByRange(ctx context.Context, start, end time.Time) ([]models.Reading, error)
	CountReadings(ctx context.Context) (int64, error)
	GetSystemStatus(ctx context.Context) (*models.SystemStatus, error)
	SaveSystemStatus(ctx context.Context, s *models.SystemStatus) error
	GetAlertSettings(ctx context.Context) (*models.AlertSettings, error)
	SaveAlertSettings(ctx context.Context, s *models.AlertSettings) error
}

// Health is the gateway availability flag. The store is its only writer.
type Health interface {
	Configured() bool
	Available() bool
	MarkAvailable()
	MarkUnavailable()
}

// Fetcher pulls the latest reading from the upstream platform. A non-nil
// error is an infrastructure failure; a nil reading with nil error is a
// data-quality failure and does not affect gateway availability.
type Fetcher interface {
	FetchLatest(ctx context.Context) (*models.Reading, error)
	Enabled() bool
}

// Options tunes the store.
type Options struct {
	Environment     string
	FreshnessWindow time.Duration
	MaxFallback     int
}

// Store is the storage orchestrator.
type Store struct {
	repo   Repository
	health Health
	fetch  Fetcher
	cache  *cache.Cache
	opts   Options

	// mu guards the fields below for memory safety only. It is never held
	// across I/O: two callers crossing an expired freshness window may both
	// fetch, which is the documented at-least-once behavior.
	mu        sync.Mutex
	fallback  []models.Reading
	status    models.SystemStatus
	settings  models.AlertSettings
	lastFetch time.Time
	onReading func(models.Reading, models.AlertSettings)

	startedAt time.Time
	now       func() time.Time
}

// New creates a Store around an explicit gateway handle. No connection is
// opened here; the first gateway operation does that lazily.
func New(repo Repository, health Health, fetch Fetcher, c *cache.Cache, opts Options) *Store {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = 10 * time.Second
	}
	if opts.MaxFallback <= 0 {
		opts.MaxFallback = 50
	}
	if opts.Environment == "" {
		opts.Environment = "development"
	}
	if c == nil {
		c = cache.Disabled()
	}

	now := time.Now().UTC()
	return &Store{
		repo:   repo,
		health: health,
		fetch:  fetch,
		cache:  c,
		opts:   opts,
		status: models.SystemStatus{
			ID:               "system-status",
			ConnectionStatus: models.StatusDisconnected,
			LastUpdate:       now,
			Uptime:           "0m",
		},
		settings:  models.DefaultAlertSettings(),
		startedAt: now,
		now:       time.Now,
	}
}

// SetReadingCallback registers a hook invoked for every newly ingested
// reading, together with the alert settings in effect at that moment.
func (s *Store) SetReadingCallback(cb func(models.Reading, models.AlertSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReading = cb
}

// =============================================================================
// Mode transitions
// =============================================================================

func (s *Store) degrade() {
	if s.health.Available() {
		log.Println("storage: persistence failure, degrading to in-memory fallback")
		// Drop cached snapshots so a stale "connected" status is not served
		// past the transition.
		if err := s.cache.Invalidate(context.Background()); err != nil {
			log.Printf("storage: cache invalidate failed: %v", err)
		}
	}
	s.health.MarkUnavailable()
	metrics.Degraded.Set(1)

	s.mu.Lock()
	s.status.ConnectionStatus = models.StatusError
	s.status.LastUpdate = s.now().UTC()
	s.mu.Unlock()
}

func (s *Store) recovered() {
	if !s.health.Available() {
		log.Println("storage: persistence recovered, serving live data")
	}
	s.health.MarkAvailable()
	metrics.Degraded.Set(0)

	s.mu.Lock()
	s.status.ConnectionStatus = models.StatusConnected
	s.mu.Unlock()
}

func (s *Store) connectionStatus() models.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.ConnectionStatus
}

// =============================================================================
// Fetch-and-persist priming
// =============================================================================

// maybeRefresh runs one fetch-and-persist cycle when the freshness window
// has elapsed and the gateway is available. It always completes before the
// caller issues its own read, so reads never race their own priming fetch.
func (s *Store) maybeRefresh(ctx context.Context) {
	if !s.health.Available() {
		return
	}

	s.mu.Lock()
	if s.now().Sub(s.lastFetch) < s.opts.FreshnessWindow {
		s.mu.Unlock()
		return
	}
	s.lastFetch = s.now()
	s.mu.Unlock()

	s.fetchAndPersist(ctx)
}

// fetchAndPersist performs one acquisition cycle and returns the fetched
// reading, nil when the upstream had nothing usable.
func (s *Store) fetchAndPersist(ctx context.Context) *models.Reading {
	r, err := s.fetch.FetchLatest(ctx)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("error").Inc()
		s.degrade()
		return nil
	}
	if r == nil {
		// Data-quality failure (or fetcher disabled): no usable reading,
		// but the infrastructure is not to blame. Availability untouched.
		metrics.FetchTotal.WithLabelValues("empty").Inc()
		return nil
	}
	metrics.FetchTotal.WithLabelValues("success").Inc()

	s.prependFallback(*r)
	s.emit(*r)

	if !s.health.Configured() {
		return r
	}

	if err := s.repo.InsertReading(ctx, r); err != nil {
		s.degrade()
		return r
	}
	s.recovered()
	metrics.ReadingsPersisted.Inc()
	s.refreshStatusAfterIngest(ctx)
	s.cacheLatest(ctx, r)
	return r
}

// refreshStatusAfterIngest recomputes dataPoints with a full recount. An
// incremented counter would double-count when the scheduled fetch and a
// manual sync insert concurrently.
func (s *Store) refreshStatusAfterIngest(ctx context.Context) {
	count, err := s.repo.CountReadings(ctx)
	if err != nil {
		s.degrade()
		return
	}

	st, err := s.repo.GetSystemStatus(ctx)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.degrade()
			return
		}
		st = s.defaultStatus()
	}

	st.ConnectionStatus = models.StatusConnected
	st.LastUpdate = s.now().UTC()
	st.DataPoints = count
	s.fillUsage(st)

	if err := s.repo.SaveSystemStatus(ctx, st); err != nil {
		s.degrade()
		return
	}
	if err := s.cache.SetSystemStatus(ctx, st); err != nil {
		log.Printf("storage: cache write failed: %v", err)
	}

	s.mu.Lock()
	s.status = *st
	s.mu.Unlock()
}

// =============================================================================
// Readings
// =============================================================================

// GetSensorReadings returns up to limit readings, newest first. The read
// path never fails: any persistence problem degrades to the fallback list.
func (s *Store) GetSensorReadings(ctx context.Context, limit int) []models.Reading {
	if limit <= 0 {
		limit = 10
	}

	s.maybeRefresh(ctx)

	if !s.health.Available() {
		return s.fallbackReadings(limit)
	}

	rows, err := s.repo.ListReadings(ctx, limit)
	if err != nil {
		s.degrade()
		return s.fallbackReadings(limit)
	}
	s.recovered()

	if len(rows) == 0 {
		return s.seedEmptyStore(ctx)
	}
	return rows
}

// seedEmptyStore handles the empty-table policy split: development persists
// one synthetic seed so the dashboard has something to render; production
// synthesizes in memory only — synthetic data is never silently written to
// a production store.
func (s *Store) seedEmptyStore(ctx context.Context) []models.Reading {
	seed := s.seedReading()

	if s.opts.Environment == "production" {
		return []models.Reading{seed}
	}

	if err := s.repo.InsertReading(ctx, &seed); err != nil {
		s.degrade()
		s.prependFallback(seed)
		return []models.Reading{seed}
	}
	metrics.ReadingsPersisted.Inc()
	s.refreshStatusAfterIngest(ctx)
	return []models.Reading{seed}
}

// GetLatestReading returns the most recent reading, or nil when nothing is
// available anywhere.
func (s *Store) GetLatestReading(ctx context.Context) *models.Reading {
	if r, err := s.cache.GetLatestReading(ctx); err == nil && r != nil {
		return r
	}

	rows := s.GetSensorReadings(ctx, 1)
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}

// GetReadingsByTimeRange returns readings with start <= t <= end in
// ascending order, or the full fallback list while degraded (no blending).
// An inverted range is an empty result, not an error.
func (s *Store) GetReadingsByTimeRange(ctx context.Context, start, end time.Time) []models.Reading {
	if start.After(end) {
		return []models.Reading{}
	}

	s.maybeRefresh(ctx)

	if s.health.Available() {
		rows, err := s.repo.ListReadingsByRange(ctx, start, end)
		if err == nil {
			s.recovered()
			return rows
		}
		s.degrade()
	}

	metrics.FallbackReads.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Reading, len(s.fallback))
	copy(out, s.fallback)
	return out
}

// CreateSensorReading stores one externally validated reading. While
// degraded (or when the insert fails) the reading lands in the fallback
// list instead; the write is never rejected here.
func (s *Store) CreateSensorReading(ctx context.Context, r models.Reading) models.Reading {
	now := s.now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	r.CreatedAt = now

	if s.health.Available() {
		if err := s.repo.InsertReading(ctx, &r); err != nil {
			s.degrade()
		} else {
			s.recovered()
			metrics.ReadingsPersisted.Inc()
			s.refreshStatusAfterIngest(ctx)
			s.cacheLatest(ctx, &r)
			s.prependFallback(r)
			s.emit(r)
			return r
		}
	}

	s.prependFallback(r)
	s.mu.Lock()
	s.status.LastUpdate = now
	s.mu.Unlock()
	s.emit(r)
	return r
}

// =============================================================================
// System status
// =============================================================================

// GetSystemStatus returns the singleton status, creating the row on first
// access when the store is live, or a fallback snapshot while degraded.
func (s *Store) GetSystemStatus(ctx context.Context) *models.SystemStatus {
	if s.health.Available() {
		if cached, err := s.cache.GetSystemStatus(ctx); err == nil && cached != nil {
			s.fillUsage(cached)
			return cached
		}

		st, err := s.repo.GetSystemStatus(ctx)
		switch {
		case err == nil:
			s.recovered()
			st.ConnectionStatus = models.StatusConnected
			s.fillUsage(st)
			s.mu.Lock()
			s.status = *st
			s.mu.Unlock()
			return st
		case errors.Is(err, database.ErrNotFound):
			return s.createInitialStatus(ctx)
		default:
			s.degrade()
		}
	}

	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	s.fillUsage(&st)
	return &st
}

// createInitialStatus lazily creates the singleton row on first access.
func (s *Store) createInitialStatus(ctx context.Context) *models.SystemStatus {
	st := s.defaultStatus()
	st.ConnectionStatus = models.StatusConnected
	if count, err := s.repo.CountReadings(ctx); err == nil {
		st.DataPoints = count
	}
	s.fillUsage(st)

	if err := s.repo.SaveSystemStatus(ctx, st); err != nil {
		s.degrade()
		st.ConnectionStatus = models.StatusError
	} else {
		s.recovered()
	}

	s.mu.Lock()
	s.status = *st
	s.mu.Unlock()
	return st
}

func (s *Store) defaultStatus() *models.SystemStatus {
	return &models.SystemStatus{
		ID:               "system-status",
		ConnectionStatus: models.StatusDisconnected,
		LastUpdate:       s.now().UTC(),
	}
}

// fillUsage refreshes the dashboard gauges. These are coarse process-level
// approximations, not host metrics.
func (s *Store) fillUsage(st *models.SystemStatus) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.Sys > 0 {
		st.MemoryUsage = float64(m.HeapAlloc) / float64(m.Sys) * 100
	}

	cpu := 5 + float64(runtime.NumGoroutine())
	if cpu > 95 {
		cpu = 95
	}
	st.CPUUsage = cpu

	storagePct := float64(st.DataPoints) / 1000
	if storagePct > 100 {
		storagePct = 100
	}
	st.StorageUsage = storagePct

	st.Uptime = formatUptime(s.now().UTC().Sub(s.startedAt))
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// =============================================================================
// Alert settings
// =============================================================================

// GetAlertSettings returns the singleton settings, creating the row with
// defaults on first access when live.
func (s *Store) GetAlertSettings(ctx context.Context) models.AlertSettings {
	if s.health.Available() {
		st, err := s.repo.GetAlertSettings(ctx)
		switch {
		case err == nil:
			s.recovered()
			s.mu.Lock()
			s.settings = *st
			s.mu.Unlock()
			return *st
		case errors.Is(err, database.ErrNotFound):
			def := models.DefaultAlertSettings()
			if err := s.repo.SaveAlertSettings(ctx, &def); err != nil {
				s.degrade()
			} else {
				s.recovered()
			}
			s.mu.Lock()
			s.settings = def
			s.mu.Unlock()
			return def
		default:
			s.degrade()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// AlertSettingsUpdate carries a partial settings change; nil fields keep
// their current value.
type AlertSettingsUpdate struct {
	TemperatureAlerts *bool
	PHAlerts          *bool
	TDSLevelAlerts    *bool
}

// UpdateAlertSettings applies a read-modify-write against the singleton.
// While degraded the in-memory settings are mutated instead, so the change
// is visible immediately even without a store.
func (s *Store) UpdateAlertSettings(ctx context.Context, upd AlertSettingsUpdate) models.AlertSettings {
	current := s.GetAlertSettings(ctx)

	if upd.TemperatureAlerts != nil {
		current.TemperatureAlerts = *upd.TemperatureAlerts
	}
	if upd.PHAlerts != nil {
		current.PHAlerts = *upd.PHAlerts
	}
	if upd.TDSLevelAlerts != nil {
		current.TDSLevelAlerts = *upd.TDSLevelAlerts
	}

	if s.health.Available() {
		if err := s.repo.SaveAlertSettings(ctx, &current); err != nil {
			s.degrade()
		} else {
			s.recovered()
		}
	}

	s.mu.Lock()
	s.settings = current
	s.status.LastUpdate = s.now().UTC()
	s.mu.Unlock()
	return current
}

// =============================================================================
// Manual sync
// =============================================================================

// SyncNow runs one immediate fetch cycle, bypassing the freshness window.
// While degraded the persist attempt doubles as a recovery probe.
func (s *Store) SyncNow(ctx context.Context) models.SyncResult {
	s.mu.Lock()
	s.lastFetch = s.now()
	s.mu.Unlock()

	r := s.fetchAndPersist(ctx)
	status := s.connectionStatus()

	if r == nil {
		return models.SyncResult{
			Success:          false,
			Message:          "no reading available from upstream",
			ConnectionStatus: status,
		}
	}

	return models.SyncResult{
		Success:          true,
		Message:          "latest reading synced",
		LatestReading:    r,
		ConnectionStatus: status,
	}
}

// =============================================================================
// Fallback dataset
// =============================================================================

// prependFallback unshifts a reading onto the bounded newest-first list.
func (s *Store) prependFallback(r models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fallback = append([]models.Reading{r}, s.fallback...)
	if len(s.fallback) > s.opts.MaxFallback {
		s.fallback = s.fallback[:s.opts.MaxFallback]
	}
}

// fallbackReadings serves from the in-memory list, seeding one plausible
// reading when it is empty so the dashboard never renders a void.
func (s *Store) fallbackReadings(limit int) []models.Reading {
	metrics.FallbackReads.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.fallback) == 0 {
		s.fallback = []models.Reading{s.newSeedReading()}
	}

	n := min(limit, len(s.fallback))
	out := make([]models.Reading, n)
	copy(out, s.fallback[:n])
	return out
}

// seedReading synthesizes one plausible reading.
func (s *Store) seedReading() models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newSeedReading()
}

func (s *Store) newSeedReading() models.Reading {
	now := s.now().UTC()
	return models.Reading{
		ID:          uuid.NewString(),
		Timestamp:   now,
		Temperature: 24 + rand.Float64()*4 - 2,
		PH:          6.8 + rand.Float64()*0.6 - 0.3,
		TDSLevel:    150 + rand.Float64()*60 - 30,
		CreatedAt:   now,
	}
}

// =============================================================================
// Plumbing
// =============================================================================

func (s *Store) cacheLatest(ctx context.Context, r *models.Reading) {
	if err := s.cache.SetLatestReading(ctx, r); err != nil {
		log.Printf("storage: cache write failed: %v", err)
	}
}

func (s *Store) emit(r models.Reading) {
	s.mu.Lock()
	cb := s.onReading
	settings := s.settings
	s.mu.Unlock()

	if cb != nil {
		cb(r, settings)
	}
}
