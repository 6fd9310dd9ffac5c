package storage

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/savegress/aquasense/internal/database"
	"github.com/savegress/aquasense/pkg/models"
)

// fakeHealth is an in-memory availability flag.
type fakeHealth struct {
	mu         sync.Mutex
	configured bool
	available  bool
}

func (h *fakeHealth) Configured() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.configured
}

func (h *fakeHealth) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.available
}

func (h *fakeHealth) MarkAvailable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = true
}

func (h *fakeHealth) MarkUnavailable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = false
}

// fakeRepo is an in-memory Repository with per-method error injection.
type fakeRepo struct {
	mu       sync.Mutex
	readings []models.Reading
	status   *models.SystemStatus
	settings *models.AlertSettings

	insertErr       error
	listErr         error
	rangeErr        error
	countErr        error
	getStatusErr    error
	saveStatusErr   error
	getSettingsErr  error
	saveSettingsErr error

	insertCalls int
	listCalls   int
}

func (r *fakeRepo) InsertReading(_ context.Context, reading *models.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertErr != nil {
		return r.insertErr
	}
	r.readings = append(r.readings, *reading)
	return nil
}

func (r *fakeRepo) ListReadings(_ context.Context, limit int) ([]models.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}

	out := make([]models.Reading, len(r.readings))
	copy(out, r.readings)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) ListReadingsByRange(_ context.Context, start, end time.Time) ([]models.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rangeErr != nil {
		return nil, r.rangeErr
	}

	out := []models.Reading{}
	for _, reading := range r.readings {
		if !reading.Timestamp.Before(start) && !reading.Timestamp.After(end) {
			out = append(out, reading)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *fakeRepo) CountReadings(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.readings)), nil
}

func (r *fakeRepo) GetSystemStatus(_ context.Context) (*models.SystemStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getStatusErr != nil {
		return nil, r.getStatusErr
	}
	if r.status == nil {
		return nil, database.ErrNotFound
	}
	st := *r.status
	return &st, nil
}

func (r *fakeRepo) SaveSystemStatus(_ context.Context, s *models.SystemStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveStatusErr != nil {
		return r.saveStatusErr
	}
	st := *s
	r.status = &st
	return nil
}

func (r *fakeRepo) GetAlertSettings(_ context.Context) (*models.AlertSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getSettingsErr != nil {
		return nil, r.getSettingsErr
	}
	if r.settings == nil {
		return nil, database.ErrNotFound
	}
	st := *r.settings
	return &st, nil
}

func (r *fakeRepo) SaveAlertSettings(_ context.Context, s *models.AlertSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveSettingsErr != nil {
		return r.saveSettingsErr
	}
	st := *s
	r.settings = &st
	return nil
}

// fakeFetcher returns a canned reading or error.
type fakeFetcher struct {
	mu      sync.Mutex
	reading *models.Reading
	err     error
	calls   int
}

func (f *fakeFetcher) FetchLatest(_ context.Context) (*models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.reading == nil {
		return nil, nil
	}
	r := *f.reading
	return &r, nil
}

func (f *fakeFetcher) Enabled() bool { return true }

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

const errBoom = errSentinel("boom")

func newTestStore(repo *fakeRepo, fetch *fakeFetcher, opts Options) (*Store, *fakeHealth) {
	health := &fakeHealth{configured: true, available: true}
	s := New(repo, health, fetch, nil, opts)
	return s, health
}

func fetchedReading() *models.Reading {
	return &models.Reading{
		ID:          "upstream-1",
		Timestamp:   time.Now().UTC(),
		Temperature: 24,
		PH:          7,
		TDSLevel:    200,
	}
}

// =============================================================================
// Degrade and recover
// =============================================================================

func TestReadDegradesOnQueryFailure(t *testing.T) {
	repo := &fakeRepo{listErr: errBoom}
	s, health := newTestStore(repo, &fakeFetcher{}, Options{})

	got := s.GetSensorReadings(context.Background(), 5)

	if len(got) == 0 {
		t.Fatal("degraded read returned nothing, want fallback data")
	}
	if health.Available() {
		t.Error("gateway should be marked unavailable after a query failure")
	}
	if repo.listCalls != 1 {
		t.Errorf("listCalls = %d, want exactly 1 (no retry loop)", repo.listCalls)
	}

	st := s.GetSystemStatus(context.Background())
	if st.ConnectionStatus != models.StatusError {
		t.Errorf("connectionStatus = %q, want error", st.ConnectionStatus)
	}
}

func TestRecoveryOnNextSuccessfulOperation(t *testing.T) {
	repo := &fakeRepo{listErr: errBoom}
	fetch := &fakeFetcher{reading: fetchedReading()}
	s, health := newTestStore(repo, fetch, Options{})

	s.GetSensorReadings(context.Background(), 5)
	if health.Available() {
		t.Fatal("expected degraded mode")
	}

	// Upstream and store both healthy again; the next sync's insert is the
	// recovery probe. No manual intervention.
	repo.mu.Lock()
	repo.listErr = nil
	repo.mu.Unlock()

	res := s.SyncNow(context.Background())
	if !res.Success {
		t.Fatalf("SyncNow failed: %s", res.Message)
	}
	if !health.Available() {
		t.Error("gateway should be available after a successful persist")
	}
	if res.ConnectionStatus != models.StatusConnected {
		t.Errorf("connectionStatus = %q, want connected", res.ConnectionStatus)
	}
}

func TestFetchInfraFailureDegrades(t *testing.T) {
	repo := &fakeRepo{}
	fetch := &fakeFetcher{err: errBoom}
	s, health := newTestStore(repo, fetch, Options{})

	res := s.SyncNow(context.Background())

	if res.Success {
		t.Error("sync against a dead upstream should not succeed")
	}
	if health.Available() {
		t.Error("transport failure should flip to degraded")
	}
	if res.ConnectionStatus != models.StatusError {
		t.Errorf("connectionStatus = %q, want error", res.ConnectionStatus)
	}
}

func TestFetchDataQualityFailureKeepsAvailability(t *testing.T) {
	repo := &fakeRepo{}
	fetch := &fakeFetcher{} // answers, but with nothing usable
	s, health := newTestStore(repo, fetch, Options{})

	res := s.SyncNow(context.Background())

	if res.Success {
		t.Error("sync without a usable reading should not report success")
	}
	if !health.Available() {
		t.Error("a data-quality failure must not flip availability")
	}
	if res.ConnectionStatus == models.StatusError {
		t.Error("connectionStatus should not show error for bad upstream data")
	}
}

// =============================================================================
// Freshness window
// =============================================================================

func TestFreshnessWindowLimitsFetches(t *testing.T) {
	repo := &fakeRepo{readings: []models.Reading{*fetchedReading()}}
	fetch := &fakeFetcher{reading: fetchedReading()}
	s, _ := newTestStore(repo, fetch, Options{FreshnessWindow: 10 * time.Second})

	current := time.Now()
	s.now = func() time.Time { return current }

	s.GetSensorReadings(context.Background(), 5)
	s.GetSensorReadings(context.Background(), 5)
	if got := fetch.callCount(); got != 1 {
		t.Fatalf("fetch calls within one window = %d, want 1", got)
	}

	current = current.Add(11 * time.Second)
	s.GetSensorReadings(context.Background(), 5)
	if got := fetch.callCount(); got != 2 {
		t.Errorf("fetch calls after window elapsed = %d, want 2", got)
	}
}

func TestReadsNeverRaceTheirPrimingFetch(t *testing.T) {
	repo := &fakeRepo{}
	fetch := &fakeFetcher{reading: fetchedReading()}
	s, _ := newTestStore(repo, fetch, Options{})

	got := s.GetSensorReadings(context.Background(), 5)

	// The priming fetch persisted before the read query ran, so the fetched
	// reading is already visible to the same call.
	if len(got) != 1 || got[0].ID != "upstream-1" {
		t.Errorf("read = %+v, want the freshly fetched reading", got)
	}
}

// =============================================================================
// Recount property
// =============================================================================

func TestDataPointsIsAlwaysAFullRecount(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newTestStore(repo, &fakeFetcher{}, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.CreateSensorReading(ctx, models.Reading{Temperature: 24, PH: 7, TDSLevel: 100})
		}()
	}
	wg.Wait()

	// One more sequential insert recounts after all concurrent writers.
	s.CreateSensorReading(ctx, models.Reading{Temperature: 25, PH: 7, TDSLevel: 100})

	st := s.GetSystemStatus(ctx)
	if st.DataPoints != 9 {
		t.Errorf("dataPoints = %d, want 9 (full recount, not an increment)", st.DataPoints)
	}
}

// =============================================================================
// Empty store policy
// =============================================================================

func TestEmptyStoreSeedsAndPersistsInDevelopment(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newTestStore(repo, &fakeFetcher{}, Options{Environment: "development"})

	got := s.GetSensorReadings(context.Background(), 5)

	if len(got) != 1 {
		t.Fatalf("returned %d readings, want 1 seed", len(got))
	}
	if len(repo.readings) != 1 {
		t.Errorf("persisted %d readings, want exactly 1 seed", len(repo.readings))
	}
	if err := got[0].Validate(); err != nil {
		t.Errorf("seed reading is implausible: %v", err)
	}
}

func TestEmptyStoreSynthesizesWithoutPersistingInProduction(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newTestStore(repo, &fakeFetcher{}, Options{Environment: "production"})

	got := s.GetSensorReadings(context.Background(), 5)

	if len(got) != 1 {
		t.Fatalf("returned %d readings, want 1 synthetic", len(got))
	}
	if repo.insertCalls != 0 {
		t.Errorf("insertCalls = %d, synthetic data must never reach a production store", repo.insertCalls)
	}
}

// =============================================================================
// Time-range reads
// =============================================================================

func TestInvertedRangeIsEmptyNotError(t *testing.T) {
	repo := &fakeRepo{readings: []models.Reading{*fetchedReading()}}
	s, _ := newTestStore(repo, &fakeFetcher{}, Options{})

	start := time.Now()
	end := start.Add(-time.Hour)

	if got := s.GetReadingsByTimeRange(context.Background(), start, end); len(got) != 0 {
		t.Errorf("inverted range returned %d readings, want 0", len(got))
	}
}

func TestRangeServesFullFallbackWhileDegraded(t *testing.T) {
	repo := &fakeRepo{}
	s, health := newTestStore(repo, &fakeFetcher{}, Options{})
	ctx := context.Background()

	health.MarkUnavailable()
	s.CreateSensorReading(ctx, models.Reading{ID: "f1", Temperature: 24, PH: 7, TDSLevel: 100})
	s.CreateSensorReading(ctx, models.Reading{ID: "f2", Temperature: 25, PH: 7, TDSLevel: 110})

	got := s.GetReadingsByTimeRange(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	// Degraded range reads return the whole fallback list, no blending.
	if len(got) != 2 {
		t.Errorf("degraded range read returned %d readings, want full fallback of 2", len(got))
	}
}

func TestRangeQueryInclusiveAscending(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{readings: []models.Reading{
		{ID: "a", Timestamp: base},
		{ID: "b", Timestamp: base.Add(time.Hour)},
		{ID: "c", Timestamp: base.Add(2 * time.Hour)},
	}}
	s, _ := newTestStore(repo, &fakeFetcher{}, Options{})

	got := s.GetReadingsByTimeRange(context.Background(), base, base.Add(time.Hour))

	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("range read = %+v, want [a b] inclusive ascending", got)
	}
}

// =============================================================================
// Write path
// =============================================================================

func TestCreateWhileDegradedLandsInFallback(t *testing.T) {
	repo := &fakeRepo{}
	s, health := newTestStore(repo, &fakeFetcher{}, Options{})
	ctx := context.Background()

	health.MarkUnavailable()
	created := s.CreateSensorReading(ctx, models.Reading{Temperature: 26, PH: 7.2, TDSLevel: 180})

	if created.ID == "" {
		t.Error("degraded create must synthesize an identifier")
	}
	if repo.insertCalls != 0 {
		t.Errorf("insertCalls = %d, want 0 while degraded", repo.insertCalls)
	}

	got := s.GetSensorReadings(ctx, 5)
	if len(got) == 0 || got[0].ID != created.ID {
		t.Errorf("fallback read = %+v, want the degraded write first", got)
	}
}

func TestFallbackListIsBoundedNewestFirst(t *testing.T) {
	repo := &fakeRepo{}
	s, health := newTestStore(repo, &fakeFetcher{}, Options{MaxFallback: 3})
	ctx := context.Background()

	health.MarkUnavailable()
	for i := 0; i < 5; i++ {
		s.CreateSensorReading(ctx, models.Reading{ID: string(rune('a' + i)), Temperature: 24, PH: 7, TDSLevel: 100})
	}

	got := s.GetSensorReadings(ctx, 10)
	if len(got) != 3 {
		t.Fatalf("fallback holds %d readings, want bound of 3", len(got))
	}
	if got[0].ID != "e" || got[2].ID != "c" {
		t.Errorf("fallback order = [%s %s %s], want [e d c]", got[0].ID, got[1].ID, got[2].ID)
	}
}

// =============================================================================
// Status and settings
// =============================================================================

func TestSystemStatusCreatedLazilyOnFirstAccess(t *testing.T) {
	repo := &fakeRepo{readings: []models.Reading{*fetchedReading()}}
	s, _ := newTestStore(repo, &fakeFetcher{}, Options{})

	st := s.GetSystemStatus(context.Background())

	if st.ConnectionStatus != models.StatusConnected {
		t.Errorf("connectionStatus = %q, want connected", st.ConnectionStatus)
	}
	if st.DataPoints != 1 {
		t.Errorf("dataPoints = %d, want 1", st.DataPoints)
	}
	if repo.status == nil {
		t.Error("first access should have persisted the singleton row")
	}
	if st.Uptime == "" {
		t.Error("uptime should be populated")
	}
}

func TestAlertSettingsDefaultOnFirstAccess(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newTestStore(repo, &fakeFetcher{}, Options{})

	got := s.GetAlertSettings(context.Background())

	want := models.DefaultAlertSettings()
	if got.TemperatureAlerts != want.TemperatureAlerts ||
		got.PHAlerts != want.PHAlerts ||
		got.TDSLevelAlerts != want.TDSLevelAlerts {
		t.Errorf("settings = %+v, want defaults %+v", got, want)
	}
	if repo.settings == nil {
		t.Error("defaults should have been persisted on first access")
	}
}

func TestUpdateAlertSettingsPartial(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newTestStore(repo, &fakeFetcher{}, Options{})

	off := false
	got := s.UpdateAlertSettings(context.Background(), AlertSettingsUpdate{TemperatureAlerts: &off})

	if got.TemperatureAlerts {
		t.Error("temperatureAlerts should be off after update")
	}
	if !got.PHAlerts {
		t.Error("phAlerts should keep its previous value")
	}
}

func TestUpdateAlertSettingsWhileDegradedMutatesFallback(t *testing.T) {
	repo := &fakeRepo{}
	s, health := newTestStore(repo, &fakeFetcher{}, Options{})
	ctx := context.Background()

	health.MarkUnavailable()
	on := true
	s.UpdateAlertSettings(ctx, AlertSettingsUpdate{TDSLevelAlerts: &on})

	got := s.GetAlertSettings(ctx)
	if !got.TDSLevelAlerts {
		t.Error("degraded update should be visible on the next read")
	}
	if repo.settings != nil {
		t.Error("degraded update must not reach the store")
	}
}

// =============================================================================
// Callback
// =============================================================================

func TestReadingCallbackReceivesSettings(t *testing.T) {
	repo := &fakeRepo{}
	fetch := &fakeFetcher{reading: fetchedReading()}
	s, _ := newTestStore(repo, fetch, Options{})

	var gotReading *models.Reading
	var gotSettings models.AlertSettings
	s.SetReadingCallback(func(r models.Reading, settings models.AlertSettings) {
		gotReading = &r
		gotSettings = settings
	})

	s.SyncNow(context.Background())

	if gotReading == nil || gotReading.ID != "upstream-1" {
		t.Fatalf("callback reading = %+v, want upstream-1", gotReading)
	}
	if !gotSettings.TemperatureAlerts {
		t.Error("callback should carry the current alert settings")
	}
}
