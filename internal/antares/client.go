// Package antares fetches encoded telemetry from the Antares IoT platform.
//
// The client is the failure-absorption boundary for everything upstream of
// persistence: transport failures surface as an error (so the caller can
// treat them as an infrastructure problem), while malformed payloads surface
// as a nil reading with no error (a data-quality problem, logged here).
// Nothing below this boundary panics past it.
package antares

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/savegress/aquasense/internal/config"
	"github.com/savegress/aquasense/internal/decoder"
	"github.com/savegress/aquasense/pkg/models"
)

// UnknownDevice is the sentinel device code used when the envelope does not
// name one.
const UnknownDevice = "unknown"

// Client talks to the Antares latest-content endpoint for one device.
type Client struct {
	cfg     config.AntaresConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	enabled bool
	now     func() time.Time
}

// New creates a Client. Missing base URL or API key disables the client for
// the process lifetime instead of failing: the service then serves whatever
// the store and fallback already hold.
func New(cfg config.AntaresConfig) *Client {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}

	enabled := cfg.BaseURL != "" && cfg.APIKey != ""
	if !enabled {
		log.Println("antares: credentials not configured, fetcher disabled")
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.FetchTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "antares",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		enabled: enabled,
		now:     time.Now,
	}
}

// Enabled reports whether the client has usable credentials.
func (c *Client) Enabled() bool {
	return c.enabled
}

// rawReading is the encoded payload nested inside the envelope.
type rawReading struct {
	ID          string `json:"id"`
	EncodedData string `json:"encoded_data"`
	Timestamp   string `json:"timestamp"`
}

// envelope is the flat upstream response shape.
type envelope struct {
	ID         string      `json:"id"`
	DeviceCode string      `json:"device_code"`
	Reading    *rawReading `json:"reading"`
	M2MCin     *m2mCin     `json:"m2m:cin"`
}

// m2mCin is the oneM2M content-instance wrapper Antares uses natively; its
// con attribute is the flat envelope serialized as a JSON string.
type m2mCin struct {
	RI  string `json:"ri"`
	Con string `json:"con"`
}

type fetchResult struct {
	body        []byte
	contentType string
}

// FetchLatest retrieves, decodes, and normalizes the most recent reading.
//
// A non-nil error means the upstream was unreachable (timeout, connection
// failure, non-2xx, open breaker). A nil reading with nil error means the
// upstream answered but the payload was unusable. Callers never see a panic
// from this method.
func (c *Client) FetchLatest(ctx context.Context) (*models.Reading, error) {
	if !c.enabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx)
	})
	if err != nil {
		log.Printf("antares: fetch failed: %v", err)
		return nil, err
	}

	fetched := res.(*fetchResult)
	if !strings.Contains(fetched.contentType, "application/json") {
		log.Printf("antares: unexpected content type %q", fetched.contentType)
		return nil, nil
	}

	return c.normalize(fetched.body), nil
}

func (c *Client) get(ctx context.Context) (*fetchResult, error) {
	url := fmt.Sprintf("%s/%s/%s/la", c.cfg.BaseURL, c.cfg.ApplicationID, c.cfg.DeviceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-M2M-Origin", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	return &fetchResult{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

// normalize turns an envelope body into the canonical Reading shape, or nil
// when the payload is unusable.
func (c *Client) normalize(body []byte) *models.Reading {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Printf("antares: malformed envelope: %v", err)
		return nil
	}

	ri := ""
	if env.M2MCin != nil {
		ri = env.M2MCin.RI
		var inner envelope
		if err := json.Unmarshal([]byte(env.M2MCin.Con), &inner); err != nil {
			log.Printf("antares: malformed m2m:cin con attribute: %v", err)
			return nil
		}
		env = inner
	}

	deviceCode := env.DeviceCode
	if deviceCode == "" {
		deviceCode = UnknownDevice
	}

	if env.Reading == nil || env.Reading.EncodedData == "" {
		log.Printf("antares: envelope for %s has no encoded data", deviceCode)
		return nil
	}

	decoded, ok := decoder.Decode(env.Reading.EncodedData, deviceCode)
	if !ok {
		log.Printf("antares: undecodable payload %q for %s", env.Reading.EncodedData, deviceCode)
		return nil
	}

	now := c.now().UTC()

	var tds float64
	switch {
	case decoded.TDSLevel != nil:
		tds = *decoded.TDSLevel
	case decoded.EC != nil:
		tds = *decoded.EC
	}

	var temperature, ph float64
	if decoded.Temperature != nil {
		temperature = *decoded.Temperature
	}
	if decoded.PH != nil {
		ph = *decoded.PH
	}

	timestamp := now
	if env.Reading.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, env.Reading.Timestamp); err == nil {
			timestamp = ts.UTC()
		}
	}

	id := env.Reading.ID
	if id == "" {
		id = env.ID
	}
	if id == "" {
		id = ri
	}
	if id == "" {
		id = fmt.Sprintf("reading-%d", now.UnixMilli())
	}

	return &models.Reading{
		ID:          id,
		Timestamp:   timestamp,
		Temperature: temperature,
		PH:          ph,
		TDSLevel:    tds,
		CreatedAt:   now,
	}
}
