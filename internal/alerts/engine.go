// Package alerts evaluates readings against configured water-quality
// thresholds, gated by the dashboard's AlertSettings flags.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savegress/aquasense/internal/config"
	"github.com/savegress/aquasense/pkg/models"
)

// Engine holds the active alert set and fans new alerts out to notifiers.
type Engine struct {
	cfg config.AlertsConfig

	mu        sync.RWMutex
	active    map[string]*models.Alert // keyed by metric
	notifiers []Notifier
}

// NewEngine creates an alert engine.
func NewEngine(cfg config.AlertsConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		active: make(map[string]*models.Alert),
	}
}

// AddNotifier registers a notification channel.
func (e *Engine) AddNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifiers = append(e.notifiers, n)
}

// Evaluate checks one reading. A metric whose alert flag is off is skipped
// entirely; a metric back inside its band clears its active alert. Returns
// the alerts newly triggered by this reading.
func (e *Engine) Evaluate(r *models.Reading, settings models.AlertSettings) []*models.Alert {
	if !e.cfg.Enabled || r == nil {
		return nil
	}

	var triggered []*models.Alert

	if settings.TemperatureAlerts {
		if a := e.check("temperature", r.Temperature, e.cfg.TemperatureMin, e.cfg.TemperatureMax, r.Timestamp); a != nil {
			triggered = append(triggered, a)
		}
	}
	if settings.PHAlerts {
		if a := e.check("ph", r.PH, e.cfg.PHMin, e.cfg.PHMax, r.Timestamp); a != nil {
			triggered = append(triggered, a)
		}
	}
	if settings.TDSLevelAlerts {
		if a := e.check("tdsLevel", r.TDSLevel, 0, e.cfg.TDSMax, r.Timestamp); a != nil {
			triggered = append(triggered, a)
		}
	}

	for _, a := range triggered {
		e.notify(a)
	}

	return triggered
}

// check compares one value to its band. It returns a new alert on a fresh
// violation, nil when the value is fine or the alert is already active.
func (e *Engine) check(metric string, value, min, max float64, ts time.Time) *models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	if value >= min && value <= max {
		delete(e.active, metric)
		return nil
	}

	if _, ok := e.active[metric]; ok {
		return nil
	}

	threshold := max
	direction := "above"
	if value < min {
		threshold = min
		direction = "below"
	}

	severity := models.SeverityWarning
	if span := max - min; span > 0 {
		if value > max+span/2 || value < min-span/2 {
			severity = models.SeverityCritical
		}
	}

	a := &models.Alert{
		ID:        uuid.NewString(),
		Metric:    metric,
		Severity:  severity,
		Message:   fmt.Sprintf("%s %.2f is %s threshold %.2f", metric, value, direction, threshold),
		Value:     value,
		Threshold: threshold,
		Timestamp: ts,
	}
	e.active[metric] = a
	return a
}

func (e *Engine) notify(a *models.Alert) {
	e.mu.RLock()
	notifiers := make([]Notifier, len(e.notifiers))
	copy(notifiers, e.notifiers)
	e.mu.RUnlock()

	for _, n := range notifiers {
		n.Notify(a)
	}
}

// Active returns the currently firing alerts.
func (e *Engine) Active() []*models.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	alerts := make([]*models.Alert, 0, len(e.active))
	for _, a := range e.active {
		alerts = append(alerts, a)
	}
	return alerts
}
