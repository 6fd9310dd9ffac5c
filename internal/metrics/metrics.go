// Package metrics exposes Prometheus instrumentation for the acquisition
// and fallback paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchTotal counts upstream fetch attempts by result
	// (success, empty, error).
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aquasense_fetch_total",
		Help: "Upstream telemetry fetch attempts by result.",
	}, []string{"result"})

	// ReadingsPersisted counts readings written to the store.
	ReadingsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aquasense_readings_persisted_total",
		Help: "Sensor readings successfully persisted.",
	})

	// FallbackReads counts read requests served from the in-memory fallback.
	FallbackReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aquasense_fallback_reads_total",
		Help: "Read requests answered from the in-memory fallback.",
	})

	// Degraded is 1 while the store serves from the fallback, 0 otherwise.
	Degraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aquasense_degraded",
		Help: "Whether the service is in degraded (fallback) mode.",
	})
)

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
