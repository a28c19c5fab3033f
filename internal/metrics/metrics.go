// Package metrics exposes Prometheus collectors for the screenshot service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	capturesTotal          *prometheus.CounterVec
	captureDurationSeconds prometheus.Histogram
	notificationsTotal     *prometheus.CounterVec
	persistFailuresTotal   prometheus.Counter
	activeTriggers         prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrinshot_captures_total",
				Help: "Total number of capture attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		captureDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrinshot_capture_duration_seconds",
				Help:    "Histogram of capture attempt latencies.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrinshot_notifications_total",
				Help: "Total notifications attempted, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		persistFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scrinshot_persist_failures_total",
				Help: "Total transient job store persistence failures.",
			},
		)

		activeTriggers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrinshot_active_triggers",
				Help: "Number of jobs with a live trigger.",
			},
		)
	})
}

// RecordCapture observes one capture attempt.
func RecordCapture(outcome string, duration time.Duration) {
	if capturesTotal == nil {
		return
	}
	capturesTotal.WithLabelValues(outcome).Inc()
	captureDurationSeconds.Observe(duration.Seconds())
}

// RecordNotification observes one notification attempt.
func RecordNotification(kind string, outcome string) {
	if notificationsTotal == nil {
		return
	}
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordPersistFailure counts a transient job store failure.
func RecordPersistFailure() {
	if persistFailuresTotal == nil {
		return
	}
	persistFailuresTotal.Inc()
}

// SetActiveTriggers publishes the current trigger table size.
func SetActiveTriggers(n int) {
	if activeTriggers == nil {
		return
	}
	activeTriggers.Set(float64(n))
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
