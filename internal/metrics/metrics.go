// Package metrics defines the Prometheus collectors. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the story service
type Metrics struct {
	// Model calls (story, voice, image)
	GenerationRequests *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimited         prometheus.Counter

	// Live sessions
	ActiveSessions  prometheus.Gauge
	SessionsSettled *prometheus.CounterVec

	// Event worker
	EventsConsumed *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors with reg, or with the default registry when reg is nil.
// Tests pass a fresh prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		GenerationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feeled_generation_requests_total",
			Help: "Total number of model generation calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		GenerationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feeled_generation_duration_seconds",
			Help:    "Duration of model generation calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}, []string{"operation"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feeled_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feeled_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "feeled_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feeled_active_sessions",
			Help: "Current number of live story sessions",
		}),
		SessionsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feeled_sessions_settled_total",
			Help: "Sessions that reached a terminal state, by result",
		}, []string{"result"}),

		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feeled_generation_events_consumed_total",
			Help: "Generation events consumed by the worker",
		}, []string{"kind", "language"}),

		gatherer: gatherer,
	}
}

// ObserveGeneration records one model call.
func (m *Metrics) ObserveGeneration(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.GenerationRequests.WithLabelValues(operation, outcome).Inc()
	m.GenerationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// IncRateLimited counts a rejected request.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// SessionOpened and SessionClosed track live sessions.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// SessionSettled counts a session result ("complete", "partial", "story_failed").
func (m *Metrics) SessionSettled(result string) {
	if m == nil {
		return
	}
	m.SessionsSettled.WithLabelValues(result).Inc()
}

// EventConsumed counts one consumed generation event.
func (m *Metrics) EventConsumed(kind, language string) {
	if m == nil {
		return
	}
	if language == "" {
		language = "unknown"
	}
	m.EventsConsumed.WithLabelValues(kind, language).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
