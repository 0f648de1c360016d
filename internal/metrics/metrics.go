// Package metrics holds the Prometheus collectors of the web process.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics records nothing.
//
// Metrics:
//   - memnotes_http_requests_total{method,route,status}
//   - memnotes_http_request_duration_seconds{method,route}
//   - memnotes_quiz_answers_total{result} - "correct", "wrong" or "unrecorded"
//   - memnotes_testset_operations_total{op,outcome}
//   - memnotes_testset_notes_total{op,outcome} - notes imported, skipped or removed
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	QuizAnswers  *prometheus.CounterVec
	TestSetOps   *prometheus.CounterVec
	TestSetNotes *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memnotes_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memnotes_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
			[]string{"method", "route"},
		),
		QuizAnswers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memnotes_quiz_answers_total",
				Help: "Total number of quiz answers submitted",
			},
			[]string{"result"},
		),
		TestSetOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memnotes_testset_operations_total",
				Help: "Total number of test set imports and removals",
			},
			[]string{"op", "outcome"},
		),
		TestSetNotes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memnotes_testset_notes_total",
				Help: "Total number of notes touched by test set operations",
			},
			[]string{"op", "outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordAnswer counts a quiz answer.
func (m *Metrics) RecordAnswer(correct, recorded bool) {
	if m == nil {
		return
	}
	result := "wrong"
	switch {
	case !recorded:
		result = "unrecorded"
	case correct:
		result = "correct"
	}
	m.QuizAnswers.WithLabelValues(result).Inc()
}

// RecordTestSet counts a test set operation ("import" or "remove").
func (m *Metrics) RecordTestSet(op string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.TestSetOps.WithLabelValues(op, outcome).Inc()
}

// AddTestSetNotes counts notes imported, skipped or removed.
func (m *Metrics) AddTestSetNotes(op, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TestSetNotes.WithLabelValues(op, outcome).Add(float64(n))
}
