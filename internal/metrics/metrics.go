/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package metrics exposes Prometheus instrumentation for the query pipeline
// and the HTTP surface. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pgedge-nl2sql/internal/apperr"
)

// OutcomeOK labels a successful operation; failures use the apperr kind name
const OutcomeOK = "ok"

// Metrics holds every collector on its own registry
type Metrics struct {
	registry *prometheus.Registry

	generationsTotal      *prometheus.CounterVec
	executionsTotal       *prometheus.CounterVec
	previewsTotal         *prometheus.CounterVec
	schemaRefreshesTotal  *prometheus.CounterVec
	generationDuration    prometheus.Histogram
	executionDuration     prometheus.Histogram
	activeSessions        prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDurSeconds *prometheus.HistogramVec
}

// New creates and registers the collectors, including Go runtime metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_generations_total",
				Help: "Total number of SQL generation requests by outcome.",
			},
			[]string{"outcome"},
		),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_executions_total",
				Help: "Total number of run requests by outcome.",
			},
			[]string{"outcome"},
		),
		previewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_previews_total",
				Help: "Total number of table previews by outcome.",
			},
			[]string{"outcome"},
		),
		schemaRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_schema_refreshes_total",
				Help: "Total number of schema catalog loads by outcome.",
			},
			[]string{"outcome"},
		),
		generationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nl2sql_generation_duration_seconds",
				Help:    "Language model round trip latency.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
			},
		),
		executionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nl2sql_execution_duration_seconds",
				Help:    "Query execution latency including materialization.",
				Buckets: prometheus.DefBuckets,
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nl2sql_active_sessions",
				Help: "Current number of interactive sessions.",
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDurSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nl2sql_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.generationsTotal,
		m.executionsTotal,
		m.previewsTotal,
		m.schemaRefreshesTotal,
		m.generationDuration,
		m.executionDuration,
		m.activeSessions,
		m.httpRequestsTotal,
		m.httpRequestDurSeconds,
	)
	return m
}

// Outcome returns the label for err
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return apperr.KindOf(err).String()
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveGeneration records one generation attempt
func (m *Metrics) ObserveGeneration(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.generationsTotal.WithLabelValues(Outcome(err)).Inc()
	m.generationDuration.Observe(d.Seconds())
}

// ObserveExecution records one run. Safety rejections never reach the
// database and are not timed.
func (m *Metrics) ObserveExecution(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(Outcome(err)).Inc()
	if !apperr.Is(err, apperr.KindSafety) {
		m.executionDuration.Observe(d.Seconds())
	}
}

// ObservePreview records one table preview
func (m *Metrics) ObservePreview(err error) {
	if m == nil {
		return
	}
	m.previewsTotal.WithLabelValues(Outcome(err)).Inc()
}

// ObserveSchemaRefresh records one catalog load
func (m *Metrics) ObserveSchemaRefresh(_ time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = "error"
	}
	m.schemaRefreshesTotal.WithLabelValues(outcome).Inc()
}

// SetActiveSessions reports the number of live sessions
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Middleware records request counts and latency. route maps a request to a
// low-cardinality label, typically the router's matched pattern.
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			label := r.URL.Path
			if route != nil {
				if pattern := route(r); pattern != "" {
					label = pattern
				}
			}
			status := strconv.Itoa(recorder.Status)
			m.httpRequestsTotal.WithLabelValues(r.Method, label, status).Inc()
			m.httpRequestDurSeconds.WithLabelValues(r.Method, label, status).Observe(time.Since(start).Seconds())
		})
	}
}

// StatusRecorder captures the status code and size of a response
type StatusRecorder struct {
	http.ResponseWriter
	Status int
	Bytes  int
}

// WriteHeader records the status code
func (r *StatusRecorder) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *StatusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.Bytes += n
	return n, err
}
