// Package telemetry exposes Prometheus metrics for the HTTP surface, session
// writes and reminder outcomes.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reminder outcomes.
const (
	ReminderScheduled  = "scheduled"
	ReminderSuppressed = "suppressed"
	ReminderCancelled  = "cancelled"
	ReminderDelivered  = "delivered"
	ReminderFailed     = "failed"
)

// Metrics owns a private registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	sessionWrites *prometheus.CounterVec
	reminders     *prometheus.CounterVec
}

// New builds the collectors and registers them with a fresh registry that
// also carries the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "caseload",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "caseload",
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		sessionWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "caseload",
				Name:      "session_writes_total",
				Help:      "Session mutations by operation",
			},
			[]string{"op"},
		),
		reminders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "caseload",
				Name:      "reminders_total",
				Help:      "Reminder lifecycle events by outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.sessionWrites,
		m.reminders,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SessionWrite counts a committed session mutation ("create", "update",
// "delete", "complete", "reopen").
func (m *Metrics) SessionWrite(op string) {
	if m == nil {
		return
	}
	m.sessionWrites.WithLabelValues(op).Inc()
}

// Reminder counts a reminder outcome.
func (m *Metrics) Reminder(outcome string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency keyed by the matched route
// pattern, never the raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
