package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "landregistry"

// Metrics holds the Prometheus collectors of one server instance
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	transferTransitions *prometheus.CounterVec
	ledgerCalls         *prometheus.CounterVec
	ledgerDuration      *prometheus.HistogramVec
	reconciled          prometheus.Counter
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "path"},
		),

		transferTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transfers",
				Name:      "transitions_total",
				Help:      "Transfer status transitions by target status.",
			},
			[]string{"status"},
		),

		ledgerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "calls_total",
				Help:      "Ledger calls by operation and outcome.",
			},
			[]string{"op", "success"},
		),

		ledgerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "call_duration_seconds",
				Help:      "Duration of ledger calls.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~30s
			},
			[]string{"op"},
		),

		reconciled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transfers",
				Name:      "reconciled_total",
				Help:      "Transfers failed by the stale processing reconciler.",
			},
		),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.transferTransitions,
		m.ledgerCalls,
		m.ledgerDuration,
		m.reconciled,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)

	return m
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies per route template
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}

			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if sc, ok := err.(interface{ HTTPStatus() int }); ok {
					status = sc.HTTPStatus()
				}
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)

			m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())

			return err
		}
	}
}

// RecordTransition counts a transfer entering status
func (m *Metrics) RecordTransition(status string) {
	m.transferTransitions.WithLabelValues(status).Inc()
}

// RecordReconciled counts transfers failed by the reconciler
func (m *Metrics) RecordReconciled(n int) {
	m.reconciled.Add(float64(n))
}

// ObserveLedger records one ledger call; its signature matches ledger.Observer
func (m *Metrics) ObserveLedger(op string, d time.Duration, err error) {
	m.ledgerCalls.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
	m.ledgerDuration.WithLabelValues(op).Observe(d.Seconds())
}
