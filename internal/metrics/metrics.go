// Package metrics exposes Prometheus collectors for the tally store and the
// HTTP layer on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tally/internal/tally"
)

const namespace = "tally"

type Metrics struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	todayCount prometheus.GaugeFunc
	average    prometheus.Gauge
	days       prometheus.Gauge

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Guards the snapshot gauges. Change notifications can arrive out of
	// order, so only a snapshot newer than version is applied.
	mu        sync.Mutex
	applied   bool
	version   uint64
	lastToday float64
	today     func() float64
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Store operations by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Store operation latency including the durable write",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		average: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_count",
			Help:      "Mean count over all recorded days",
		}),
		days: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recorded_days",
			Help:      "Number of days with an entry",
		}),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	// Read at scrape time so the value follows the date change at midnight.
	m.todayCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "today_count",
		Help:      "Count recorded for the current day",
	}, m.currentToday)

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.todayCount,
		m.average,
		m.days,
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOperation implements tally.Observer.
func (m *Metrics) ObserveOperation(op tally.Op, outcome string, elapsed time.Duration) {
	m.operations.WithLabelValues(string(op), outcome).Inc()
	m.operationDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// ObserveSnapshot updates the derived-statistics gauges. A snapshot whose
// version is not newer than the last applied one is ignored and false is
// returned.
func (m *Metrics) ObserveSnapshot(s tally.Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied && s.Version <= m.version {
		return false
	}
	m.applied = true
	m.version = s.Version
	m.lastToday = s.TodayCount
	m.average.Set(s.Average)
	m.days.Set(float64(len(s.Counts)))
	return true
}

func (m *Metrics) currentToday() float64 {
	m.mu.Lock()
	fn, last := m.today, m.lastToday
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return last
}

// Track keeps the gauges in step with store and returns the func that stops
// tracking.
func (m *Metrics) Track(store *tally.Store) func() {
	m.mu.Lock()
	m.today = func() float64 { return store.Snapshot().TodayCount }
	m.mu.Unlock()

	m.ObserveSnapshot(store.Snapshot())
	unsubscribe := store.Subscribe(func(c tally.Change) {
		m.ObserveSnapshot(c.Snapshot)
	})
	return func() {
		unsubscribe()
		m.mu.Lock()
		m.today = nil
		m.mu.Unlock()
	}
}

// RegisterCounterFunc exposes a monotonically increasing value owned elsewhere,
// e.g. the change publisher's drop count.
func (m *Metrics) RegisterCounterFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency under a fixed route label so
// per-date paths do not create a series each.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
