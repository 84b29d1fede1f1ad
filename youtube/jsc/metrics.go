package jsc

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ytget/ytjsc/types"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics holds the Prometheus collectors of the solving stack. Each Metrics
// owns its registry, so several can coexist in one process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Runtime metrics
	BootstrapTotal    *prometheus.CounterVec
	BootstrapDuration *prometheus.HistogramVec

	// Solve metrics
	SolveTotal    *prometheus.CounterVec
	SolveDuration *prometheus.HistogramVec

	// Pool metrics
	PoolRuntimes prometheus.Gauge
	PoolLookups  *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a metrics set on a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BootstrapTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytjsc_bootstrap_total",
				Help: "Runtime bootstraps by engine and outcome",
			},
			[]string{"engine", "outcome"},
		),
		BootstrapDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ytjsc_bootstrap_duration_seconds",
				Help:    "Time spent evaluating the shim and library stack",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"engine"},
		),
		SolveTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytjsc_solve_total",
				Help: "Challenge groups solved by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		SolveDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ytjsc_solve_duration_seconds",
				Help:    "Wall time of one batch evaluation",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"engine"},
		),
		PoolRuntimes: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ytjsc_pool_runtimes",
				Help: "Runtimes currently held by pools",
			},
		),
		PoolLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytjsc_pool_lookups_total",
				Help: "Pool lookups by result (hit, miss, replaced)",
			},
			[]string{"result"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytjsc_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ytjsc_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordBootstrap records one runtime construction.
func (m *Metrics) RecordBootstrap(engine, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BootstrapTotal.WithLabelValues(engine, outcome).Inc()
	m.BootstrapDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// RecordSolve records one batch: its duration and the outcome of each kind.
func (m *Metrics) RecordSolve(engine string, d time.Duration, outcomes map[types.Kind]string) {
	if m == nil {
		return
	}
	m.SolveDuration.WithLabelValues(engine).Observe(d.Seconds())
	for kind, outcome := range outcomes {
		m.SolveTotal.WithLabelValues(string(kind), outcome).Inc()
	}
}

// RecordPoolLookup records a pool lookup result.
func (m *Metrics) RecordPoolLookup(result string) {
	if m == nil {
		return
	}
	m.PoolLookups.WithLabelValues(result).Inc()
}

// AddPoolRuntimes adjusts the pooled runtime gauge.
func (m *Metrics) AddPoolRuntimes(delta int) {
	if m == nil {
		return
	}
	m.PoolRuntimes.Add(float64(delta))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
