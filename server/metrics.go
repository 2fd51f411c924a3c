package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus metrics the diagnostics server exports.
type Collector struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Compile metrics
	CompilesTotal   *prometheus.CounterVec
	CompileDuration prometheus.Histogram
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter

	// Session metrics
	DocumentsOpen prometheus.Gauge
}

// NewCollector registers all metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tabula",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tabula",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),

		CompilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tabula",
				Name:      "compiles_total",
				Help:      "Total number of schema compilations by outcome",
			},
			[]string{"result"},
		),
		CompileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tabula",
				Name:      "compile_duration_seconds",
				Help:      "Schema compilation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tabula",
				Name:      "compile_cache_hits_total",
				Help:      "Compilations served from the content-hash cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tabula",
				Name:      "compile_cache_misses_total",
				Help:      "Compilations that missed the content-hash cache",
			},
		),

		DocumentsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "tabula",
				Name:      "documents_open",
				Help:      "Number of open document sessions",
			},
		),
	}
}
