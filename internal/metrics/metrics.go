// Package metrics exposes Prometheus instrumentation for the optimizer
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	Optimizations     *prometheus.CounterVec
	OptimizeDuration  prometheus.Histogram
	CandidatesSkipped prometheus.Counter
	CacheLookups      *prometheus.CounterVec
	SideEffectErrors  *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	ModelInfo         *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		Optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceopt_optimizations_total",
			Help: "Optimizations by outcome code",
		}, []string{"outcome"}),
		OptimizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "priceopt_optimize_duration_seconds",
			Help:    "Time spent sweeping candidate prices",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		CandidatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceopt_candidates_skipped_total",
			Help: "Candidate prices skipped for non-finite predictions or profit",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceopt_cache_lookups_total",
			Help: "Result cache lookups by result",
		}, []string{"result"}),
		SideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceopt_side_effect_errors_total",
			Help: "Best-effort side effects that failed, by sink",
		}, []string{"sink"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceopt_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "priceopt_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ModelInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "priceopt_model_info",
			Help: "Loaded model artifact, value is the feature count",
		}, []string{"version", "transform"}),
	}

	reg.MustRegister(
		m.Optimizations, m.OptimizeDuration, m.CandidatesSkipped, m.CacheLookups,
		m.SideEffectErrors, m.HTTPRequests, m.HTTPDuration, m.ModelInfo,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(took.Seconds())
}

// SetModel records the loaded model.
func (m *Metrics) SetModel(version, transform string, features int) {
	m.ModelInfo.Reset()
	m.ModelInfo.WithLabelValues(version, transform).Set(float64(features))
}
