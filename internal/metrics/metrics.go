// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prbmg"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	predictions     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	registryLookups *prometheus.CounterVec
	modelLoads      *prometheus.CounterVec
	titleFallbacks  prometheus.Counter
	authRejections  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by model and outcome.",
		}, []string{"model", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"stage"}),
		registryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_lookups_total",
			Help:      "Model resolutions, by cache result.",
		}, []string{"result"}),
		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Expensive model loads, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		titleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "title_fallbacks_total",
			Help:      "Clusters with no stored problem title.",
		}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Rejected credentials, by scheme.",
		}, []string{"scheme"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route pattern and status code.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		m.predictions,
		m.stageDuration,
		m.registryLookups,
		m.modelLoads,
		m.titleFallbacks,
		m.authRejections,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Prediction(model string, err error) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(model, outcome(err)).Inc()
}

// ObserveStage records how long a pipeline stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RegistryLookup counts a resolution served from result: "hit", "shared", "miss" or "error".
func (m *Metrics) RegistryLookup(result string) {
	if m == nil {
		return
	}
	m.registryLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ModelLoad(kind string, err error) {
	if m == nil {
		return
	}
	m.modelLoads.WithLabelValues(kind, outcome(err)).Inc()
}

func (m *Metrics) TitleFallback() {
	if m == nil {
		return
	}
	m.titleFallbacks.Inc()
}

func (m *Metrics) AuthRejected(scheme string) {
	if m == nil {
		return
	}
	m.authRejections.WithLabelValues(scheme).Inc()
}

func (m *Metrics) HTTPRequest(route string, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
