// Package metrics exposes Prometheus metrics for condition evaluation.
//
// Metrics (namespace and subsystem come from config):
//   - evaluations_total: evaluations by condition key and verdict
//   - evaluation_errors_total: failed evaluations by error kind
//   - evaluation_duration_seconds: evaluation latency by condition key
//   - reloads_total: ruleset reloads by result
//   - verdict_transitions_total: watched verdict changes by key and new state
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nathoo/condcore/config"
)

// Collector records evaluation metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	reloadsTotal       *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
}

// NewCollector creates and registers the metrics with registry. A nil
// registry gets a fresh one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "condcore"
	}

	c := &Collector{
		registry: registry,
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of condition evaluations",
			},
			[]string{"key", "verdict"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_errors_total",
				Help:      "Total number of failed evaluations by error kind",
			},
			[]string{"kind"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of condition evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"key"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "reloads_total",
				Help:      "Total number of ruleset reloads by result",
			},
			[]string{"result"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "verdict_transitions_total",
				Help:      "Total number of observed verdict changes",
			},
			[]string{"key", "to"},
		),
	}

	registry.MustRegister(
		c.evaluationsTotal,
		c.errorsTotal,
		c.evaluationDuration,
		c.reloadsTotal,
		c.transitionsTotal,
	)
	return c
}

// RecordEvaluation records a successful evaluation.
func (c *Collector) RecordEvaluation(key string, verdict bool, d time.Duration) {
	if c == nil {
		return
	}
	c.evaluationsTotal.WithLabelValues(key, strconv.FormatBool(verdict)).Inc()
	c.evaluationDuration.WithLabelValues(key).Observe(d.Seconds())
}

// RecordError records a failed evaluation.
func (c *Collector) RecordError(key, kind string, d time.Duration) {
	if c == nil {
		return
	}
	if kind == "" {
		kind = "other"
	}
	c.errorsTotal.WithLabelValues(kind).Inc()
	c.evaluationDuration.WithLabelValues(key).Observe(d.Seconds())
}

// RecordReload records a ruleset reload attempt.
func (c *Collector) RecordReload(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.reloadsTotal.WithLabelValues(result).Inc()
}

// RecordTransition records a verdict change. to is "true", "false" or
// "error".
func (c *Collector) RecordTransition(key, to string) {
	if c == nil {
		return
	}
	c.transitionsTotal.WithLabelValues(key, to).Inc()
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
