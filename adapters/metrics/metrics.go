// Package metrics provides Prometheus metrics collection for docmodel.
package metrics

import (
	"time"

	"github.com/artpar/docmodel/core/model"
	"github.com/artpar/docmodel/core/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for docmodel.
type Collector struct {
	// Model operation metrics
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	ValidationFailures *prometheus.CounterVec

	// Reload metrics
	Reloads      prometheus.Counter
	ReloadErrors prometheus.Counter
	LastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
// Tests pass a fresh registry to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docmodel",
				Name:      "operations_total",
				Help:      "Total number of model operations by outcome",
			},
			[]string{"model", "op", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docmodel",
				Name:      "operation_duration_seconds",
				Help:      "Model operation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"model", "op"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docmodel",
				Name:      "validation_failures_total",
				Help:      "Total number of failed validation rules",
			},
			[]string{"model", "field", "kind"},
		),
		Reloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docmodel",
				Name:      "reloads_total",
				Help:      "Total number of successful model reloads",
			},
		),
		ReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docmodel",
				Name:      "reload_errors_total",
				Help:      "Total number of failed model reloads",
			},
		),
		LastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "docmodel",
				Name:      "last_reload_timestamp",
				Help:      "Unix timestamp of the last successful model reload",
			},
		),
	}
}

// ObserveOperation records one model operation.
func (c *Collector) ObserveOperation(modelName, op, outcome string, d time.Duration) {
	c.OperationsTotal.WithLabelValues(modelName, op, outcome).Inc()
	c.OperationDuration.WithLabelValues(modelName, op).Observe(d.Seconds())
}

// ObserveValidation records each failed rule.
func (c *Collector) ObserveValidation(modelName string, failures []schema.Failure) {
	for _, f := range failures {
		c.ValidationFailures.WithLabelValues(modelName, f.Field, string(f.Kind)).Inc()
	}
}

// ObserveReload records the result of a reload attempt.
func (c *Collector) ObserveReload(err error) {
	if err != nil {
		c.ReloadErrors.Inc()
		return
	}
	c.Reloads.Inc()
	c.LastReload.SetToCurrentTime()
}

var _ model.Observer = (*Collector)(nil)
