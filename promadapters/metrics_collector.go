package promadapters

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
)

// DefaultBuckets are the histogram buckets, in seconds, for operation durations.
var DefaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

// MetricsCollector implements docproxy.ContextualMetricsCollector with Prometheus vectors.
//
// Every metric name becomes one vector, created and registered on first use with the label
// names of that first call. Later calls with a different label set are dropped.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64
	histograms *xsync.MapOf[string, *prometheus.HistogramVec]
	counters   *xsync.MapOf[string, *prometheus.CounterVec]
	gauges     *xsync.MapOf[string, *prometheus.GaugeVec]
}

// Option defines a functional option for configuring MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes every metric name with namespace and an underscore.
func WithNamespace(namespace string) Option {
	return func(m *MetricsCollector) {
		m.namespace = namespace
	}
}

// WithBuckets replaces DefaultBuckets for every duration histogram.
func WithBuckets(buckets []float64) Option {
	return func(m *MetricsCollector) {
		m.buckets = buckets
	}
}

// NewMetricsCollector creates a collector registering its vectors with registerer.
func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: registerer,
		buckets:    DefaultBuckets,
		histograms: xsync.NewMapOf[string, *prometheus.HistogramVec](),
		counters:   xsync.NewMapOf[string, *prometheus.CounterVec](),
		gauges:     xsync.NewMapOf[string, *prometheus.GaugeVec](),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// RecordDuration observes duration in seconds.
func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	vec, _ := m.histograms.LoadOrCompute(metric, func() *prometheus.HistogramVec {
		return register(m.registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      metric,
			Help:      "Duration of a document operation in seconds.",
			Buckets:   m.buckets,
		}, labelNames(labels)))
	})

	if observer, err := vec.GetMetricWith(labels); err == nil {
		observer.Observe(duration.Seconds())
	}
}

// IncrementCounter adds one to the counter.
func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	vec, _ := m.counters.LoadOrCompute(metric, func() *prometheus.CounterVec {
		return register(m.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      metric,
			Help:      "Count of document operations.",
		}, labelNames(labels)))
	})

	if counter, err := vec.GetMetricWith(labels); err == nil {
		counter.Inc()
	}
}

// RecordValue sets the gauge to value.
func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	vec, _ := m.gauges.LoadOrCompute(metric, func() *prometheus.GaugeVec {
		return register(m.registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      metric,
			Help:      "Last observed value of a document operation.",
		}, labelNames(labels)))
	})

	if gauge, err := vec.GetMetricWith(labels); err == nil {
		gauge.Set(value)
	}
}

// RecordDurationContext is RecordDuration; Prometheus has no trace correlation.
func (m *MetricsCollector) RecordDurationContext(_ context.Context, metric string, duration time.Duration, labels map[string]string) {
	m.RecordDuration(metric, duration, labels)
}

// IncrementCounterContext is IncrementCounter.
func (m *MetricsCollector) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	m.IncrementCounter(metric, labels)
}

// RecordValueContext is RecordValue.
func (m *MetricsCollector) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	m.RecordValue(metric, value, labels)
}

// register registers collector, or returns the collector already registered under the same
// descriptor. A collector the registerer rejects otherwise keeps working unexported.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	err := registerer.Register(collector)

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		if existing, ok := alreadyRegistered.ExistingCollector.(C); ok {
			return existing
		}
	}

	return collector
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

var _ docproxy.ContextualMetricsCollector = (*MetricsCollector)(nil)
