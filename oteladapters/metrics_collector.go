package oteladapters

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
)

// MetricsCollector implements docproxy.ContextualMetricsCollector with the OpenTelemetry metrics API:
//   - RecordDuration -> Float64Histogram in seconds
//   - IncrementCounter -> Int64Counter
//   - RecordValue -> Float64Gauge
//
// Instruments are created on first use of a metric name and reused afterwards.
type MetricsCollector struct {
	meter      metric.Meter
	histograms *xsync.MapOf[string, metric.Float64Histogram]
	counters   *xsync.MapOf[string, metric.Int64Counter]
	gauges     *xsync.MapOf[string, metric.Float64Gauge]
}

// NewMetricsCollector creates a collector that registers its instruments with meter.
func NewMetricsCollector(meter metric.Meter) *MetricsCollector {
	return &MetricsCollector{
		meter:      meter,
		histograms: xsync.NewMapOf[string, metric.Float64Histogram](),
		counters:   xsync.NewMapOf[string, metric.Int64Counter](),
		gauges:     xsync.NewMapOf[string, metric.Float64Gauge](),
	}
}

// RecordDuration records duration in seconds.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), metricName, duration, labels)
}

// RecordDurationContext records duration in seconds, correlated with the span in ctx.
func (m *MetricsCollector) RecordDurationContext(ctx context.Context, metricName string, duration time.Duration, labels map[string]string) {
	histogram, ok := m.histogram(metricName)
	if !ok {
		return
	}

	histogram.Record(ctx, duration.Seconds(), metric.WithAttributes(toAttributes(labels)...))
}

// IncrementCounter adds one to the counter.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), metricName, labels)
}

// IncrementCounterContext adds one to the counter, correlated with the span in ctx.
func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	counter, ok := m.counter(metricName)
	if !ok {
		return
	}

	counter.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

// RecordValue sets the gauge to value.
func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), metricName, value, labels)
}

// RecordValueContext sets the gauge to value, correlated with the span in ctx.
func (m *MetricsCollector) RecordValueContext(ctx context.Context, metricName string, value float64, labels map[string]string) {
	gauge, ok := m.gauge(metricName)
	if !ok {
		return
	}

	gauge.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

// histogram returns the histogram for name; instruments the meter rejects are not cached,
// so a failing name is retried and then silently skipped.
func (m *MetricsCollector) histogram(name string) (metric.Float64Histogram, bool) {
	if histogram, ok := m.histograms.Load(name); ok {
		return histogram, true
	}

	histogram, err := m.meter.Float64Histogram(name, metric.WithDescription("Duration of a document operation"), metric.WithUnit("s"))
	if err != nil {
		return nil, false
	}

	actual, _ := m.histograms.LoadOrStore(name, histogram)

	return actual, true
}

func (m *MetricsCollector) counter(name string) (metric.Int64Counter, bool) {
	if counter, ok := m.counters.Load(name); ok {
		return counter, true
	}

	counter, err := m.meter.Int64Counter(name, metric.WithDescription("Count of document operations"))
	if err != nil {
		return nil, false
	}

	actual, _ := m.counters.LoadOrStore(name, counter)

	return actual, true
}

func (m *MetricsCollector) gauge(name string) (metric.Float64Gauge, bool) {
	if gauge, ok := m.gauges.Load(name); ok {
		return gauge, true
	}

	gauge, err := m.meter.Float64Gauge(name, metric.WithDescription("Current value of a document operation"))
	if err != nil {
		return nil, false
	}

	actual, _ := m.gauges.LoadOrStore(name, gauge)

	return actual, true
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	return attrs
}

var _ docproxy.ContextualMetricsCollector = (*MetricsCollector)(nil)
