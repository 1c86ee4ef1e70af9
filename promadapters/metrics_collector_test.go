package promadapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/promadapters"
)

func gather(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}

	require.Failf(t, "metric family not found", "%q was not gathered", name)

	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}

	return ""
}

func Test_MetricsCollector_Counters(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("docproxy_mutations_total", map[string]string{"document": "a", "status": "success"})
	collector.IncrementCounter("docproxy_mutations_total", map[string]string{"document": "a", "status": "success"})
	collector.IncrementCounterContext(context.Background(), "docproxy_mutations_total", map[string]string{"document": "a", "status": "error"})

	// assert
	family := gather(t, registry, "docproxy_mutations_total")
	assert.Equal(t, dto.MetricType_COUNTER, family.GetType())

	totals := make(map[string]float64)
	for _, metric := range family.GetMetric() {
		totals[labelValue(metric, "status")] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"success": 2, "error": 1}, totals)
}

func Test_MetricsCollector_HistogramsAndGauges(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry, promadapters.WithNamespace("glaze"), promadapters.WithBuckets([]float64{.1, 1}))

	// act
	collector.RecordDuration("docstore_operation_duration_seconds", 50*time.Millisecond, map[string]string{"operation": "load"})
	collector.RecordDurationContext(context.Background(), "docstore_operation_duration_seconds", 2*time.Second, map[string]string{"operation": "load"})
	collector.RecordValue("docproxy_cycle_mutations", 3, map[string]string{"document": "a"})
	collector.RecordValueContext(context.Background(), "docproxy_cycle_mutations", 5, map[string]string{"document": "a"})

	// assert
	histogram := gather(t, registry, "glaze_docstore_operation_duration_seconds").GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
	assert.InDelta(t, 2.05, histogram.GetSampleSum(), 0.0001)
	require.Len(t, histogram.GetBucket(), 2)
	assert.Equal(t, uint64(1), histogram.GetBucket()[0].GetCumulativeCount())

	gauge := gather(t, registry, "glaze_docproxy_cycle_mutations").GetMetric()[0].GetGauge()
	assert.InDelta(t, 5.0, gauge.GetValue(), 0.0001)
}

func Test_MetricsCollector_DropsMismatchedLabelSets(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	assert.NotPanics(t, func() {
		collector.IncrementCounter("docstore_concurrency_conflicts_total", map[string]string{"operation": "save"})
		collector.IncrementCounter("docstore_concurrency_conflicts_total", map[string]string{"unexpected": "x"})
	})

	family := gather(t, registry, "docstore_concurrency_conflicts_total")
	require.Len(t, family.GetMetric(), 1)
	assert.InDelta(t, 1.0, family.GetMetric()[0].GetCounter().GetValue(), 0.0001)
}

func Test_MetricsCollector_SharedRegistry(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	first := promadapters.NewMetricsCollector(registry)
	second := promadapters.NewMetricsCollector(registry)

	// act
	first.IncrementCounter("docproxy_fetch_errors_total", map[string]string{"document": "a"})
	second.IncrementCounter("docproxy_fetch_errors_total", map[string]string{"document": "a"})

	// assert
	family := gather(t, registry, "docproxy_fetch_errors_total")
	require.Len(t, family.GetMetric(), 1)
	assert.InDelta(t, 2.0, family.GetMetric()[0].GetCounter().GetValue(), 0.0001)
}

func Test_MetricsCollector_ConcurrentFirstUse(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)
	const writers = 32

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter("docproxy_mutations_total", map[string]string{"status": "success"})
		}()
	}
	wg.Wait()

	family := gather(t, registry, "docproxy_mutations_total")
	assert.InDelta(t, float64(writers), family.GetMetric()[0].GetCounter().GetValue(), 0.0001)
}

func Test_MetricsCollector_WithProxy(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	proxy, err := docproxy.New(
		func(context.Context) (string, error) { return "", nil },
		docproxy.WithName("greeting"),
		docproxy.WithMetrics(promadapters.NewMetricsCollector(registry)),
	)
	require.NoError(t, err)

	// act
	changeErr := proxy.Change(context.Background(), func(_ context.Context, current string) (string, error) {
		return current + "hello", nil
	})

	// assert
	require.NoError(t, changeErr)
	metric := gather(t, registry, "docproxy_mutations_total").GetMetric()[0]
	assert.Equal(t, "greeting", labelValue(metric, "document"))
	assert.Equal(t, "cycle", labelValue(metric, "phase"))
	assert.InDelta(t, 1.0, metric.GetCounter().GetValue(), 0.0001)
}
