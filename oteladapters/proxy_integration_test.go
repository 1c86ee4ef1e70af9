package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/oteladapters"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

func Test_Proxy_WithOpenTelemetryAdapters(t *testing.T) {
	// setup
	exporter := tracetest.NewInMemoryExporter()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	proxy, err := docproxy.New(
		func(context.Context) (int, error) { return 40, nil },
		docproxy.WithName("counter"),
		docproxy.WithMetrics(oteladapters.NewMetricsCollector(meterProvider.Meter("test"))),
		docproxy.WithTracing(oteladapters.NewTracingCollector(tracerProvider.Tracer("test"))),
		docproxy.WithContextualLogger(oteladapters.NewSlogBridgeLogger("test")),
	)
	require.NoError(t, err)

	// act
	changeErr := proxy.Change(context.Background(), func(_ context.Context, current int) (int, error) {
		return current + 2, nil
	})

	// assert
	require.NoError(t, changeErr)
	require.Eventually(t, func() bool {
		return len(exporter.GetSpans()) == 1
	}, testTimeout, testTick, "the cycle span ends right after the last mutation settled")

	span := exporter.GetSpans()[0]
	assert.Equal(t, "docproxy.cycle", span.Name)
	mutationCount, ok := attributeValue(span, "mutation_count")
	assert.True(t, ok)
	assert.Equal(t, "1", mutationCount)

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))
	sum, ok := findMetric(t, resourceMetrics, "docproxy_mutations_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}
