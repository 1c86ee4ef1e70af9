// Package oteladapters provides OpenTelemetry implementations of the docproxy and docstore
// observability interfaces.
//
// Wire them into a Proxy, a Registry, or a postgres DocumentStore:
//
//	proxy, err := docproxy.New(fetch,
//		docproxy.WithContextualLogger(oteladapters.NewSlogBridgeLogger("glaze")),
//		docproxy.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("glaze"))),
//		docproxy.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("glaze"))),
//	)
//
// All adapters are safe for concurrent use.
package oteladapters
