// Package spies provides test doubles that capture logging, metrics, and tracing calls.
//
// All spies are safe for concurrent use, since drain cycles report from their own goroutine.
//
//	LogHandlerSpy: slog.Handler capturing records, for Logger and ContextualLogger via *slog.Logger
//	ContextualLoggerSpy: ContextualLogger capturing calls including their context
//	MetricsCollectorSpy: MetricsCollector capturing durations, counters, and values
//	TracingCollectorSpy: TracingCollector capturing spans with start and end attributes
package spies
