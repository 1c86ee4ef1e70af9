package postgresengine

import (
	"time"

	"github.com/ceramicstudio/js-glaze-sub000/docstore"
)

type (
	// Logger is the plain logger contract shared with docstore.
	Logger = docstore.Logger

	// ContextualLogger is the context-aware logger contract shared with docstore.
	ContextualLogger = docstore.ContextualLogger

	// MetricsCollector is the metrics contract shared with docstore.
	MetricsCollector = docstore.MetricsCollector

	// ContextualMetricsCollector is the context-aware metrics contract shared with docstore.
	ContextualMetricsCollector = docstore.ContextualMetricsCollector

	// SpanContext is an active tracing span.
	SpanContext = docstore.SpanContext

	// TracingCollector is the tracing contract shared with docstore.
	TracingCollector = docstore.TracingCollector
)

// Option defines a functional option for configuring DocumentStore.
type Option func(*DocumentStore) error

// WithTableName sets the table name for the DocumentStore.
func WithTableName(tableName string) Option {
	return func(s *DocumentStore) error {
		if tableName == "" {
			return docstore.ErrEmptyTableName
		}

		s.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the DocumentStore.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: completed operations and concurrency conflicts (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(s *DocumentStore) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the DocumentStore.
// It takes precedence over WithLogger and receives the span context when tracing is enabled.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *DocumentStore) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the DocumentStore.
// It receives operation durations, database errors, and concurrency conflicts.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *DocumentStore) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the DocumentStore.
// One span is created per Load, Save, and Delete.
func WithTracing(collector TracingCollector) Option {
	return func(s *DocumentStore) error {
		s.tracingCollector = collector
		return nil
	}
}

// withClock replaces the time source for UpdatedAt; used by tests.
func withClock(now func() time.Time) Option {
	return func(s *DocumentStore) error {
		s.now = now
		return nil
	}
}
