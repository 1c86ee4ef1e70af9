package docproxy

import "time"

const defaultProxyName = "document"

// settings holds the configuration shared by a Proxy and, through a Registry, by all its proxies.
type settings struct {
	name             string
	fetchTimeout     time.Duration
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// Option defines a functional option for configuring a Proxy or a Registry.
type Option func(*settings) error

func buildSettings(options ...Option) (settings, error) {
	s := settings{name: defaultProxyName}

	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	return s, nil
}

// WithName sets the document name used as a label in logs, metrics, and spans.
// A Registry sets it for each proxy it creates.
func WithName(name string) Option {
	return func(s *settings) error {
		if name == "" {
			return ErrEmptyProxyName
		}

		s.name = name

		return nil
	}
}

// WithFetchTimeout bounds the fetch step of every drain cycle and every idle Get.
// The Fetcher must honor its context for the timeout to have an effect.
// Mutations are never timed out; the ordering contract is unchanged.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(s *settings) error {
		if timeout <= 0 {
			return ErrInvalidFetchTimeout
		}

		s.fetchTimeout = timeout

		return nil
	}
}

// WithLogger sets the logger for the Proxy.
//
// Debug level: fetch and mutation durations
// Info level: completed drain cycles
// Warn level: failed or panicked mutations
// Error level: failed fetches.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Proxy.
// It takes precedence over WithLogger and receives the cycle's span context when tracing is enabled.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Proxy.
// It receives fetch, mutation, and cycle durations, mutation counts, and error counts.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Proxy.
// One span is created per drain cycle and per idle Get.
func WithTracing(collector TracingCollector) Option {
	return func(s *settings) error {
		s.tracingCollector = collector
		return nil
	}
}
