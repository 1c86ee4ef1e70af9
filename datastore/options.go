package datastore

import (
	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/docstore"
)

// Logger is the plain logger contract shared with docstore.
type Logger = docstore.Logger

// Option defines a functional option for configuring IndexStore.
type Option func(*IndexStore) error

// WithProxyOptions sets the options for the per-document proxies, for example their logger or metrics.
func WithProxyOptions(options ...docproxy.Option) Option {
	return func(s *IndexStore) error {
		s.proxyOptions = append(s.proxyOptions, options...)
		return nil
	}
}

// WithRetryOptions configures the backoff used when a write loses an optimistic concurrency race.
func WithRetryOptions(options ...RetryOption) Option {
	return func(s *IndexStore) error {
		for _, option := range options {
			if err := option(&s.retry); err != nil {
				return err
			}
		}

		return nil
	}
}

// WithLogger sets the logger for the IndexStore.
// Info level: retried writes; Warn level: writes that exhausted their attempts.
func WithLogger(logger Logger) Option {
	return func(s *IndexStore) error {
		s.logger = logger
		return nil
	}
}
