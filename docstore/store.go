package docstore

import (
	"context"

	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
)

// Store persists named documents with optimistic concurrency.
type Store interface {
	// Load returns the stored document, or ErrDocumentNotFound.
	Load(ctx context.Context, name string) (Document, error)

	// Save stores doc if doc.Version equals the stored version (0 means it must not exist yet)
	// and returns the stored document with the next version.
	// A version mismatch returns ErrConcurrencyConflict.
	Save(ctx context.Context, doc Document) (Document, error)

	// Delete removes the document, or returns ErrDocumentNotFound.
	Delete(ctx context.Context, name string) error
}

// The observability contracts are shared with docproxy.
type (
	Logger                     = docproxy.Logger
	ContextualLogger           = docproxy.ContextualLogger
	MetricsCollector           = docproxy.MetricsCollector
	ContextualMetricsCollector = docproxy.ContextualMetricsCollector
	SpanContext                = docproxy.SpanContext
	TracingCollector           = docproxy.TracingCollector
)
