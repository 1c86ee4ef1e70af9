// Package docstore defines the persisted form of a mutable JSON document and the Store
// contract that document backends implement.
//
// A Document carries a Version used for optimistic concurrency: Save succeeds only when the
// supplied version equals the stored one, and returns the document with the next version.
// Version 0 means the document has never been stored.
//
// Backends:
//   - postgresengine: PostgreSQL through pgx, database/sql, or sqlx, with optional read replica
//   - pebbleengine: an embedded pebble key-value store, on disk or in memory
//
// The observability interfaces are shared with the docproxy package, so the same logger,
// metrics, and tracing adapters serve both layers.
package docstore
