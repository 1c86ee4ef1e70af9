// Package postgresengine provides a PostgreSQL implementation of docstore.Store.
//
// Each document is one row keyed by its name, holding JSONB content, a version counter, and
// the time of the last save. Saves are compare-and-set on the version column: an insert for a
// new document (ON CONFLICT DO NOTHING) or an update guarded by the expected version. A save
// that affects no row returns docstore.ErrConcurrencyConflict.
//
// Supported database adapters:
//   - pgx.Pool (recommended, optionally with a read replica)
//   - sql.DB
//   - sqlx.DB
//
// Observability is optional, through WithLogger, WithContextualLogger, WithMetrics, and
// WithTracing. The same adapters used for docproxy work here.
//
// Example:
//
//	store, err := postgresengine.NewDocumentStoreFromPGXPool(pool, postgresengine.WithTableName("index_documents"))
//	if err != nil {
//		return err
//	}
//	if err := store.CreateSchema(ctx); err != nil {
//		return err
//	}
//	doc, err := store.Load(ctx, "profile")
package postgresengine
