// Package pgtesthelpers provides test utilities for the PostgreSQL document store with multi-adapter support.
//
// The adapter under test is selected by the ADAPTER_TYPE environment variable, so the same
// suite can run against every supported driver:
//
//	pgx.pool (default): pgxpool.Pool
//	sql.db: database/sql with lib/pq
//	sqlx.db: sqlx.DB with lib/pq
//
// Every wrapper owns a freshly created table with a unique name that is dropped when the test
// finishes. Tests are skipped when the database from GLAZE_POSTGRES_DSN cannot be reached.
package pgtesthelpers
