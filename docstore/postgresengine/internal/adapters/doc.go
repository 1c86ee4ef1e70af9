// Package adapters provide database adapter implementations for the PostgreSQL document store.
//
// The adapters support three PostgreSQL database libraries: pgx.Pool, sql.DB, and sqlx.DB.
// All of them present the common DBAdapter interface, allowing the document store to work with
// any supported connection type. The pgx adapter optionally routes eventually consistent reads
// to a replica pool.
package adapters
