// Package config resolves runtime configuration for the glaze document services.
//
// It builds PostgreSQL connections for the three supported adapters (pgx.Pool, sql.DB,
// sqlx.DB) from DSNs taken from the environment, and sets up OpenTelemetry providers that
// export traces and metrics over OTLP gRPC.
//
// Environment:
//   - GLAZE_POSTGRES_DSN: primary database (default: a local test database)
//   - GLAZE_POSTGRES_REPLICA_DSN: optional read replica
package config
