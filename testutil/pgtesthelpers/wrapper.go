package pgtesthelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ceramicstudio/js-glaze-sub000/config"
	"github.com/ceramicstudio/js-glaze-sub000/docstore/postgresengine"
)

// Adapter type constants.
const (
	TypePGXPool = "pgx.pool"
	TypeSQLDB   = "sql.db"
	TypeSQLXDB  = "sqlx.db"

	connectTimeout = 2 * time.Second
)

// Wrapper abstracts over the different connection types behind a document store under test.
type Wrapper interface {
	Store() *postgresengine.DocumentStore
	Exec(ctx context.Context, query string) error
	Close()
}

type pgxPoolWrapper struct {
	pool  *pgxpool.Pool
	store *postgresengine.DocumentStore
}

func (w *pgxPoolWrapper) Store() *postgresengine.DocumentStore { return w.store }

func (w *pgxPoolWrapper) Exec(ctx context.Context, query string) error {
	_, err := w.pool.Exec(ctx, query)
	return err
}

func (w *pgxPoolWrapper) Close() { w.pool.Close() }

type sqlDBWrapper struct {
	db    *sql.DB
	store *postgresengine.DocumentStore
}

func (w *sqlDBWrapper) Store() *postgresengine.DocumentStore { return w.store }

func (w *sqlDBWrapper) Exec(ctx context.Context, query string) error {
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *sqlDBWrapper) Close() { _ = w.db.Close() }

type sqlxWrapper struct {
	db    *sqlx.DB
	store *postgresengine.DocumentStore
}

func (w *sqlxWrapper) Store() *postgresengine.DocumentStore { return w.store }

func (w *sqlxWrapper) Exec(ctx context.Context, query string) error {
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *sqlxWrapper) Close() { _ = w.db.Close() }

// AdapterType returns the adapter selected by ADAPTER_TYPE.
func AdapterType() string {
	adapterType := strings.ToLower(os.Getenv("ADAPTER_TYPE"))
	if adapterType == "" {
		return TypePGXPool
	}

	return adapterType
}

// UniqueTableName returns a table name that no other test uses.
func UniqueTableName() string {
	return "documents_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// CreateWrapper connects to the test database with the adapter from ADAPTER_TYPE, creates a
// document store on a fresh table, and registers cleanup. It skips the test when the database
// is unreachable.
func CreateWrapper(t testing.TB, options ...postgresengine.Option) Wrapper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	tableName := UniqueTableName()
	options = append([]postgresengine.Option{postgresengine.WithTableName(tableName)}, options...)
	dsn := config.PostgresDSN()

	var wrapper Wrapper

	switch adapterType := AdapterType(); adapterType {
	case TypePGXPool:
		pool, err := config.NewPGXPool(ctx, dsn)
		skipIfUnreachable(t, err)

		store, err := postgresengine.NewDocumentStoreFromPGXPool(pool, options...)
		require.NoError(t, err)
		wrapper = &pgxPoolWrapper{pool: pool, store: store}

	case TypeSQLDB:
		db, err := config.NewSQLDB(ctx, dsn)
		skipIfUnreachable(t, err)

		store, err := postgresengine.NewDocumentStoreFromSQLDB(db, options...)
		require.NoError(t, err)
		wrapper = &sqlDBWrapper{db: db, store: store}

	case TypeSQLXDB:
		db, err := config.NewSQLX(ctx, dsn)
		skipIfUnreachable(t, err)

		store, err := postgresengine.NewDocumentStoreFromSQLX(db, options...)
		require.NoError(t, err)
		wrapper = &sqlxWrapper{db: db, store: store}

	default:
		t.Fatalf("unsupported adapter type from env: %s", adapterType)
	}

	require.NoError(t, wrapper.Store().CreateSchema(ctx), "error creating the document table in test setup")

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cleanupCancel()

		_ = wrapper.Exec(cleanupCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{tableName}.Sanitize()))
		wrapper.Close()
	})

	return wrapper
}

func skipIfUnreachable(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Skipf("postgres test database unreachable: %v", err)
	}
}
