package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/ceramicstudio/js-glaze-sub000/docstore"
	"github.com/ceramicstudio/js-glaze-sub000/docstore/postgresengine/internal/adapters"
)

const (
	defaultTableName = "documents"
	dialectPostgres  = "postgres"
	colName          = "name"
	colContent       = "content"
	colVersion       = "version"
	colUpdatedAt     = "updated_at"
	castJsonb        = "?::jsonb"
)

const createTableStatement = `CREATE TABLE IF NOT EXISTS %s (
	name       TEXT        PRIMARY KEY,
	content    JSONB       NOT NULL,
	version    BIGINT      NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

type sqlQueryString = string

// DocumentStore is a docstore.Store backed by one PostgreSQL table.
type DocumentStore struct {
	db               adapters.DBAdapter
	tableName        string
	now              func() time.Time
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewDocumentStoreFromPGXPool creates a new DocumentStore using a pgx Pool with optional configuration.
func NewDocumentStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*DocumentStore, error) {
	if db == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newDocumentStore(adapters.NewPGXAdapter(db), options...)
}

// NewDocumentStoreFromPGXPoolWithReplica creates a new DocumentStore using a primary and a replica pgx Pool.
// Loads go to the replica only when the context carries docstore.WithEventualConsistency.
func NewDocumentStoreFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*DocumentStore, error) {
	if db == nil || replica == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newDocumentStore(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewDocumentStoreFromSQLDB creates a new DocumentStore using a sql.DB with optional configuration.
func NewDocumentStoreFromSQLDB(db *sql.DB, options ...Option) (*DocumentStore, error) {
	if db == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newDocumentStore(adapters.NewSQLAdapter(db), options...)
}

// NewDocumentStoreFromSQLX creates a new DocumentStore using a sqlx.DB with optional configuration.
func NewDocumentStoreFromSQLX(db *sqlx.DB, options ...Option) (*DocumentStore, error) {
	if db == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newDocumentStore(adapters.NewSQLXAdapter(db), options...)
}

func newDocumentStore(db adapters.DBAdapter, options ...Option) (*DocumentStore, error) {
	s := &DocumentStore{
		db:        db,
		tableName: defaultTableName,
		now:       time.Now,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TableName returns the name of the table the DocumentStore reads and writes.
func (s *DocumentStore) TableName() string {
	return s.tableName
}

// CreateSchema creates the document table if it does not exist yet.
func (s *DocumentStore) CreateSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(createTableStatement, pgx.Identifier{s.tableName}.Sanitize())

	start := time.Now()
	_, execErr := s.db.Exec(ctx, ddl)
	s.logQueryWithDuration(ctx, ddl, operationCreateSchema, time.Since(start))

	if execErr != nil {
		s.logError(ctx, logMsgDBExecFailed, execErr, logAttrOperation, operationCreateSchema)
		return errors.Join(docstore.ErrSavingDocumentFailed, execErr)
	}

	return nil
}

// Load returns the stored document with the given name, or docstore.ErrDocumentNotFound.
// The read goes to a replica only when one is configured and ctx asks for eventual consistency.
func (s *DocumentStore) Load(ctx context.Context, name string) (docstore.Document, error) {
	if name == "" {
		return docstore.Document{}, docstore.ErrEmptyDocumentName
	}

	op, ctx := s.startOperation(ctx, operationLoad, name)

	sqlQuery, buildErr := s.buildSelectQuery(name)
	if buildErr != nil {
		op.finishError(buildErr, errorTypeBuildQuery)
		return docstore.Document{}, buildErr
	}

	start := time.Now()
	rows, queryErr := s.db.Query(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, operationLoad, time.Since(start))

	if queryErr != nil {
		err := errors.Join(docstore.ErrLoadingDocumentFailed, queryErr)
		op.finishError(err, errorTypeDatabaseQuery)

		return docstore.Document{}, err
	}
	defer s.closeRows(ctx, rows)

	doc, scanErr := s.scanDocument(name, rows)
	if scanErr != nil {
		if errors.Is(scanErr, docstore.ErrDocumentNotFound) {
			op.finishNotFound()
			return docstore.Document{}, scanErr
		}

		op.finishError(scanErr, errorTypeRowScan)

		return docstore.Document{}, scanErr
	}

	op.finishSuccess(doc.Version)

	return doc, nil
}

// Save stores doc if its version matches the stored one and returns it with the next version.
// A new document (version 0) is inserted; an existing one is updated where the version still matches.
// When no row was affected the document changed concurrently and docstore.ErrConcurrencyConflict is returned.
func (s *DocumentStore) Save(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	next, buildDocErr := docstore.BuildDocument(doc.Name, doc.Content, doc.Version+1, s.now().UTC().Truncate(time.Microsecond))
	if buildDocErr != nil {
		return docstore.Document{}, buildDocErr
	}

	op, ctx := s.startOperation(ctx, operationSave, doc.Name)

	var sqlQuery sqlQueryString
	var buildErr error

	if doc.IsNew() {
		sqlQuery, buildErr = s.buildInsertQuery(next)
	} else {
		sqlQuery, buildErr = s.buildUpdateQuery(next, doc.Version)
	}

	if buildErr != nil {
		op.finishError(buildErr, errorTypeBuildQuery)
		return docstore.Document{}, buildErr
	}

	rowsAffected, execErr := s.execute(ctx, sqlQuery, operationSave, docstore.ErrSavingDocumentFailed)
	if execErr != nil {
		op.finishError(execErr, errorTypeDatabaseExec)
		return docstore.Document{}, execErr
	}

	if rowsAffected == 0 {
		op.finishConflict(doc.Version)
		return docstore.Document{}, docstore.ErrConcurrencyConflict
	}

	op.finishSuccess(next.Version)

	return next, nil
}

// Delete removes the document with the given name, or returns docstore.ErrDocumentNotFound.
func (s *DocumentStore) Delete(ctx context.Context, name string) error {
	if name == "" {
		return docstore.ErrEmptyDocumentName
	}

	op, ctx := s.startOperation(ctx, operationDelete, name)

	sqlQuery, buildErr := s.buildDeleteQuery(name)
	if buildErr != nil {
		op.finishError(buildErr, errorTypeBuildQuery)
		return buildErr
	}

	rowsAffected, execErr := s.execute(ctx, sqlQuery, operationDelete, docstore.ErrDeletingDocumentFailed)
	if execErr != nil {
		op.finishError(execErr, errorTypeDatabaseExec)
		return execErr
	}

	if rowsAffected == 0 {
		op.finishNotFound()
		return docstore.ErrDocumentNotFound
	}

	op.finishSuccess(0)

	return nil
}

// execute runs a write statement and returns the number of affected rows.
func (s *DocumentStore) execute(ctx context.Context, sqlQuery, operation string, failure error) (int64, error) {
	start := time.Now()
	result, execErr := s.db.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, operation, time.Since(start))

	if execErr != nil {
		s.logError(ctx, logMsgDBExecFailed, execErr, logAttrOperation, operation, logAttrQuery, sqlQuery)
		return 0, errors.Join(failure, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr, logAttrOperation, operation)
		return 0, errors.Join(failure, docstore.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, nil
}

// scanDocument reads the single row of a load query.
func (s *DocumentStore) scanDocument(name string, rows adapters.DBRows) (docstore.Document, error) {
	if !rows.Next() {
		if iterErr := rows.Err(); iterErr != nil {
			return docstore.Document{}, errors.Join(docstore.ErrLoadingDocumentFailed, iterErr)
		}

		return docstore.Document{}, docstore.ErrDocumentNotFound
	}

	var content []byte
	var version int64
	var updatedAt time.Time

	if scanErr := rows.Scan(&content, &version, &updatedAt); scanErr != nil {
		return docstore.Document{}, errors.Join(docstore.ErrLoadingDocumentFailed, docstore.ErrScanningDBRowFailed, scanErr)
	}

	doc, buildErr := docstore.BuildDocument(name, content, uint64(version), updatedAt.UTC()) //nolint:gosec // versions are never negative
	if buildErr != nil {
		return docstore.Document{}, errors.Join(docstore.ErrLoadingDocumentFailed, buildErr)
	}

	return doc, nil
}

// closeRows closes database rows and logs any errors.
func (s *DocumentStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (s *DocumentStore) buildSelectQuery(name string) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.tableName).
		Select(colContent, colVersion, colUpdatedAt).
		Where(goqu.C(colName).Eq(name))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *DocumentStore) buildInsertQuery(next docstore.Document) (sqlQueryString, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.tableName).
		Rows(goqu.Record{
			colName:      next.Name,
			colContent:   goqu.L(castJsonb, string(next.Content)),
			colVersion:   next.Version,
			colUpdatedAt: next.UpdatedAt,
		}).
		OnConflict(goqu.DoNothing())

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *DocumentStore) buildUpdateQuery(next docstore.Document, expectedVersion uint64) (sqlQueryString, error) {
	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.tableName).
		Set(goqu.Record{
			colContent:   goqu.L(castJsonb, string(next.Content)),
			colVersion:   next.Version,
			colUpdatedAt: next.UpdatedAt,
		}).
		Where(
			goqu.C(colName).Eq(next.Name),
			goqu.C(colVersion).Eq(expectedVersion),
		)

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *DocumentStore) buildDeleteQuery(name string) (sqlQueryString, error) {
	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(s.tableName).
		Where(goqu.C(colName).Eq(name))

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}
