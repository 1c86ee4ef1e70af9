package docstore

import "errors"

var (
	ErrEmptyDocumentName         = errors.New("empty document name supplied")
	ErrInvalidContentJSON        = errors.New("document content is not valid json")
	ErrDocumentNotFound          = errors.New("document not found")
	ErrConcurrencyConflict       = errors.New("concurrency conflict, the document was changed by someone else")
	ErrLoadingDocumentFailed     = errors.New("loading the document failed")
	ErrSavingDocumentFailed      = errors.New("saving the document failed")
	ErrDeletingDocumentFailed    = errors.New("deleting the document failed")
	ErrNilDatabaseConnection     = errors.New("database connection must not be nil")
	ErrEmptyTableName            = errors.New("empty table name supplied")
	ErrBuildingQueryFailed       = errors.New("building the sql query failed")
	ErrScanningDBRowFailed       = errors.New("scanning the database row failed")
	ErrGettingRowsAffectedFailed = errors.New("getting the rows affected count failed")
)
