package pebbleengine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	jsoniter "github.com/json-iterator/go"

	"github.com/ceramicstudio/js-glaze-sub000/docstore"
)

const (
	keyPrefix                 = "doc/"
	logMsgDocumentSaved       = "document saved"
	logMsgDocumentDeleted     = "document deleted"
	logMsgConcurrencyConflict = "concurrency conflict detected"
	logMsgCloseValueFailed    = "failed to release pebble value"
	logAttrDocument           = "document"
	logAttrVersion            = "version"
	logAttrExpectedVersion    = "expected_version"
	logAttrError              = "error"
)

var (
	ErrEmptyDirectory       = errors.New("empty data directory supplied")
	ErrOpeningStoreFailed   = errors.New("opening the pebble store failed")
	ErrDecodingRecordFailed = errors.New("decoding the stored document record failed")
	ErrEncodingRecordFailed = errors.New("encoding the document record failed")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// record is the stored value of one document.
type record struct {
	Version   uint64          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Content   json.RawMessage `json:"content"`
}

// Logger is the plain logger contract shared with docstore.
type Logger = docstore.Logger

// Option defines a functional option for configuring DocumentStore.
type Option func(*DocumentStore) error

// WithLogger sets the logger for the DocumentStore.
// Debug level: saves and deletes; Info level: concurrency conflicts; Warn level: resource cleanup failures.
func WithLogger(logger Logger) Option {
	return func(s *DocumentStore) error {
		s.logger = logger
		return nil
	}
}

// WithClock replaces the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *DocumentStore) error {
		s.now = now
		return nil
	}
}

// DocumentStore is a docstore.Store backed by pebble.
type DocumentStore struct {
	db     *pebble.DB
	mu     sync.Mutex // serializes the read-compare-write of Save and Delete
	now    func() time.Time
	logger Logger
}

// Open opens, or creates, a store in dir.
func Open(dir string, options ...Option) (*DocumentStore, error) {
	if dir == "" {
		return nil, ErrEmptyDirectory
	}

	return open(dir, &pebble.Options{}, options...)
}

// OpenInMemory opens a store that lives in memory only.
func OpenInMemory(options ...Option) (*DocumentStore, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()}, options...)
}

func open(dir string, pebbleOptions *pebble.Options, options ...Option) (*DocumentStore, error) {
	s := &DocumentStore{now: time.Now}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	db, err := pebble.Open(dir, pebbleOptions)
	if err != nil {
		return nil, errors.Join(ErrOpeningStoreFailed, err)
	}
	s.db = db

	return s, nil
}

// Close flushes and closes the underlying pebble database.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

// Metrics returns a snapshot of the storage engine's internal metrics.
func (s *DocumentStore) Metrics() *pebble.Metrics {
	return s.db.Metrics()
}

// Load returns the stored document with the given name, or docstore.ErrDocumentNotFound.
func (s *DocumentStore) Load(ctx context.Context, name string) (docstore.Document, error) {
	if name == "" {
		return docstore.Document{}, docstore.ErrEmptyDocumentName
	}

	if err := ctx.Err(); err != nil {
		return docstore.Document{}, errors.Join(docstore.ErrLoadingDocumentFailed, err)
	}

	rec, found, err := s.read(name)
	if err != nil {
		return docstore.Document{}, errors.Join(docstore.ErrLoadingDocumentFailed, err)
	}

	if !found {
		return docstore.Document{}, docstore.ErrDocumentNotFound
	}

	doc, buildErr := docstore.BuildDocument(name, rec.Content, rec.Version, rec.UpdatedAt)
	if buildErr != nil {
		return docstore.Document{}, errors.Join(docstore.ErrLoadingDocumentFailed, buildErr)
	}

	return doc, nil
}

// Save stores doc if its version matches the stored one and returns it with the next version.
func (s *DocumentStore) Save(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	next, err := docstore.BuildDocument(doc.Name, doc.Content, doc.Version+1, s.now().UTC())
	if err != nil {
		return docstore.Document{}, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return docstore.Document{}, errors.Join(docstore.ErrSavingDocumentFailed, ctxErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, found, readErr := s.read(doc.Name)
	if readErr != nil {
		return docstore.Document{}, errors.Join(docstore.ErrSavingDocumentFailed, readErr)
	}

	storedVersion := uint64(0)
	if found {
		storedVersion = current.Version
	}

	if storedVersion != doc.Version {
		s.logInfo(logMsgConcurrencyConflict, logAttrDocument, doc.Name, logAttrExpectedVersion, doc.Version, logAttrVersion, storedVersion)
		return docstore.Document{}, docstore.ErrConcurrencyConflict
	}

	value, encodeErr := codec.Marshal(record{Version: next.Version, UpdatedAt: next.UpdatedAt, Content: next.Content})
	if encodeErr != nil {
		return docstore.Document{}, errors.Join(docstore.ErrSavingDocumentFailed, ErrEncodingRecordFailed, encodeErr)
	}

	if setErr := s.db.Set(key(doc.Name), value, pebble.Sync); setErr != nil {
		return docstore.Document{}, errors.Join(docstore.ErrSavingDocumentFailed, setErr)
	}

	s.logDebug(logMsgDocumentSaved, logAttrDocument, doc.Name, logAttrVersion, next.Version)

	return next, nil
}

// Delete removes the document with the given name, or returns docstore.ErrDocumentNotFound.
func (s *DocumentStore) Delete(ctx context.Context, name string) error {
	if name == "" {
		return docstore.ErrEmptyDocumentName
	}

	if err := ctx.Err(); err != nil {
		return errors.Join(docstore.ErrDeletingDocumentFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, found, readErr := s.read(name)
	if readErr != nil {
		return errors.Join(docstore.ErrDeletingDocumentFailed, readErr)
	}

	if !found {
		return docstore.ErrDocumentNotFound
	}

	if deleteErr := s.db.Delete(key(name), pebble.Sync); deleteErr != nil {
		return errors.Join(docstore.ErrDeletingDocumentFailed, deleteErr)
	}

	s.logDebug(logMsgDocumentDeleted, logAttrDocument, name)

	return nil
}

// read decodes the stored record of name; found is false when there is none.
func (s *DocumentStore) read(name string) (rec record, found bool, err error) {
	value, closer, getErr := s.db.Get(key(name))
	if errors.Is(getErr, pebble.ErrNotFound) {
		return record{}, false, nil
	}

	if getErr != nil {
		return record{}, false, getErr
	}

	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			s.logWarn(logMsgCloseValueFailed, logAttrError, closeErr.Error())
		}
	}()

	if decodeErr := codec.Unmarshal(value, &rec); decodeErr != nil {
		return record{}, false, errors.Join(ErrDecodingRecordFailed, decodeErr)
	}

	// value is only valid until closer is closed
	rec.Content = append(json.RawMessage(nil), rec.Content...)

	return rec, true, nil
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

func (s *DocumentStore) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *DocumentStore) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *DocumentStore) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
