package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/docstore"
)

const (
	logMsgRetryingWrite   = "retrying index write after concurrency conflict"
	logMsgRetriesExceeded = "index write gave up after concurrency conflicts"
	logAttrDocument       = "document"
	logAttrAttempt        = "attempt"
	logAttrDelayMS        = "delay_ms"
	logAttrError          = "error"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Entries is the decoded content of an index document.
type Entries = map[string]json.RawMessage

// edit changes the entries of one index document in place.
type edit func(entries Entries) error

// IndexStore reads and writes index documents through one serializing proxy per document name.
type IndexStore struct {
	store        docstore.Store
	registry     *docproxy.Registry[docstore.Document]
	proxyOptions []docproxy.Option
	retry        retryConfig
	logger       Logger
}

// NewIndexStore creates an IndexStore on top of store.
func NewIndexStore(store docstore.Store, options ...Option) (*IndexStore, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	s := &IndexStore{
		store: store,
		retry: defaultRetryConfig(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	registry, err := docproxy.NewRegistry[docstore.Document](s.fetcherFor, s.proxyOptions...)
	if err != nil {
		return nil, err
	}
	s.registry = registry

	return s, nil
}

// fetcherFor loads the authoritative document from the primary database.
// A document that was never stored is an empty index.
func (s *IndexStore) fetcherFor(name string) docproxy.Fetcher[docstore.Document] {
	return func(ctx context.Context) (docstore.Document, error) {
		return s.load(ctx, name)
	}
}

func (s *IndexStore) load(ctx context.Context, name string) (docstore.Document, error) {
	doc, err := s.store.Load(docstore.WithStrongConsistency(ctx), name)
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		return docstore.NewDocument(name)
	}

	return doc, err
}

// Entries returns all entries of the index document name.
func (s *IndexStore) Entries(ctx context.Context, name string) (Entries, error) {
	doc, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	return decodeEntries(doc.Content)
}

// Get returns the value stored under key, or ErrEntryNotFound.
func (s *IndexStore) Get(ctx context.Context, name, key string) (json.RawMessage, error) {
	if key == "" {
		return nil, ErrEmptyEntryKey
	}

	entries, err := s.Entries(ctx, name)
	if err != nil {
		return nil, err
	}

	value, ok := entries[key]
	if !ok {
		return nil, ErrEntryNotFound
	}

	return value, nil
}

// Has reports whether the index document name contains key.
func (s *IndexStore) Has(ctx context.Context, name, key string) (bool, error) {
	_, err := s.Get(ctx, name, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrEntryNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Set stores value under key, replacing any previous value.
func (s *IndexStore) Set(ctx context.Context, name, key string, value json.RawMessage) error {
	if err := validateEntry(key, value); err != nil {
		return err
	}

	return s.change(ctx, name, func(entries Entries) error {
		entries[key] = value
		return nil
	})
}

// Merge stores every entry of updates, leaving other entries untouched, as one write.
func (s *IndexStore) Merge(ctx context.Context, name string, updates Entries) error {
	for key, value := range updates {
		if err := validateEntry(key, value); err != nil {
			return err
		}
	}

	return s.change(ctx, name, func(entries Entries) error {
		for key, value := range updates {
			entries[key] = value
		}

		return nil
	})
}

// Remove deletes key, or returns ErrEntryNotFound.
func (s *IndexStore) Remove(ctx context.Context, name, key string) error {
	if key == "" {
		return ErrEmptyEntryKey
	}

	return s.change(ctx, name, func(entries Entries) error {
		if _, ok := entries[key]; !ok {
			return ErrEntryNotFound
		}

		delete(entries, key)

		return nil
	})
}

// Names returns the index documents this IndexStore has accessed so far.
func (s *IndexStore) Names() []string {
	return s.registry.Names()
}

// change runs apply as one serialized mutation of the document name.
//
// The mutation saves with the version of the value it receives. When another process saved in
// between, the document is reloaded and apply runs again against the fresh content, with
// exponential backoff between attempts.
func (s *IndexStore) change(ctx context.Context, name string, apply edit) error {
	return s.registry.Change(ctx, name, func(ctx context.Context, current docstore.Document) (docstore.Document, error) {
		base := current
		stale := false
		var saved docstore.Document

		attemptErr := retryWithExponentialBackoff(ctx, s.retry, func(ctx context.Context) error {
			if stale {
				fresh, loadErr := s.load(ctx, name)
				if loadErr != nil {
					return loadErr
				}
				base = fresh
			}

			next, applyErr := applyEdit(base, apply)
			if applyErr != nil {
				return applyErr
			}

			result, saveErr := s.store.Save(ctx, next)
			if saveErr != nil {
				stale = errors.Is(saveErr, docstore.ErrConcurrencyConflict)
				return saveErr
			}

			saved = result

			return nil
		}, func(attempt int, delay time.Duration, lastErr error) {
			s.logInfo(logMsgRetryingWrite,
				logAttrDocument, name,
				logAttrAttempt, attempt+1,
				logAttrDelayMS, delay.Milliseconds(),
				logAttrError, lastErr.Error())
		})

		if attemptErr != nil {
			if isRetryableError(attemptErr) {
				s.logWarn(logMsgRetriesExceeded, logAttrDocument, name, logAttrAttempt, s.retry.maxAttempts)
			}

			return current, attemptErr
		}

		return saved, nil
	})
}

// applyEdit decodes the entries of doc, applies apply, and returns doc with the re-encoded content.
func applyEdit(doc docstore.Document, apply edit) (docstore.Document, error) {
	entries, err := decodeEntries(doc.Content)
	if err != nil {
		return docstore.Document{}, err
	}

	if applyErr := apply(entries); applyErr != nil {
		return docstore.Document{}, applyErr
	}

	content, encodeErr := codec.Marshal(entries)
	if encodeErr != nil {
		return docstore.Document{}, encodeErr
	}

	return doc.WithContent(content)
}

// decodeEntries decodes index content; null counts as an empty index.
func decodeEntries(content json.RawMessage) (Entries, error) {
	var entries Entries
	if err := codec.Unmarshal(content, &entries); err != nil {
		return nil, errors.Join(ErrDocumentNotAnIndex, err)
	}

	if entries == nil {
		entries = make(Entries)
	}

	return entries, nil
}

func validateEntry(key string, value json.RawMessage) error {
	if key == "" {
		return ErrEmptyEntryKey
	}

	if !codec.Valid(value) {
		return ErrInvalidEntryJSON
	}

	return nil
}

func (s *IndexStore) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *IndexStore) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
