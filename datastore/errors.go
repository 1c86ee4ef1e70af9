package datastore

import "errors"

var (
	ErrNilStore           = errors.New("document store must not be nil")
	ErrEmptyEntryKey      = errors.New("empty entry key supplied")
	ErrInvalidEntryJSON   = errors.New("entry value is not valid json")
	ErrDocumentNotAnIndex = errors.New("document content is not a json object")
	ErrEntryNotFound      = errors.New("entry not found")
)
