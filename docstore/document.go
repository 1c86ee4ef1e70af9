package docstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// emptyContent is the content of a document that was never stored.
var emptyContent = json.RawMessage(`{}`)

// Document is the persisted form of one named JSON document.
//
// While its properties are exported, it should only be constructed with the supplied factory methods:
//   - NewDocument
//   - BuildDocument
type Document struct {
	Name      string
	Content   json.RawMessage
	Version   uint64
	UpdatedAt time.Time
}

// NewDocument returns a document that has not been stored yet, with empty object content.
func NewDocument(name string) (Document, error) {
	if name == "" {
		return Document{}, ErrEmptyDocumentName
	}

	return Document{
		Name:    name,
		Content: append(json.RawMessage(nil), emptyContent...),
	}, nil
}

// BuildDocument is a factory method for Document, used by backends to rebuild a stored document.
// Returns an error if name is empty or content is not valid JSON.
func BuildDocument(name string, content []byte, version uint64, updatedAt time.Time) (Document, error) {
	if name == "" {
		return Document{}, ErrEmptyDocumentName
	}

	if !jsoniter.ConfigFastest.Valid(content) {
		return Document{}, ErrInvalidContentJSON
	}

	return Document{
		Name:      name,
		Content:   append(json.RawMessage(nil), content...),
		Version:   version,
		UpdatedAt: updatedAt,
	}, nil
}

// WithContent returns a copy of the document carrying content, keeping name and version.
func (d Document) WithContent(content []byte) (Document, error) {
	if !jsoniter.ConfigFastest.Valid(content) {
		return Document{}, ErrInvalidContentJSON
	}

	d.Content = append(json.RawMessage(nil), content...)

	return d, nil
}

// IsNew reports whether the document has never been stored.
func (d Document) IsNew() bool {
	return d.Version == 0
}

// NewDocumentName generates a unique, time-ordered document name with the given prefix.
func NewDocumentName(prefix string) string {
	id := uuid.Must(uuid.NewV7())
	if prefix == "" {
		return id.String()
	}

	return prefix + "-" + id.String()
}
