package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document is not in the catalog.
var ErrNotFound = errors.New("document not found")

// Status is the ingestion state of a catalogued document.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// Document is a catalog record for one ingested file.
type Document struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	Pages     int       `json:"pages"`
	Deep      bool      `json:"deep"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Catalog defines the interface for document catalog persistence
type Catalog interface {
	// Put inserts or replaces a document. CreatedAt of an existing record is kept.
	Put(ctx context.Context, doc *Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*Document, error)

	// List returns all documents, oldest first
	List(ctx context.Context) ([]*Document, error)

	// SetStatus updates the status of an existing document
	SetStatus(ctx context.Context, id string, status Status) error

	// Close releases the backend
	Close() error
}

// Stamp fills the timestamps of doc for a write at now. created is the
// CreatedAt of the stored record, zero when there is none.
func Stamp(doc *Document, created, now time.Time) {
	switch {
	case !created.IsZero():
		doc.CreatedAt = created
	case doc.CreatedAt.IsZero():
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
}
