package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smallnest/docrag/store"
)

// MemoryCatalog keeps documents in a process-local map.
type MemoryCatalog struct {
	mu   sync.RWMutex
	docs map[string]store.Document
	now  func() time.Time
}

var _ store.Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates an empty in-memory catalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		docs: make(map[string]store.Document),
		now:  time.Now,
	}
}

// Put inserts or replaces a document
func (m *MemoryCatalog) Put(ctx context.Context, doc *store.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var created time.Time
	if old, ok := m.docs[doc.ID]; ok {
		created = old.CreatedAt
	}
	store.Stamp(doc, created, m.now())
	m.docs[doc.ID] = *doc
	return nil
}

// Get retrieves a document by ID
func (m *MemoryCatalog) Get(ctx context.Context, id string) (*store.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return &doc, nil
}

// List returns all documents, oldest first
func (m *MemoryCatalog) List(ctx context.Context) ([]*store.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]*store.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		doc := doc
		docs = append(docs, &doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// SetStatus updates the status of an existing document
func (m *MemoryCatalog) SetStatus(ctx context.Context, id string, status store.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	doc.Status = status
	doc.UpdatedAt = m.now()
	m.docs[id] = doc
	return nil
}

// Close is a no-op
func (m *MemoryCatalog) Close() error {
	return nil
}
