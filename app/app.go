// Package app ties the ingestion pipeline, the question answering engine, the
// knowledge graph and the document catalog together behind one value shared by
// the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
	"github.com/smallnest/docrag/rag/engine"
	"github.com/smallnest/docrag/rag/ingest"
	"github.com/smallnest/docrag/store"
)

// Ingester indexes a document and returns its id.
type Ingester interface {
	Ingest(ctx context.Context, data []byte, fileName, docID string, deep bool, progress ingest.ProgressFunc) (string, error)
}

// Asker answers a question within a session.
type Asker interface {
	Ask(ctx context.Context, session *engine.Session, question, docID, language string) engine.Answer
}

// FactStore previews and probes the knowledge graph.
type FactStore interface {
	Sample(ctx context.Context, docID string) []rag.Triple
	Health(ctx context.Context) error
}

// Counter reports the number of indexed chunks.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Components are the collaborators an App is assembled from.
type Components struct {
	Ingester Ingester
	Asker    Asker
	Facts    FactStore
	Vectors  Counter
	Catalog  store.Catalog
	// StaticDir holds extracted images served under /static.
	StaticDir string
	// Language forces the answer language when a request names none.
	Language string
	Closers  []io.Closer
	Logger   log.Logger
}

// App is the docrag application.
type App struct {
	ingester  Ingester
	asker     Asker
	facts     FactStore
	vectors   Counter
	catalog   store.Catalog
	staticDir string
	language  string
	closers   []io.Closer
	logger    log.Logger
}

// New assembles an App. Facts may be nil when no graph is configured.
func New(c Components) *App {
	return &App{
		ingester:  c.Ingester,
		asker:     c.Asker,
		facts:     c.Facts,
		vectors:   c.Vectors,
		catalog:   c.Catalog,
		staticDir: c.StaticDir,
		language:  c.Language,
		closers:   c.Closers,
		logger:    log.OrDefault(c.Logger),
	}
}

// StaticDir returns the directory extracted images are written under.
func (a *App) StaticDir() string {
	return a.staticDir
}

// Ingest indexes a document and records it in the catalog. The record is
// marked processing first, then ready with its page count, or failed.
func (a *App) Ingest(ctx context.Context, data []byte, fileName, docID string, deep bool, progress ingest.ProgressFunc) (*store.Document, error) {
	if docID == "" {
		docID = uuid.NewString()
	}

	doc := &store.Document{ID: docID, FileName: fileName, Deep: deep, Status: store.StatusProcessing}
	if err := a.catalog.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("record document: %w", err)
	}

	pages := 0
	_, err := a.ingester.Ingest(ctx, data, fileName, docID, deep, func(current, total int) {
		pages = total
		if progress != nil {
			progress(current, total)
		}
	})
	if err != nil {
		// the caller's context may be done; the status write must still land
		if serr := a.catalog.SetStatus(context.WithoutCancel(ctx), docID, store.StatusFailed); serr != nil {
			a.logger.Error("failed to mark %s as failed: %v", docID, serr)
		}
		doc.Status = store.StatusFailed
		return doc, err
	}

	doc.Pages = pages
	doc.Status = store.StatusReady
	if err := a.catalog.Put(ctx, doc); err != nil {
		return doc, fmt.Errorf("record document: %w", err)
	}
	return doc, nil
}

// Ask answers question about docID (all documents when empty).
func (a *App) Ask(ctx context.Context, session *engine.Session, question, docID, language string) engine.Answer {
	if language == "" {
		language = a.language
	}
	return a.asker.Ask(ctx, session, question, docID, language)
}

// Facts returns a sample of knowledge graph facts for docID.
func (a *App) Facts(ctx context.Context, docID string) []rag.Triple {
	if a.facts == nil {
		return []rag.Triple{}
	}
	return a.facts.Sample(ctx, docID)
}

// Documents lists the catalog.
func (a *App) Documents(ctx context.Context) ([]*store.Document, error) {
	return a.catalog.List(ctx)
}

// Document returns one catalog record.
func (a *App) Document(ctx context.Context, id string) (*store.Document, error) {
	return a.catalog.Get(ctx, id)
}

// Health is the result of probing every backend.
type Health struct {
	OK           bool   `json:"ok"`
	Chunks       int    `json:"chunks"`
	Documents    int    `json:"documents"`
	VectorError  string `json:"vector_error,omitempty"`
	GraphError   string `json:"graph_error,omitempty"`
	CatalogError string `json:"catalog_error,omitempty"`
}

// Health probes the vector store, the graph and the catalog. An unreachable
// graph degrades answers but does not make the App unhealthy.
func (a *App) Health(ctx context.Context) Health {
	h := Health{OK: true}

	n, err := a.vectors.Count(ctx)
	if err != nil {
		h.OK = false
		h.VectorError = err.Error()
	}
	h.Chunks = n

	if a.facts == nil {
		h.GraphError = "not configured"
	} else if err := a.facts.Health(ctx); err != nil {
		h.GraphError = err.Error()
	}

	docs, err := a.catalog.List(ctx)
	if err != nil {
		h.OK = false
		h.CatalogError = err.Error()
	}
	h.Documents = len(docs)

	return h
}

// Close releases every backend, in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
