// Package store keeps the catalog of ingested documents.
//
// The catalog records what was ingested, when, and whether ingestion
// finished. Chunks and triples live in the rag/store backends; the catalog only
// tracks document metadata so a CLI or HTTP client can list what is available
// to ask questions about.
//
// Backends live in subpackages:
//   - memory: process-local map, used by tests and memory:// URLs
//   - sqlite: file-based storage via mattn/go-sqlite3
//   - postgres: shared storage via jackc/pgx
//   - redis: JSON records and a sorted-set index via go-redis
//
// The backend subpackage opens a catalog from a URL:
//
//	catalog, err := backend.Open(ctx, "sqlite://docrag.db")
//	if err != nil {
//	    return err
//	}
//	defer catalog.Close()
//
//	err = catalog.Put(ctx, &store.Document{ID: id, FileName: "book.pdf", Status: store.StatusProcessing})
package store
