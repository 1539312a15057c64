package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/docrag/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCatalog implements store.Catalog using PostgreSQL
type PostgresCatalog struct {
	pool      DBPool
	tableName string
	now       func() time.Time
}

var _ store.Catalog = (*PostgresCatalog)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "documents"
}

// NewPostgresCatalog creates a new Postgres catalog
func NewPostgresCatalog(ctx context.Context, opts PostgresOptions) (*PostgresCatalog, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPostgresCatalogWithPool(pool, opts.TableName), nil
}

// NewPostgresCatalogWithPool creates a new Postgres catalog with an existing pool
// Useful for testing with mocks
func NewPostgresCatalogWithPool(pool DBPool, tableName string) *PostgresCatalog {
	if tableName == "" {
		tableName = "documents"
	}
	return &PostgresCatalog{
		pool:      pool,
		tableName: tableName,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresCatalog) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			pages INTEGER NOT NULL DEFAULT 0,
			deep BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at);`,
		s.tableName, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresCatalog) Close() error {
	s.pool.Close()
	return nil
}

// Put inserts or replaces a document. The stored created_at wins over doc's.
func (s *PostgresCatalog) Put(ctx context.Context, doc *store.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	store.Stamp(doc, time.Time{}, s.now())

	query := fmt.Sprintf(`INSERT INTO %s (id, file_name, pages, deep, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			pages = EXCLUDED.pages,
			deep = EXCLUDED.deep,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`, s.tableName)

	var created time.Time
	err := s.pool.QueryRow(ctx, query,
		doc.ID,
		doc.FileName,
		doc.Pages,
		doc.Deep,
		string(doc.Status),
		doc.CreatedAt,
		doc.UpdatedAt,
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	doc.CreatedAt = created
	return nil
}

// Get retrieves a document by ID
func (s *PostgresCatalog) Get(ctx context.Context, id string) (*store.Document, error) {
	query := fmt.Sprintf(`SELECT id, file_name, pages, deep, status, created_at, updated_at FROM %s WHERE id = $1`, s.tableName)

	doc, err := scanDocument(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// List returns all documents, oldest first
func (s *PostgresCatalog) List(ctx context.Context) ([]*store.Document, error) {
	query := fmt.Sprintf(`SELECT id, file_name, pages, deep, status, created_at, updated_at FROM %s ORDER BY created_at ASC, id ASC`, s.tableName)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*store.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}

	return docs, nil
}

// SetStatus updates the status of an existing document
func (s *PostgresCatalog) SetStatus(ctx context.Context, id string, status store.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	query := fmt.Sprintf("UPDATE %s SET status = $1, updated_at = $2 WHERE id = $3", s.tableName)
	tag, err := s.pool.Exec(ctx, query, string(status), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

func scanDocument(row pgx.Row) (*store.Document, error) {
	var doc store.Document
	var status string
	err := row.Scan(
		&doc.ID,
		&doc.FileName,
		&doc.Pages,
		&doc.Deep,
		&status,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = store.Status(status)
	return &doc, nil
}
