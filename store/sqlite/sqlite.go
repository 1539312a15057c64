package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/docrag/store"
)

// SqliteCatalog implements store.Catalog using SQLite
type SqliteCatalog struct {
	db        *sql.DB
	tableName string
	now       func() time.Time
}

var _ store.Catalog = (*SqliteCatalog)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "documents"
}

// NewSqliteCatalog opens the database and creates the table if needed
func NewSqliteCatalog(opts SqliteOptions) (*SqliteCatalog, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	if opts.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "documents"
	}

	s := &SqliteCatalog{
		db:        db,
		tableName: tableName,
		now:       func() time.Time { return time.Now().UTC() },
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteCatalog) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			pages INTEGER NOT NULL DEFAULT 0,
			deep BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteCatalog) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a document
func (s *SqliteCatalog) Put(ctx context.Context, doc *store.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var created time.Time
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT created_at FROM %s WHERE id = ?", s.tableName), doc.ID,
	).Scan(&created)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read document: %w", err)
	}
	store.Stamp(doc, created, s.now())

	query := fmt.Sprintf(`
		INSERT INTO %s (id, file_name, pages, deep, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			pages = excluded.pages,
			deep = excluded.deep,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, s.tableName)

	_, err = tx.ExecContext(ctx, query,
		doc.ID,
		doc.FileName,
		doc.Pages,
		doc.Deep,
		string(doc.Status),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a document by ID
func (s *SqliteCatalog) Get(ctx context.Context, id string) (*store.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, file_name, pages, deep, status, created_at, updated_at
		FROM %s
		WHERE id = ?
	`, s.tableName)

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// List returns all documents, oldest first
func (s *SqliteCatalog) List(ctx context.Context) ([]*store.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, file_name, pages, deep, status, created_at, updated_at
		FROM %s
		ORDER BY created_at ASC, id ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query)
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
func (s *SqliteCatalog) SetStatus(ctx context.Context, id string, status store.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	query := fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ? WHERE id = ?", s.tableName)
	res, err := s.db.ExecContext(ctx, query, string(status), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*store.Document, error) {
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
