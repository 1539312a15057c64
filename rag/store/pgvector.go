package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/smallnest/docrag/rag"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PGVectorStore stores chunk embeddings in PostgreSQL with the pgvector extension.
type PGVectorStore struct {
	pool      DBPool
	tableName string
	dimension int
}

var _ rag.VectorStore = (*PGVectorStore)(nil)

// PGVectorOptions configuration for the Postgres vector store
type PGVectorOptions struct {
	ConnString string
	TableName  string // Default "book_chunks"
	Dimension  int
}

// NewPGVectorStore connects to Postgres and creates the schema.
func NewPGVectorStore(ctx context.Context, opts PGVectorOptions) (*PGVectorStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := NewPGVectorStoreWithPool(pool, opts.TableName, opts.Dimension)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPGVectorStoreWithPool creates a store over an existing pool.
// Useful for testing with mocks
func NewPGVectorStoreWithPool(pool DBPool, tableName string, dimension int) *PGVectorStore {
	if tableName == "" {
		tableName = "book_chunks"
	}
	return &PGVectorStore{pool: pool, tableName: tableName, dimension: dimension}
}

// InitSchema creates the vector extension and the chunk table if missing.
func (s *PGVectorStore) InitSchema(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL,
			embedding vector(%d) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_doc_id ON %s (doc_id);
	`, s.tableName, s.dimension, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Add upserts chunks in a single statement.
func (s *PGVectorStore) Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and embeddings must have same length")
	}
	if len(chunks) == 0 {
		return nil
	}

	const cols = 5
	values := make([]string, 0, len(chunks))
	args := make([]any, 0, len(chunks)*cols)
	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata())
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		n := i * cols
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5))
		args = append(args, c.ID, c.DocumentID, c.Text, meta, pgvector.NewVector(vectors[i]))
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, content, metadata, embedding)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET
			doc_id = EXCLUDED.doc_id,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.tableName, strings.Join(values, ", "))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// Search orders chunks by cosine distance. Filter entries must all match the
// stored metadata.
func (s *PGVectorStore) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]rag.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if filter == nil {
		filter = map[string]string{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE metadata @> $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), filterJSON, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []rag.SearchResult
	for rows.Next() {
		var (
			id, content string
			metaJSON    []byte
			score       float64
		)
		if err := rows.Scan(&id, &content, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		meta := map[string]string{}
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		results = append(results, rag.SearchResult{
			Chunk: rag.Chunk{ID: id, ContentUnit: rag.UnitFromMetadata(content, meta)},
			Score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Close closes the connection pool
func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}
