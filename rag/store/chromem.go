package store

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	"github.com/smallnest/docrag/rag"
)

const chromemCollection = "book_chunks"

// ChromemStore keeps chunks in an embedded chromem-go database, optionally
// persisted to a directory.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

var _ rag.VectorStore = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) a persistent chromem database at dir.
// An empty dir keeps everything in memory.
func NewChromemStore(dir string) (*ChromemStore, error) {
	var db *chromem.DB
	if dir == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	c, err := db.GetOrCreateCollection(chromemCollection, map[string]string{"hnsw:space": "cosine"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	return &ChromemStore{db: db, collection: c}, nil
}

// Add upserts chunks with their embeddings.
func (s *ChromemStore) Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and embeddings must have same length")
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	metadatas := make([]map[string]string, len(chunks))
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		metadatas[i] = c.Metadata()
		contents[i] = c.Text
	}

	if err := s.collection.Add(ctx, ids, vectors, metadatas, contents); err != nil {
		return fmt.Errorf("failed to add chunks: %w", err)
	}
	return nil
}

// Search returns at most k chunks matching filter, most similar first.
func (s *ChromemStore) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]rag.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	// chromem rejects nResults larger than the collection
	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}
	res, err := s.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]rag.SearchResult, 0, len(res))
	for _, r := range res {
		results = append(results, rag.SearchResult{
			Chunk: rag.Chunk{ID: r.ID, ContentUnit: rag.UnitFromMetadata(r.Content, r.Metadata)},
			Score: float64(r.Similarity),
		})
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op; persistent databases write through on every Add.
func (s *ChromemStore) Close() error {
	return nil
}
