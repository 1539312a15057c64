package retriever

import (
	"context"
	"fmt"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
)

// DefaultBatchSize is the number of chunks embedded and written per store call.
const DefaultBatchSize = 100

// VectorIndex embeds chunks and queries with one embedder and keeps them in a
// vector store.
type VectorIndex struct {
	store     rag.VectorStore
	embedder  rag.Embedder
	batchSize int
	logger    log.Logger
}

// Option configures the VectorIndex
type Option func(*VectorIndex)

// WithBatchSize sets how many chunks are embedded per call
func WithBatchSize(n int) Option {
	return func(v *VectorIndex) {
		if n > 0 {
			v.batchSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(v *VectorIndex) {
		v.logger = logger
	}
}

// NewVectorIndex creates a new vector index
func NewVectorIndex(store rag.VectorStore, embedder rag.Embedder, opts ...Option) *VectorIndex {
	v := &VectorIndex{
		store:     store,
		embedder:  embedder,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = log.OrDefault(v.logger)
	return v
}

// AddChunks embeds and stores chunks in batches. Chunks already written stay
// written when a later batch fails.
func (v *VectorIndex) AddChunks(ctx context.Context, chunks []rag.Chunk) error {
	for start := 0; start < len(chunks); start += v.batchSize {
		end := min(start+v.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := v.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		if err := v.store.Add(ctx, batch, vectors); err != nil {
			return fmt.Errorf("failed to store chunks %d-%d: %w", start, end-1, err)
		}
		v.logger.Debug("indexed chunks %d-%d", start, end-1)
	}
	return nil
}

// SimilaritySearch returns the k chunks closest to query. A non-empty docID
// restricts the search to that document.
func (v *VectorIndex) SimilaritySearch(ctx context.Context, query string, k int, docID string) ([]rag.SearchResult, error) {
	vector, err := v.embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter map[string]string
	if docID != "" {
		filter = map[string]string{rag.MetaDocumentID: docID}
	}

	results, err := v.store.Search(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed chunks.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	return v.store.Count(ctx)
}
