package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/smallnest/docrag/rag"
)

// InMemoryVectorStore is a simple in-memory vector store implementation.
// Chunks are keyed by ID, so adding a chunk again replaces it.
type InMemoryVectorStore struct {
	mu         sync.RWMutex
	chunks     []rag.Chunk
	embeddings [][]float32
	index      map[string]int
}

var _ rag.VectorStore = (*InMemoryVectorStore)(nil)

// NewInMemoryVectorStore creates a new InMemoryVectorStore
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{index: make(map[string]int)}
}

// Add upserts chunks with their embeddings.
func (s *InMemoryVectorStore) Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and embeddings must have same length")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range chunks {
		if pos, ok := s.index[c.ID]; ok && c.ID != "" {
			s.chunks[pos] = c
			s.embeddings[pos] = vectors[i]
			continue
		}
		s.index[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.embeddings = append(s.embeddings, vectors[i])
	}
	return nil
}

// Search returns the k chunks most similar to vector among those matching filter.
func (s *InMemoryVectorStore) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]rag.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]rag.SearchResult, 0, len(s.chunks))
	for i, c := range s.chunks {
		if !matchesFilter(c, filter) {
			continue
		}
		results = append(results, rag.SearchResult{
			Chunk: c,
			Score: cosineSimilarity32(vector, s.embeddings[i]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Close clears the store
func (s *InMemoryVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.embeddings = nil
	s.index = make(map[string]int)
	return nil
}

// matchesFilter checks if a chunk's metadata matches every filter entry
func matchesFilter(c rag.Chunk, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	meta := c.Metadata()
	for key, value := range filter {
		if meta[key] != value {
			return false
		}
	}
	return true
}

// cosineSimilarity32 calculates cosine similarity between two float32 vectors
func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
