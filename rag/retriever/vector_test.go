package retriever

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
	"github.com/smallnest/docrag/rag/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	*store.InMemoryVectorStore
	batches []int
	filters []map[string]string
	failAt  int
}

func (r *recordingStore) Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	r.batches = append(r.batches, len(chunks))
	if r.failAt > 0 && len(r.batches) == r.failAt {
		return errors.New("disk full")
	}
	return r.InMemoryVectorStore.Add(ctx, chunks, vectors)
}

func (r *recordingStore) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]rag.SearchResult, error) {
	r.filters = append(r.filters, filter)
	return r.InMemoryVectorStore.Search(ctx, vector, k, filter)
}

func makeChunks(n int, docID string) []rag.Chunk {
	chunks := make([]rag.Chunk, n)
	for i := range chunks {
		chunks[i] = rag.Chunk{
			ID: fmt.Sprintf("%s-%d", docID, i),
			ContentUnit: rag.ContentUnit{
				Text:       fmt.Sprintf("chunk number %d of %s", i, docID),
				Page:       i + 1,
				DocumentID: docID,
				Kind:       rag.KindText,
			},
		}
	}
	return chunks
}

func TestVectorIndex_AddChunks(t *testing.T) {
	ctx := context.Background()
	rec := &recordingStore{InMemoryVectorStore: store.NewInMemoryVectorStore()}
	idx := NewVectorIndex(rec, store.NewHashEmbedder(64), WithLogger(&log.NoOpLogger{}))

	require.NoError(t, idx.AddChunks(ctx, makeChunks(250, "doc")))
	assert.Equal(t, []int{100, 100, 50}, rec.batches)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	require.NoError(t, idx.AddChunks(ctx, nil))
	assert.Len(t, rec.batches, 3)
}

func TestVectorIndex_AddChunksError(t *testing.T) {
	rec := &recordingStore{InMemoryVectorStore: store.NewInMemoryVectorStore(), failAt: 2}
	idx := NewVectorIndex(rec, store.NewHashEmbedder(64), WithBatchSize(10), WithLogger(&log.NoOpLogger{}))

	err := idx.AddChunks(context.Background(), makeChunks(25, "doc"))
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, []int{10, 10}, rec.batches)
}

func TestVectorIndex_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	rec := &recordingStore{InMemoryVectorStore: store.NewInMemoryVectorStore()}
	idx := NewVectorIndex(rec, store.NewHashEmbedder(256), WithLogger(&log.NoOpLogger{}))

	chunks := append(makeChunks(3, "a"), makeChunks(3, "b")...)
	chunks[4].Text = "the temple tank of Madurai"
	require.NoError(t, idx.AddChunks(ctx, chunks))

	results, err := idx.SimilaritySearch(ctx, "Madurai temple tank", 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b-1", results[0].Chunk.ID)
	assert.Nil(t, rec.filters[0])

	results, err = idx.SimilaritySearch(ctx, "Madurai temple tank", 8, "a")
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "a", r.Chunk.DocumentID)
	}
	assert.Equal(t, map[string]string{rag.MetaDocumentID: "a"}, rec.filters[1])
}
