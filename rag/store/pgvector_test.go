package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/pgvector/pgvector-go"
	"github.com/smallnest/docrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGVectorStore_InitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPGVectorStoreWithPool(mock, "", 3)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS book_chunks")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, NewPGVectorStoreWithPool(mock, "t", 0).InitSchema(context.Background()))
}

func TestPGVectorStore_Add(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPGVectorStoreWithPool(mock, "chunks", 3)
	c1 := chunk("c1", "doc", "first", 1)
	c2 := chunk("c2", "doc", "second", 2)
	meta1, _ := json.Marshal(c1.Metadata())
	meta2, _ := json.Marshal(c2.Metadata())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunks (id, doc_id, content, metadata, embedding)")).
		WithArgs(
			"c1", "doc", "first", meta1, pgvector.NewVector([]float32{1, 0, 0}),
			"c2", "doc", "second", meta2, pgvector.NewVector([]float32{0, 1, 0}),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	err = s.Add(context.Background(), []rag.Chunk{c1, c2}, [][]float32{{1, 0, 0}, {0, 1, 0}})
	assert.NoError(t, err)

	// empty input issues no statement
	assert.NoError(t, s.Add(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_AddError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPGVectorStoreWithPool(mock, "chunks", 3)
	mock.ExpectExec("INSERT INTO chunks").
		WillReturnError(errors.New("connection reset"))

	err = s.Add(context.Background(), []rag.Chunk{chunk("c1", "doc", "x", 1)}, [][]float32{{1, 0, 0}})
	assert.ErrorContains(t, err, "connection reset")
}

func TestPGVectorStore_Search(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPGVectorStoreWithPool(mock, "chunks", 3)
	filter := map[string]string{rag.MetaDocumentID: "doc"}
	filterJSON, _ := json.Marshal(filter)
	meta, _ := json.Marshal(map[string]string{
		rag.MetaSource:     "book.pdf",
		rag.MetaPage:       "7",
		rag.MetaDocumentID: "doc",
		rag.MetaKind:       "image",
		rag.MetaImagePath:  "static/images/doc_p7_i0.png",
	})

	rows := pgxmock.NewRows([]string{"id", "content", "metadata", "score"}).
		AddRow("c7", "Image Description: a chart", meta, 0.87)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, metadata, 1 - (embedding <=> $1) AS score")).
		WithArgs(pgvector.NewVector([]float32{1, 0, 0}), filterJSON, 8).
		WillReturnRows(rows)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 8, filter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	got := results[0]
	assert.Equal(t, "c7", got.Chunk.ID)
	assert.Equal(t, 7, got.Chunk.Page)
	assert.Equal(t, rag.KindImage, got.Chunk.Kind)
	assert.Equal(t, "static/images/doc_p7_i0.png", got.Chunk.ImagePath)
	assert.InDelta(t, 0.87, got.Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_Count(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPGVectorStoreWithPool(mock, "chunks", 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM chunks")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
