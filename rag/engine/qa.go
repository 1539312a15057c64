package engine

import (
	"context"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 8

// Retriever finds chunks similar to a query, optionally within one document.
type Retriever interface {
	SimilaritySearch(ctx context.Context, query string, k int, docID string) ([]rag.SearchResult, error)
}

// FactSource returns knowledge graph facts relevant to a query.
type FactSource interface {
	Query(ctx context.Context, query, docID string) []rag.Triple
}

// QAEngine answers questions about ingested documents within a session.
type QAEngine struct {
	retriever   Retriever
	facts       FactSource
	synthesizer *Synthesizer
	topK        int
	logger      log.Logger
}

// Option configures the QAEngine
type Option func(*QAEngine)

// WithTopK sets how many chunks are retrieved
func WithTopK(k int) Option {
	return func(e *QAEngine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(e *QAEngine) {
		e.logger = logger
	}
}

// NewQAEngine creates a QAEngine. facts may be nil to answer from chunks only.
func NewQAEngine(retriever Retriever, facts FactSource, synthesizer *Synthesizer, opts ...Option) *QAEngine {
	e := &QAEngine{
		retriever:   retriever,
		facts:       facts,
		synthesizer: synthesizer,
		topK:        DefaultTopK,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.OrDefault(e.logger)
	return e
}

// Ask answers question from docID's chunks and facts, and records the
// exchange in session. A nil session asks without history and records
// nothing.
func (e *QAEngine) Ask(ctx context.Context, session *Session, question, docID, language string) Answer {
	var chunks []rag.Chunk
	results, err := e.retriever.SimilaritySearch(ctx, question, e.topK, docID)
	if err != nil {
		e.logger.Warn("vector search failed: %v", err)
	}
	for _, r := range results {
		chunks = append(chunks, r.Chunk)
	}

	var facts []rag.Triple
	if e.facts != nil {
		facts = e.facts.Query(ctx, question, docID)
	}

	var history string
	if session != nil {
		history = session.History(DefaultHistoryTurns)
	}

	answer := e.synthesizer.Synthesize(ctx, AnswerRequest{
		Question: question,
		History:  history,
		Chunks:   chunks,
		Facts:    facts,
		Language: language,
	})

	if session != nil {
		session.Append(rag.RoleUser, question)
		session.Append(rag.RoleAssistant, answer.Text)
	}
	return answer
}
