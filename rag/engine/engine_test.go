package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	reply   string
	err     error
	calls   int
	systems []string
	users   []string
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	return f.reply, f.err
}

func textChunk(page int, text string) rag.Chunk {
	return rag.Chunk{ContentUnit: rag.ContentUnit{Text: text, Page: page, Kind: rag.KindText, DocumentID: "d"}}
}

func imageChunk(page int, path string) rag.Chunk {
	return rag.Chunk{ContentUnit: rag.ContentUnit{
		Text:       "Image Description: a diagram of the irrigation canals",
		Page:       page,
		Kind:       rag.KindImage,
		ImagePath:  path,
		DocumentID: "d",
	}}
}

var longChunk = textChunk(3, strings.Repeat("The Grand Anicut was built by Karikala Chola. ", 4))

func TestSynthesize_NoContext(t *testing.T) {
	for _, q := range []string{"", "What is photosynthesis?", "சூரியன் என்ன?"} {
		llm := &fakeLLM{reply: "should not be used"}
		a := NewSynthesizer(llm, &log.NoOpLogger{}).Synthesize(context.Background(), AnswerRequest{Question: q})
		assert.Equal(t, InsufficientAnswer, a.Text)
		assert.Equal(t, 0.0, a.Confidence)
		assert.Empty(t, a.ImagePaths)
		assert.Zero(t, llm.calls)
	}
}

func TestSynthesize_ShortContext(t *testing.T) {
	llm := &fakeLLM{reply: "x"}
	a := NewSynthesizer(llm, &log.NoOpLogger{}).Synthesize(context.Background(), AnswerRequest{
		Question: "Who?",
		Chunks:   []rag.Chunk{textChunk(1, "Hi")},
	})
	assert.Equal(t, UnrelatedAnswer, a.Text)
	assert.Equal(t, 0.1, a.Confidence)
	assert.Zero(t, llm.calls)
}

func TestSynthesize_ShortContextWithFacts(t *testing.T) {
	llm := &fakeLLM{reply: "Karikala Chola built it."}
	a := NewSynthesizer(llm, &log.NoOpLogger{}).Synthesize(context.Background(), AnswerRequest{
		Question: "Who built the Grand Anicut?",
		Facts:    []rag.Triple{{Subject: "Karikala Chola", Predicate: "built", Object: "Grand Anicut"}},
	})
	require.Equal(t, 1, llm.calls)
	assert.Equal(t, "Karikala Chola built it.", a.Text)
	assert.Contains(t, llm.users[0], "Knowledge graph facts:\nKarikala Chola | built | Grand Anicut")
	assert.Contains(t, llm.users[0], "Conversation history (may be empty):\n(no previous conversation)")
	assert.InDelta(t, 0.4, a.Confidence, 1e-9)
}

func TestSynthesize_Prompt(t *testing.T) {
	llm := &fakeLLM{reply: "  It was built by Karikala Chola.  "}
	a := NewSynthesizer(llm, &log.NoOpLogger{}).Synthesize(context.Background(), AnswerRequest{
		Question:  "Who built the Grand Anicut?",
		History:   "USER: hi\nASSISTANT: hello",
		Chunks:    []rag.Chunk{longChunk},
		FactsText: "Chola | ruled | Thanjavur",
		Language:  "Tamil",
	})

	assert.Equal(t, "It was built by Karikala Chola.", a.Text)
	sys := llm.systems[0]
	assert.Contains(t, sys, OutOfScopeRefusal)
	assert.Contains(t, sys, NoEvidenceRefusal)
	assert.Contains(t, sys, "Answer in Tamil.")

	user := llm.users[0]
	assert.Contains(t, user, "User question:\nWho built the Grand Anicut?")
	assert.Contains(t, user, "USER: hi\nASSISTANT: hello")
	assert.Contains(t, user, "[page 3 (text)] The Grand Anicut was built by Karikala Chola.")
	assert.Contains(t, user, "Knowledge graph facts:\nChola | ruled | Thanjavur")
}

func TestSynthesize_NoFactsPlaceholder(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	NewSynthesizer(llm, &log.NoOpLogger{}).Synthesize(context.Background(), AnswerRequest{
		Question: "q",
		Chunks:   []rag.Chunk{longChunk},
	})
	assert.Contains(t, llm.users[0], "Knowledge graph facts:\n(no KG facts)")
	assert.Contains(t, llm.systems[0], "Answer in English.")
}

func TestSynthesize_Confidence(t *testing.T) {
	chunks := []rag.Chunk{longChunk, longChunk}
	contextLen := len([]rune(FormatContext(chunks)))

	llm := &fakeLLM{reply: "Karikala Chola."}
	a := NewSynthesizer(llm, &log.NoOpLogger{}).Synthesize(context.Background(), AnswerRequest{Question: "q", Chunks: chunks})
	assert.InDelta(t, 0.4+0.2+float64(contextLen)/5000, a.Confidence, 1e-9)

	llm.reply = "I Don't Know Based On the document."
	a = NewSynthesizer(llm, &log.NoOpLogger{}).Synthesize(context.Background(), AnswerRequest{Question: "q", Chunks: chunks})
	assert.Equal(t, 0.2, a.Confidence)

	assert.Equal(t, 1.0, Confidence("fine", 8, 20000))
	assert.Equal(t, 0.2, Confidence("This question is NOT RELATED TO the book", 8, 20000))
}

func TestSynthesize_ModelError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("503")}
	a := NewSynthesizer(llm, &log.NoOpLogger{}).Synthesize(context.Background(), AnswerRequest{
		Question: "q",
		Chunks:   []rag.Chunk{longChunk, imageChunk(2, "static/images/d_p2_i0.png")},
	})
	assert.Equal(t, FailureAnswer, a.Text)
	assert.Equal(t, 0.0, a.Confidence)
	assert.Empty(t, a.ImagePaths)
}

func TestImagePaths(t *testing.T) {
	noPath := imageChunk(1, "")
	chunks := []rag.Chunk{
		imageChunk(4, "b.png"),
		longChunk,
		imageChunk(2, "a.png"),
		imageChunk(4, "b.png"),
		noPath,
	}
	assert.Equal(t, []string{"b.png", "a.png"}, ImagePaths(chunks))
	assert.Equal(t, []string{}, ImagePaths(nil))
}

func TestAnswerLanguage(t *testing.T) {
	assert.Equal(t, "English", AnswerLanguage("What is rain?", ""))
	assert.Equal(t, "Tamil", AnswerLanguage("மழை என்றால் என்ன?", ""))
	assert.Equal(t, "French", AnswerLanguage("மழை?", " French "))
}

func TestSession(t *testing.T) {
	s := NewSession()
	assert.Equal(t, "", s.History(6))

	for i := 0; i < 4; i++ {
		s.Append(rag.RoleUser, "q"+string(rune('0'+i)))
		s.Append(rag.RoleAssistant, "a"+string(rune('0'+i)))
	}
	assert.Len(t, s.Turns(), 8)
	assert.Equal(t, "USER: q1\nASSISTANT: a1\nUSER: q2\nASSISTANT: a2\nUSER: q3\nASSISTANT: a3", s.History(0))
	assert.Equal(t, "USER: q3\nASSISTANT: a3", s.History(2))

	s.Reset()
	assert.Empty(t, s.Turns())
	assert.Equal(t, "", s.History(6))
}

type fakeRetriever struct {
	results []rag.SearchResult
	err     error
	k       int
	docID   string
}

func (f *fakeRetriever) SimilaritySearch(ctx context.Context, query string, k int, docID string) ([]rag.SearchResult, error) {
	f.k, f.docID = k, docID
	return f.results, f.err
}

type fakeFacts struct {
	facts []rag.Triple
	docID string
}

func (f *fakeFacts) Query(ctx context.Context, query, docID string) []rag.Triple {
	f.docID = docID
	return f.facts
}

func TestQAEngine_Ask(t *testing.T) {
	ctx := context.Background()
	retriever := &fakeRetriever{results: []rag.SearchResult{
		{Chunk: longChunk, Score: 0.9},
		{Chunk: imageChunk(5, "static/images/d_p5_i0.png"), Score: 0.7},
	}}
	facts := &fakeFacts{facts: []rag.Triple{{Subject: "Karikala Chola", Predicate: "built", Object: "Grand Anicut"}}}
	llm := &fakeLLM{reply: "Karikala Chola built it."}
	engine := NewQAEngine(retriever, facts, NewSynthesizer(llm, &log.NoOpLogger{}), WithLogger(&log.NoOpLogger{}))
	session := NewSession()

	a := engine.Ask(ctx, session, "Who built the Grand Anicut?", "d", "")
	assert.Equal(t, "Karikala Chola built it.", a.Text)
	assert.Equal(t, []string{"static/images/d_p5_i0.png"}, a.ImagePaths)
	assert.Equal(t, 8, retriever.k)
	assert.Equal(t, "d", retriever.docID)
	assert.Equal(t, "d", facts.docID)
	assert.Contains(t, llm.users[0], "(no previous conversation)")

	turns := session.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, rag.ConversationTurn{Role: rag.RoleUser, Content: "Who built the Grand Anicut?"}, turns[0])
	assert.Equal(t, rag.RoleAssistant, turns[1].Role)

	engine.Ask(ctx, session, "When?", "d", "")
	assert.Contains(t, llm.users[1], "USER: Who built the Grand Anicut?\nASSISTANT: Karikala Chola built it.")
}

func TestQAEngine_AskWithoutSession(t *testing.T) {
	retriever := &fakeRetriever{results: []rag.SearchResult{{Chunk: longChunk, Score: 0.9}}}
	llm := &fakeLLM{reply: "Karikala Chola."}
	engine := NewQAEngine(retriever, nil, NewSynthesizer(llm, &log.NoOpLogger{}), WithLogger(&log.NoOpLogger{}))

	var a Answer
	require.NotPanics(t, func() { a = engine.Ask(context.Background(), nil, "Who built it?", "d", "") })
	assert.Equal(t, "Karikala Chola.", a.Text)
	assert.Contains(t, llm.users[0], "(no previous conversation)")
}

func TestQAEngine_SearchFailureDegrades(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("store down")}
	llm := &fakeLLM{reply: "unused"}
	engine := NewQAEngine(retriever, nil, NewSynthesizer(llm, &log.NoOpLogger{}), WithLogger(&log.NoOpLogger{}), WithTopK(3))

	a := engine.Ask(context.Background(), NewSession(), "q", "", "")
	assert.Equal(t, InsufficientAnswer, a.Text)
	assert.Equal(t, 3, retriever.k)
	assert.Zero(t, llm.calls)
}
