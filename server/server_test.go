package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallnest/docrag/app"
	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
	"github.com/smallnest/docrag/rag/engine"
	"github.com/smallnest/docrag/rag/ingest"
	"github.com/smallnest/docrag/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBackend struct {
	mu        sync.Mutex
	staticDir string
	docs      map[string]*store.Document
	ingestErr error
	answer    engine.Answer
	healthy   bool

	ingested []string
	sessions []*engine.Session
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{
		staticDir: t.TempDir(),
		docs:      make(map[string]*store.Document),
		healthy:   true,
		answer:    engine.Answer{Text: "**Photosynthesis** makes sugar.", Confidence: 0.8, ImagePaths: []string{}},
	}
}

func (f *fakeBackend) Ingest(ctx context.Context, data []byte, fileName, docID string, deep bool, progress ingest.ProgressFunc) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if docID == "" {
		docID = "generated"
	}
	f.ingested = append(f.ingested, fileName+":"+string(data))
	doc := &store.Document{ID: docID, FileName: fileName, Deep: deep, Pages: 1, Status: store.StatusReady}
	if f.ingestErr != nil {
		doc.Status = store.StatusFailed
		return doc, f.ingestErr
	}
	f.docs[docID] = doc
	return doc, nil
}

func (f *fakeBackend) Ask(ctx context.Context, session *engine.Session, question, docID, language string) engine.Answer {
	f.mu.Lock()
	f.sessions = append(f.sessions, session)
	f.mu.Unlock()
	session.Append(rag.RoleUser, question)
	session.Append(rag.RoleAssistant, f.answer.Text)
	return f.answer
}

func (f *fakeBackend) Facts(ctx context.Context, docID string) []rag.Triple {
	return []rag.Triple{{Subject: "leaf", Predicate: "contains", Object: "chlorophyll", DocumentID: docID}}
}

func (f *fakeBackend) Documents(ctx context.Context) ([]*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := []*store.Document{}
	for _, d := range f.docs {
		docs = append(docs, d)
	}
	return docs, nil
}

func (f *fakeBackend) Document(ctx context.Context, id string) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeBackend) Health(ctx context.Context) app.Health {
	return app.Health{OK: f.healthy, Chunks: 12}
}

func (f *fakeBackend) StaticDir() string {
	return f.staticDir
}

func newTestServer(t *testing.T) (*Server, *fakeBackend) {
	b := newFakeBackend(t)
	return New(b, WithLogger(&log.NoOpLogger{})), b
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return do(s, req)
}

func uploadRequest(t *testing.T, fields map[string]string, fileName, content string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthz(t *testing.T) {
	s, b := newTestServer(t)

	w := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var h app.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, 12, h.Chunks)

	b.healthy = false
	w = do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUploadDocument(t *testing.T) {
	s, b := newTestServer(t)

	w := do(s, uploadRequest(t, map[string]string{"doc_id": "bio", "deep": "true"}, "biology.txt", "cells"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var doc store.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "bio", doc.ID)
	assert.True(t, doc.Deep)
	assert.Equal(t, store.StatusReady, doc.Status)
	assert.Equal(t, []string{"biology.txt:cells"}, b.ingested)

	w = do(s, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"bio"`)

	w = do(s, httptest.NewRequest(http.MethodGet, "/documents/bio", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(s, httptest.NewRequest(http.MethodGet, "/documents/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadDocumentErrors(t *testing.T) {
	s, b := newTestServer(t)

	w := do(s, uploadRequest(t, map[string]string{"doc_id": "x"}, "", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, uploadRequest(t, map[string]string{"deep": "maybe"}, "a.txt", "a"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	b.ingestErr = errors.New("vector store down")
	w = do(s, uploadRequest(t, nil, "a.txt", "a"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "vector store down")
	assert.Contains(t, w.Body.String(), `"status":"failed"`)
}

func TestUploadTooLarge(t *testing.T) {
	b := newFakeBackend(t)
	s := New(b, WithLogger(&log.NoOpLogger{}), WithMaxUpload(64))

	w := do(s, uploadRequest(t, nil, "big.txt", string(bytes.Repeat([]byte("x"), 1024))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, b.ingested)
}

func TestDocumentFacts(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, httptest.NewRequest(http.MethodGet, "/documents/bio/facts", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Facts []rag.Triple `json:"facts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Facts, 1)
	assert.Equal(t, "bio", body.Facts[0].DocumentID)
	assert.Equal(t, "chlorophyll", body.Facts[0].Object)
}

func TestAsk(t *testing.T) {
	s, b := newTestServer(t)

	w := postJSON(t, s, "/ask", AskRequest{Question: "What is photosynthesis?", DocID: "bio", SessionID: "s1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "**Photosynthesis** makes sugar.", resp.Answer)
	assert.Contains(t, resp.HTML, "<strong>Photosynthesis</strong>")
	assert.Equal(t, "s1", resp.SessionID)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)

	// the same session id reuses the session
	postJSON(t, s, "/ask", AskRequest{Question: "And respiration?", SessionID: "s1"})
	require.Len(t, b.sessions, 2)
	assert.Same(t, b.sessions[0], b.sessions[1])
	assert.Len(t, b.sessions[1].Turns(), 4)
}

func TestAskGeneratesSessionID(t *testing.T) {
	s, _ := newTestServer(t)

	w := postJSON(t, s, "/ask", map[string]string{"question": "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestAskValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := postJSON(t, s, "/ask", map[string]string{"doc_id": "bio"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, s, "/ask", map[string]string{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, do(s, req).Code)
}

func TestAskSanitizesHTML(t *testing.T) {
	s, b := newTestServer(t)
	b.answer = engine.Answer{Text: "Hello <script>alert(1)</script> <a href=\"javascript:alert(2)\">x</a>"}

	w := postJSON(t, s, "/ask", AskRequest{Question: "q"})
	var resp AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp.HTML, "<script>")
	assert.NotContains(t, resp.HTML, "javascript:")
}

func TestAskImageURLs(t *testing.T) {
	s, b := newTestServer(t)
	inside := filepath.Join(b.staticDir, "images", "bio_p1_i0.png")
	b.answer = engine.Answer{Text: "see figure", ImagePaths: []string{inside, "/etc/passwd"}}

	w := postJSON(t, s, "/ask", AskRequest{Question: "show me"})
	var resp AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"/static/images/bio_p1_i0.png"}, resp.ImageURLs)
	assert.Len(t, resp.Images, 2)
}

func TestResetSession(t *testing.T) {
	s, b := newTestServer(t)

	postJSON(t, s, "/ask", AskRequest{Question: "q", SessionID: "s1"})
	require.Len(t, b.sessions[0].Turns(), 2)

	w := do(s, httptest.NewRequest(http.MethodPost, "/sessions/s1/reset", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reset":true`)
	assert.Empty(t, b.sessions[0].Turns())

	w = do(s, httptest.NewRequest(http.MethodPost, "/sessions/unknown/reset", nil))
	assert.Contains(t, w.Body.String(), `"reset":false`)
}

func TestStaticFiles(t *testing.T) {
	s, b := newTestServer(t)
	require.NoError(t, os.MkdirAll(filepath.Join(b.staticDir, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(b.staticDir, "images", "a.png"), []byte("png"), 0o644))

	w := do(s, httptest.NewRequest(http.MethodGet, "/static/images/a.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png", w.Body.String())
}

func TestConcurrentSessions(t *testing.T) {
	s, _ := newTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			postJSON(t, s, "/ask", AskRequest{Question: "q", SessionID: []string{"a", "b"}[i%2]})
		}(i)
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.sessions, 2)
}

func TestSessionsExpireWhenIdle(t *testing.T) {
	b := newFakeBackend(t)
	s := New(b, WithLogger(&log.NoOpLogger{}), WithSessionTTL(time.Minute))
	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	postJSON(t, s, "/ask", AskRequest{Question: "q", SessionID: "s1"})
	postJSON(t, s, "/ask", map[string]string{"question": "anonymous"})

	clock = clock.Add(30 * time.Second)
	postJSON(t, s, "/ask", AskRequest{Question: "again", SessionID: "s1"})
	require.Len(t, b.sessions, 3)
	assert.Same(t, b.sessions[0], b.sessions[2])

	clock = clock.Add(2 * time.Minute)
	w := do(s, httptest.NewRequest(http.MethodPost, "/sessions/s1/reset", nil))
	assert.Contains(t, w.Body.String(), `"reset":false`)

	postJSON(t, s, "/ask", AskRequest{Question: "later", SessionID: "s1"})
	require.Len(t, b.sessions, 4)
	assert.NotSame(t, b.sessions[0], b.sessions[3])
	assert.Len(t, b.sessions[3].Turns(), 2)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.sessions, 1)
}

func TestSessionsCapped(t *testing.T) {
	b := newFakeBackend(t)
	s := New(b, WithLogger(&log.NoOpLogger{}), WithMaxSessions(2))
	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	for _, id := range []string{"a", "b", "a", "c"} {
		clock = clock.Add(time.Second)
		postJSON(t, s, "/ask", AskRequest{Question: "q", SessionID: id})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.sessions, 2)
	assert.Contains(t, s.sessions, "a")
	assert.Contains(t, s.sessions, "c")
	assert.NotContains(t, s.sessions, "b")
}
