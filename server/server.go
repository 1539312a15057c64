// Package server exposes docrag over HTTP with gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/docrag/app"
	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
	"github.com/smallnest/docrag/rag/engine"
	"github.com/smallnest/docrag/rag/ingest"
	"github.com/smallnest/docrag/store"
)

// DefaultMaxUpload bounds the size of an uploaded document.
const DefaultMaxUpload int64 = 100 << 20

const (
	// DefaultSessionTTL is how long an unused session is kept.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultMaxSessions caps the number of live sessions.
	DefaultMaxSessions = 10000
)

// Backend is what the HTTP API serves. *app.App implements it.
type Backend interface {
	Ingest(ctx context.Context, data []byte, fileName, docID string, deep bool, progress ingest.ProgressFunc) (*store.Document, error)
	Ask(ctx context.Context, session *engine.Session, question, docID, language string) engine.Answer
	Facts(ctx context.Context, docID string) []rag.Triple
	Documents(ctx context.Context) ([]*store.Document, error)
	Document(ctx context.Context, id string) (*store.Document, error)
	Health(ctx context.Context) app.Health
	StaticDir() string
}

var _ Backend = (*app.App)(nil)

// Server is the HTTP front end. It owns the conversation sessions, keyed by
// session id.
type Server struct {
	backend   Backend
	router    *gin.Engine
	logger    log.Logger
	maxUpload int64
	sanitizer *bluemonday.Policy

	sessionTTL  time.Duration
	maxSessions int
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session  *engine.Session
	lastUsed time.Time
}

// Option configures the Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxUpload sets the largest accepted upload in bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithSessionTTL sets how long an idle session survives.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithMaxSessions caps the live sessions; the least recently used one is
// dropped when a new session would exceed it.
func WithMaxSessions(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// New creates a Server and registers its routes.
func New(backend Backend, opts ...Option) *Server {
	s := &Server{
		backend:   backend,
		maxUpload: DefaultMaxUpload,
		sanitizer:   bluemonday.UGCPolicy(),
		sessionTTL:  DefaultSessionTTL,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
		sessions:    make(map[string]*sessionEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger)
	s.router = s.setupRouter()
	return s
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/healthz", s.health)

	r.POST("/documents", s.uploadDocument)
	r.GET("/documents", s.listDocuments)
	r.GET("/documents/:id", s.getDocument)
	r.GET("/documents/:id/facts", s.documentFacts)

	r.POST("/ask", s.ask)
	r.POST("/sessions/:id/reset", s.resetSession)

	if dir := s.backend.StaticDir(); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Warn("cannot create static dir %s: %v", dir, err)
		} else {
			r.Static("/static", dir)
		}
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// session returns the session for id, creating it on first use. Creating a
// session first drops expired ones, then the least recently used if the
// cap is reached.
func (s *Server) session(id string) *engine.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.sessions[id]; ok && now.Sub(e.lastUsed) < s.sessionTTL {
		e.lastUsed = now
		return e.session
	}
	delete(s.sessions, id)

	s.evictLocked(now)
	e := &sessionEntry{session: engine.NewSession(), lastUsed: now}
	s.sessions[id] = e
	return e.session
}

func (s *Server) evictLocked(now time.Time) {
	var oldestID string
	var oldest time.Time
	for id, e := range s.sessions {
		if now.Sub(e.lastUsed) >= s.sessionTTL {
			delete(s.sessions, id)
			continue
		}
		if oldestID == "" || e.lastUsed.Before(oldest) {
			oldestID, oldest = id, e.lastUsed
		}
	}
	if len(s.sessions) >= s.maxSessions && oldestID != "" {
		s.logger.Debug("session limit %d reached, dropping %s", s.maxSessions, oldestID)
		delete(s.sessions, oldestID)
	}
}

// resetSessionByID clears the session and reports whether it existed.
func (s *Server) resetSessionByID(id string) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok && s.now().Sub(e.lastUsed) >= s.sessionTTL {
		delete(s.sessions, id)
		ok = false
	}
	s.mu.Unlock()

	if ok {
		e.session.Reset()
	}
	return ok
}
