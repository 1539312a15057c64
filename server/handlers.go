package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/google/uuid"
	"github.com/smallnest/docrag/store"
)

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question  string `json:"question" binding:"required"`
	DocID     string `json:"doc_id"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
}

// AskResponse is the reply of POST /ask.
type AskResponse struct {
	Answer     string   `json:"answer"`
	HTML       string   `json:"html"`
	Confidence float64  `json:"confidence"`
	Images     []string `json:"images"`
	ImageURLs  []string `json:"image_urls"`
	SessionID  string   `json:"session_id"`
}

func (s *Server) health(c *gin.Context) {
	h := s.backend.Health(c.Request.Context())
	status := http.StatusOK
	if !h.OK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func (s *Server) uploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	deep := false
	if v := c.PostForm("deep"); v != "" {
		deep, err = strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deep flag"})
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}

	doc, err := s.backend.Ingest(c.Request.Context(), data, filepath.Base(header.Filename), c.PostForm("doc_id"), deep, nil)
	if err != nil {
		s.logger.Error("ingestion of %s failed: %v", header.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "document": doc})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (s *Server) listDocuments(c *gin.Context) {
	docs, err := s.backend.Documents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": docs})
}

func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.backend.Document(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) documentFacts(c *gin.Context) {
	facts := s.backend.Facts(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"facts": facts})
}

func (s *Server) ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	answer := s.backend.Ask(c.Request.Context(), s.session(req.SessionID), req.Question, req.DocID, req.Language)

	c.JSON(http.StatusOK, AskResponse{
		Answer:     answer.Text,
		HTML:       s.renderMarkdown(answer.Text),
		Confidence: answer.Confidence,
		Images:     answer.ImagePaths,
		ImageURLs:  s.imageURLs(answer.ImagePaths),
		SessionID:  req.SessionID,
	})
}

func (s *Server) resetSession(c *gin.Context) {
	id := c.Param("id")
	existed := s.resetSessionByID(id)
	c.JSON(http.StatusOK, gin.H{"session_id": id, "reset": existed})
}

// renderMarkdown turns an answer into sanitized HTML.
func (s *Server) renderMarkdown(text string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(text))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return string(s.sanitizer.SanitizeBytes(markdown.Render(doc, renderer)))
}

// imageURLs maps image files under the static dir to their /static URLs.
func (s *Server) imageURLs(paths []string) []string {
	urls := make([]string, 0, len(paths))
	dir := s.backend.StaticDir()
	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		urls = append(urls, "/static/"+filepath.ToSlash(rel))
	}
	return urls
}
