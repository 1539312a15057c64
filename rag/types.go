package rag

import (
	"context"
	"strconv"
)

// ContentKind distinguishes extracted page text from described images.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
)

// ContentUnit is one piece of extracted page content: the page text, or the
// description of one embedded image.
type ContentUnit struct {
	Text       string
	Source     string
	Page       int // 1-based
	DocumentID string
	Kind       ContentKind
	ImagePath  string
}

// Metadata returns the unit's metadata in the key layout shared by all vector stores.
func (u ContentUnit) Metadata() map[string]string {
	m := map[string]string{
		MetaSource:     u.Source,
		MetaPage:       strconv.Itoa(u.Page),
		MetaDocumentID: u.DocumentID,
		MetaKind:       string(u.Kind),
	}
	if u.ImagePath != "" {
		m[MetaImagePath] = u.ImagePath
	}
	return m
}

// Metadata keys written alongside every chunk.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaDocumentID = "doc_id"
	MetaKind       = "type"
	MetaImagePath  = "image_path"
)

// UnitFromMetadata rebuilds a ContentUnit from stored metadata and text.
func UnitFromMetadata(text string, meta map[string]string) ContentUnit {
	page, _ := strconv.Atoi(meta[MetaPage])
	kind := ContentKind(meta[MetaKind])
	if kind == "" {
		kind = KindText
	}
	return ContentUnit{
		Text:       text,
		Source:     meta[MetaSource],
		Page:       page,
		DocumentID: meta[MetaDocumentID],
		Kind:       kind,
		ImagePath:  meta[MetaImagePath],
	}
}

// Chunk is a bounded window of a ContentUnit's text. All unit fields other
// than Text are inherited unchanged.
type Chunk struct {
	ID string
	ContentUnit
	Index int
}

// SearchResult is a chunk returned by a vector similarity search.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Triple is a subject-predicate-object fact extracted from a chunk.
type Triple struct {
	Subject    string `json:"s"`
	Predicate  string `json:"p"`
	Object     string `json:"o"`
	DocumentID string `json:"doc_id,omitempty"`
}

// String formats the triple as "subject | predicate | object".
func (t Triple) String() string {
	return t.Subject + " | " + t.Predicate + " | " + t.Object
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message of a chat session.
type ConversationTurn struct {
	Role    Role
	Content string
}

// EmbeddedImage is a raster image found on a page.
type EmbeddedImage struct {
	Data      []byte
	Extension string // without the leading dot, e.g. "png"
}

// PageSource is an open page-oriented document.
type PageSource interface {
	PageCount() int
	PageText(page int) (string, error)
	PageRaster(ctx context.Context, page int) ([]byte, error)
	EmbeddedImages(ctx context.Context, page int) ([]EmbeddedImage, error)
	Close() error
}

// DocumentOpener opens raw document bytes into a PageSource.
type DocumentOpener interface {
	Open(ctx context.Context, data []byte) (PageSource, error)
}

// LLM is a text-generation capability.
type LLM interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// VisionModel is a capability that answers an instruction about an image.
// The image is passed as a data URL.
type VisionModel interface {
	DescribeImage(ctx context.Context, instruction, imageURL string) (string, error)
}

// Embedder computes embedding vectors for text.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
}

// VectorStore persists chunk embeddings and answers similarity queries.
// Filter keys are metadata keys, e.g. MetaDocumentID.
type VectorStore interface {
	Add(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// TripleGraph is a graph backend storing triples as labeled edges between
// entity nodes identified by exact name.
type TripleGraph interface {
	// UpsertTriples writes one batch atomically.
	UpsertTriples(ctx context.Context, triples []Triple) error
	// MatchTriples returns edges whose endpoints contain any of the entities,
	// case-insensitively. An empty documentID matches all documents.
	MatchTriples(ctx context.Context, entities []string, documentID string, limit int) ([]Triple, error)
	SampleTriples(ctx context.Context, documentID string, limit int) ([]Triple, error)
	Ping(ctx context.Context) error
	Close() error
}
