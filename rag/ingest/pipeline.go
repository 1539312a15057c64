package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
)

const (
	DefaultBatchSize  = 50
	DefaultDeepPacing = 3 * time.Second
)

// ProgressFunc receives the 1-based page just processed and the page total.
type ProgressFunc func(current, total int)

// PageExtractor turns one page into content units.
type PageExtractor interface {
	Extract(ctx context.Context, doc rag.PageSource, page int, docID, source string, deep bool) ([]rag.ContentUnit, error)
}

// Splitter cuts content units into chunks.
type Splitter interface {
	SplitUnits(units []rag.ContentUnit) []rag.Chunk
}

// ChunkIndex persists chunks for similarity search.
type ChunkIndex interface {
	AddChunks(ctx context.Context, chunks []rag.Chunk) error
}

// GraphUpserter extracts and stores facts from chunks. It never fails.
type GraphUpserter interface {
	Upsert(ctx context.Context, chunks []rag.Chunk, docID string)
}

// OpenerFunc chooses how to open a file by name.
type OpenerFunc func(fileName string) rag.DocumentOpener

// Pipeline drives extraction, splitting and indexing over a document's pages.
type Pipeline struct {
	opener     OpenerFunc
	extractor  PageExtractor
	splitter   Splitter
	index      ChunkIndex
	graph      GraphUpserter
	batchSize  int
	deepPacing time.Duration
	logger     log.Logger
}

// Option configures the Pipeline
type Option func(*Pipeline)

// WithBatchSize sets the number of pages per batch
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithDeepPacing sets the pause between the end of one page and the start of
// the next in deep mode. Zero disables pacing.
func WithDeepPacing(d time.Duration) Option {
	return func(p *Pipeline) {
		p.deepPacing = d
	}
}

// WithGraph forwards every indexed batch to the knowledge graph.
func WithGraph(g GraphUpserter) Option {
	return func(p *Pipeline) {
		p.graph = g
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(opener OpenerFunc, extractor PageExtractor, splitter Splitter, index ChunkIndex, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:     opener,
		extractor:  extractor,
		splitter:   splitter,
		index:      index,
		batchSize:  DefaultBatchSize,
		deepPacing: DefaultDeepPacing,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.OrDefault(p.logger)
	return p
}

// Ingest indexes every page of the document and returns its id. An empty
// docID is replaced by a generated one. Page failures are logged and
// skipped; only index write failures abort.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, fileName, docID string, deep bool, progress ProgressFunc) (string, error) {
	if docID == "" {
		docID = uuid.NewString()
	}

	doc, err := p.opener(fileName).Open(ctx, data)
	if err != nil {
		return docID, fmt.Errorf("failed to open %s: %w", fileName, err)
	}
	defer doc.Close()

	total := doc.PageCount()
	if total == 0 {
		p.logger.Warn("%s has no pages", fileName)
		return docID, nil
	}
	p.logger.Info("ingesting %s as %s: %d pages, deep=%v", fileName, docID, total, deep)

	var pacer *rag.Pacer
	if deep {
		pacer = rag.NewPacer(p.deepPacing)
	}

	for start := 0; start < total; start += p.batchSize {
		end := min(start+p.batchSize, total)

		var units []rag.ContentUnit
		for page := start; page < end; page++ {
			if err := pacer.Wait(ctx); err != nil {
				return docID, fmt.Errorf("ingestion interrupted at page %d: %w", page+1, err)
			}

			pageUnits, err := p.extractor.Extract(ctx, doc, page, docID, fileName, deep)
			pacer.Done()
			if err != nil {
				p.logger.Error("skipping page %d: %v", page+1, err)
			} else {
				units = append(units, pageUnits...)
			}

			if progress != nil {
				progress(page+1, total)
			}
		}

		if err := p.flush(ctx, units, docID); err != nil {
			return docID, fmt.Errorf("pages %d-%d: %w", start+1, end, err)
		}
		p.logger.Info("indexed pages %d-%d of %d", start+1, end, total)
	}

	return docID, nil
}

func (p *Pipeline) flush(ctx context.Context, units []rag.ContentUnit, docID string) error {
	if len(units) == 0 {
		return nil
	}
	chunks := p.splitter.SplitUnits(units)
	if len(chunks) == 0 {
		return nil
	}
	if err := p.index.AddChunks(ctx, chunks); err != nil {
		return err
	}
	if p.graph != nil {
		p.graph.Upsert(ctx, chunks, docID)
	}
	return nil
}
