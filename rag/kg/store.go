package kg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
)

const (
	DefaultSampleEvery   = 2
	DefaultMinChunkChars = 100
	DefaultPacing        = time.Second
	DefaultBatchSize     = 500
	DefaultMatchLimit    = 50
	DefaultFallbackCount = 10
	DefaultSampleLimit   = 10
)

const entityExtractionSystem = "You are an expert at identifying key entities and concepts from a user query for a Knowledge Graph lookup. " +
	"Your goal is to extract keywords that are likely to exist as Nodes in the graph. " +
	"Rules:\n" +
	"1. Extract important nouns, proper nouns, or technical terms.\n" +
	"2. EXPAND terms with synonyms, root forms, and variations (e.g. 'flight' -> 'flight | flying | fly | aviation').\n" +
	"3. For TITLES or PHRASES, also provide the core words (e.g. 'His First Flight' -> 'His First Flight | First Flight | Flight').\n" +
	"4. If the query is in English, YOU MUST provide Tamil translations for key terms (e.g. 'sun' -> 'sun | சூரியன்').\n" +
	"5. Keep compound nouns together but ALSO provide the head noun (e.g. 'solar energy' -> 'solar energy | energy').\n" +
	"6. Ignore generic words like 'process', 'type', 'way', 'details' unless part of a specific term.\n" +
	"7. Return them as a pipe-separated list.\n" +
	"8. If the query is conversational or has no specific entities, return an empty string."

const relevanceFilterSystem = "You are a helpful relevance filter. " +
	"Given a user query and a numbered list of facts (triples), " +
	"return ONLY the numbers of the triples that are potentially useful to answer the query or provide context. " +
	"Be generous: if a triple is related to the main concepts, include it. " +
	"Return numbers separated by commas (e.g. '0, 2, 5'). " +
	"If none are relevant, return 'NONE'."

// Extractor produces triples from chunk text.
type Extractor interface {
	Extract(ctx context.Context, text, docID string) []rag.Triple
}

// Config tunes the knowledge graph store. Zero values take the defaults.
type Config struct {
	// SampleEvery keeps chunks at indices 0, n, 2n, ... for extraction.
	SampleEvery   int
	MinChunkChars int
	// Pacing is the pause after each extraction call; negative disables it.
	Pacing        time.Duration
	BatchSize     int
	MatchLimit    int
	FallbackCount int
	SampleLimit   int
}

func (c Config) withDefaults() Config {
	if c.SampleEvery <= 0 {
		c.SampleEvery = DefaultSampleEvery
	}
	if c.MinChunkChars <= 0 {
		c.MinChunkChars = DefaultMinChunkChars
	}
	if c.Pacing == 0 {
		c.Pacing = DefaultPacing
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MatchLimit <= 0 {
		c.MatchLimit = DefaultMatchLimit
	}
	if c.FallbackCount <= 0 {
		c.FallbackCount = DefaultFallbackCount
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = DefaultSampleLimit
	}
	return c
}

// Store builds and queries the knowledge graph. Every operation degrades to
// a no-op or an empty result when the graph is unreachable.
type Store struct {
	client    *GraphClient
	extractor Extractor
	llm       rag.LLM // deterministic model for entity extraction and filtering
	config    Config
	logger    log.Logger
}

// StoreOption configures the Store
type StoreOption func(*Store)

// WithConfig sets the store configuration
func WithConfig(cfg Config) StoreOption {
	return func(s *Store) {
		s.config = cfg
	}
}

// WithStoreLogger sets the logger
func WithStoreLogger(logger log.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a knowledge graph store
func NewStore(client *GraphClient, extractor Extractor, llm rag.LLM, opts ...StoreOption) *Store {
	s := &Store{client: client, extractor: extractor, llm: llm}
	for _, opt := range opts {
		opt(s)
	}
	s.config = s.config.withDefaults()
	s.logger = log.OrDefault(s.logger)
	return s
}

// Upsert extracts triples from a sample of chunks and writes them in batches.
func (s *Store) Upsert(ctx context.Context, chunks []rag.Chunk, docID string) {
	graph, err := s.client.Graph(ctx)
	if err != nil {
		s.logger.Warn("knowledge graph unavailable, skipping extraction: %v", err)
		return
	}

	sampled := (len(chunks) + s.config.SampleEvery - 1) / s.config.SampleEvery
	s.logger.Info("building knowledge graph from %d chunks (sampled from %d)", sampled, len(chunks))

	pacer := rag.NewPacer(s.config.Pacing)
	var triples []rag.Triple
	for i := 0; i < len(chunks); i += s.config.SampleEvery {
		text := chunks[i].Text
		if utf8.RuneCountInString(text) < s.config.MinChunkChars {
			continue
		}
		if err := pacer.Wait(ctx); err != nil {
			s.logger.Warn("triple extraction interrupted: %v", err)
			break
		}
		triples = append(triples, s.extractor.Extract(ctx, text, docID)...)
		pacer.Done()
	}

	if len(triples) == 0 {
		s.logger.Info("no triples extracted from chunks")
		return
	}

	for start := 0; start < len(triples); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(triples))
		if err := graph.UpsertTriples(ctx, triples[start:end]); err != nil {
			s.logger.Warn("knowledge graph batch %d failed: %v", start/s.config.BatchSize+1, err)
			continue
		}
		s.logger.Debug("uploaded knowledge graph batch %d (%d triples)", start/s.config.BatchSize+1, end-start)
	}
}

// Query returns facts relevant to the query, optionally scoped to docID.
func (s *Store) Query(ctx context.Context, query, docID string) []rag.Triple {
	entities := s.entities(ctx, query)
	if len(entities) == 0 {
		s.logger.Debug("no entities found in query, skipping graph lookup")
		return []rag.Triple{}
	}
	s.logger.Debug("entities for graph lookup: %v", entities)

	graph, err := s.client.Graph(ctx)
	if err != nil {
		s.logger.Warn("knowledge graph unavailable, returning no facts: %v", err)
		return []rag.Triple{}
	}

	candidates, err := graph.MatchTriples(ctx, entities, docID, s.config.MatchLimit)
	if err != nil {
		s.logger.Warn("knowledge graph query failed: %v", err)
		return []rag.Triple{}
	}
	if len(candidates) == 0 {
		return []rag.Triple{}
	}

	relevant, err := s.filter(ctx, query, candidates)
	if err != nil {
		s.logger.Warn("relevance filter failed, keeping all candidates: %v", err)
		return candidates
	}
	if len(relevant) == 0 {
		s.logger.Debug("relevance filter removed all %d candidates, falling back", len(candidates))
		return candidates[:min(s.config.FallbackCount, len(candidates))]
	}
	return relevant
}

// Sample returns a few triples for display, optionally scoped to docID.
func (s *Store) Sample(ctx context.Context, docID string) []rag.Triple {
	graph, err := s.client.Graph(ctx)
	if err != nil {
		s.logger.Warn("knowledge graph unavailable: %v", err)
		return []rag.Triple{}
	}
	triples, err := graph.SampleTriples(ctx, docID, s.config.SampleLimit)
	if err != nil {
		s.logger.Warn("knowledge graph sample failed: %v", err)
		return []rag.Triple{}
	}
	return triples
}

// Health probes the graph backend.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *Store) entities(ctx context.Context, query string) []string {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	out, err := s.llm.Generate(ctx, entityExtractionSystem, "Extract entities from this query: "+query)
	if err != nil {
		s.logger.Warn("entity extraction failed: %v", err)
		return nil
	}
	return ParseEntities(out)
}

// ParseEntities splits a pipe-separated entity list.
func ParseEntities(raw string) []string {
	var entities []string
	for _, e := range strings.Split(raw, "|") {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}
	return entities
}

func (s *Store) filter(ctx context.Context, query string, candidates []rag.Triple) ([]rag.Triple, error) {
	var b strings.Builder
	for i, t := range candidates {
		fmt.Fprintf(&b, "%d: %s\n", i, t)
	}

	out, err := s.llm.Generate(ctx, relevanceFilterSystem, "Query: "+query+"\n\nTriples:\n"+b.String())
	if err != nil {
		return nil, err
	}
	return SelectIndices(out, candidates), nil
}

// SelectIndices picks the candidates named by a comma-separated index list.
// "NONE", out-of-range and non-numeric tokens select nothing.
func SelectIndices(raw string, candidates []rag.Triple) []rag.Triple {
	if strings.Contains(raw, "NONE") {
		return nil
	}
	var selected []rag.Triple
	for _, part := range strings.Split(raw, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || i < 0 || i >= len(candidates) {
			continue
		}
		selected = append(selected, candidates[i])
	}
	return selected
}

// FormatFacts renders triples one per line as "s | p | o".
func FormatFacts(triples []rag.Triple) string {
	lines := make([]string, len(triples))
	for i, t := range triples {
		lines[i] = t.String()
	}
	return strings.Join(lines, "\n")
}
