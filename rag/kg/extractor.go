package kg

import (
	"context"
	"regexp"
	"strings"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
)

const tripleExtractionSystem = "You are an information extraction assistant. " +
	"Given a passage of text, extract important factual triples " +
	"in the form (subject, predicate, object).\n" +
	"Rules:\n" +
	"1. Extract ALL key facts, definitions, and relationships.\n" +
	"2. Use simple, atomic subjects and objects (e.g. 'The process of photosynthesis' -> 'photosynthesis').\n" +
	"3. Return them as lines in the format: subject | predicate | object\n" +
	"4. If you find nothing, return an empty string."

// TripleExtractor asks a language model for subject | predicate | object facts.
type TripleExtractor struct {
	llm     rag.LLM
	retrier *rag.Retrier
	logger  log.Logger
}

// ExtractorOption configures the TripleExtractor
type ExtractorOption func(*TripleExtractor)

// WithExtractorRetry overrides the throttling retry policy.
func WithExtractorRetry(cfg rag.RetryConfig) ExtractorOption {
	return func(e *TripleExtractor) {
		e.retrier = rag.NewRetrier(cfg)
	}
}

// WithExtractorLogger sets the logger
func WithExtractorLogger(logger log.Logger) ExtractorOption {
	return func(e *TripleExtractor) {
		e.logger = logger
	}
}

// NewTripleExtractor creates a TripleExtractor
func NewTripleExtractor(llm rag.LLM, opts ...ExtractorOption) *TripleExtractor {
	e := &TripleExtractor{
		llm:     llm,
		retrier: rag.NewRetrier(rag.DefaultRetryConfig()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.OrDefault(e.logger)
	return e
}

// Extract returns the triples found in text, tagged with docID. Failures
// yield an empty result.
func (e *TripleExtractor) Extract(ctx context.Context, text, docID string) []rag.Triple {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	prompt := "Extract factual triples from the following text.\n\n" +
		"TEXT:\n" + text + "\n\n" +
		"TRIPLES (one per line, 'subject | predicate | object'):"

	out, err := e.retrier.Do(ctx, func(ctx context.Context) (string, error) {
		return e.llm.Generate(ctx, tripleExtractionSystem, prompt)
	})
	if err != nil {
		e.logger.Warn("triple extraction failed: %v", err)
		return nil
	}
	return ParseTriples(out, docID)
}

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)

// ParseTriples reads one "subject | predicate | object" triple per line.
// Lines without exactly three non-empty fields are dropped.
func ParseTriples(raw, docID string) []rag.Triple {
	triples := []rag.Triple{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		if !strings.Contains(line, "|") {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			continue
		}
		s := strings.TrimSpace(parts[0])
		p := strings.TrimSpace(parts[1])
		o := strings.TrimSpace(parts[2])
		if s == "" || p == "" || o == "" {
			continue
		}
		triples = append(triples, rag.Triple{Subject: s, Predicate: p, Object: o, DocumentID: docID})
	}
	return triples
}
