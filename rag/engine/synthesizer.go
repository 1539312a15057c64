package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
)

// Fixed answers returned without calling the model.
const (
	InsufficientAnswer = "I don't have enough information from the book to answer this. " +
		"Please make sure you've uploaded and indexed a document first."
	UnrelatedAnswer = "The question doesn't seem to match the content in this document. " +
		"I can only answer questions about the uploaded book."
	FailureAnswer = "Sorry, I couldn't generate an answer right now. Please try again in a moment."
)

// Refusal sentences the model is told to use.
const (
	OutOfScopeRefusal = "This question is not related to the uploaded document. " +
		"I can only answer questions about the content in this book."
	NoEvidenceRefusal = "I don't know based on the document."
)

const (
	DefaultLanguage  = "English"
	minContextChars  = 50
	refusalScore     = 0.2
	unrelatedScore   = 0.1
	noHistory        = "(no previous conversation)"
	noFacts          = "(no KG facts)"
	contextScaleChar = 5000.0
)

var refusalPhrases = []string{
	"not related to",
	"don't know based on",
	"cannot answer",
	"not in the document",
	"no information about",
}

// AnswerRequest is everything the synthesizer grounds an answer on.
type AnswerRequest struct {
	Question string
	History  string
	Chunks   []rag.Chunk
	Facts    []rag.Triple
	// FactsText is used verbatim when Facts is empty.
	FactsText string
	Language  string
}

// Answer is the synthesized reply.
type Answer struct {
	Text       string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	ImagePaths []string `json:"images"`
}

// Synthesizer produces grounded answers from retrieved chunks and facts.
type Synthesizer struct {
	llm    rag.LLM
	logger log.Logger
}

// NewSynthesizer creates a Synthesizer. A nil logger uses the default.
func NewSynthesizer(llm rag.LLM, logger log.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, logger: log.OrDefault(logger)}
}

// Synthesize answers the request. It never fails: model errors become an
// apology with zero confidence.
func (s *Synthesizer) Synthesize(ctx context.Context, req AnswerRequest) Answer {
	contextText := FormatContext(req.Chunks)
	factsText := req.FactsText
	if len(req.Facts) > 0 {
		factsText = formatFacts(req.Facts)
	}

	trimmedContext := strings.TrimSpace(contextText)
	hasFacts := strings.TrimSpace(factsText) != ""

	if trimmedContext == "" && !hasFacts {
		return Answer{Text: InsufficientAnswer, Confidence: 0, ImagePaths: []string{}}
	}
	if utf8.RuneCountInString(trimmedContext) < minContextChars && !hasFacts {
		return Answer{Text: UnrelatedAnswer, Confidence: unrelatedScore, ImagePaths: []string{}}
	}

	history := req.History
	if strings.TrimSpace(history) == "" {
		history = noHistory
	}
	if !hasFacts {
		factsText = noFacts
	}

	user := "User question:\n" + req.Question + "\n\n" +
		"Conversation history (may be empty):\n" + history + "\n\n" +
		"Relevant book context:\n" + contextText + "\n\n" +
		"Knowledge graph facts:\n" + factsText + "\n\n" +
		"IMPORTANT: First check if the question is related to the book content above. " +
		"If not related, say so. If related but not enough info, say you don't know. " +
		"Only answer if you have clear information from the context."

	out, err := s.llm.Generate(ctx, systemPrompt(AnswerLanguage(req.Question, req.Language)), user)
	if err != nil {
		s.logger.Error("answer generation failed: %v", err)
		return Answer{Text: FailureAnswer, Confidence: 0, ImagePaths: []string{}}
	}
	text := strings.TrimSpace(out)

	return Answer{
		Text:       text,
		Confidence: Confidence(text, len(req.Chunks), utf8.RuneCountInString(contextText)),
		ImagePaths: ImagePaths(req.Chunks),
	}
}

func systemPrompt(language string) string {
	return "You are a helpful tutor chatbot for a school textbook.\n" +
		"CRITICAL RULES:\n" +
		"1. Use ONLY the supplied context from the book. DO NOT use any external knowledge.\n" +
		"2. If the question is NOT related to the book content, you MUST say: '" + OutOfScopeRefusal + "'\n" +
		"3. If the answer is not in the context, say: '" + NoEvidenceRefusal + "'\n" +
		"4. NEVER make up information. NEVER hallucinate.\n" +
		"5. If the context is empty or irrelevant to the question, say you cannot answer.\n\n" +
		"Answer in " + language + ".\n" +
		"If the user question is in Tamil, answer in natural, simple Tamil. " +
		"Otherwise answer in English unless the requested language says otherwise."
}

// AnswerLanguage returns the requested language, defaulting to Tamil for
// questions written in Tamil script and English otherwise.
func AnswerLanguage(question, requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	for _, r := range question {
		if unicode.Is(unicode.Tamil, r) {
			return "Tamil"
		}
	}
	return DefaultLanguage
}

// FormatContext renders chunks as "[page N (kind)] text" blocks.
func FormatContext(chunks []rag.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		kind := c.Kind
		if kind == "" {
			kind = rag.KindText
		}
		parts = append(parts, fmt.Sprintf("[page %d (%s)] %s", c.Page, kind, strings.TrimSpace(c.Text)))
	}
	return strings.Join(parts, "\n\n")
}

func formatFacts(triples []rag.Triple) string {
	lines := make([]string, 0, len(triples))
	for _, t := range triples {
		if t.Subject == "" || t.Predicate == "" || t.Object == "" {
			continue
		}
		lines = append(lines, t.String())
	}
	return strings.Join(lines, "\n")
}

// Confidence scores an answer: refusals get 0.2, otherwise the score grows
// with the number of chunks and the context length, capped at 1.
func Confidence(answer string, chunkCount, contextChars int) float64 {
	lower := strings.ToLower(answer)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return refusalScore
		}
	}
	return min(1.0, 0.4+0.1*float64(chunkCount)+float64(contextChars)/contextScaleChar)
}

// ImagePaths returns the distinct image paths of image chunks in first-seen order.
func ImagePaths(chunks []rag.Chunk) []string {
	seen := make(map[string]bool)
	paths := []string{}
	for _, c := range chunks {
		if c.Kind != rag.KindImage || c.ImagePath == "" || seen[c.ImagePath] {
			continue
		}
		seen[c.ImagePath] = true
		paths = append(paths, c.ImagePath)
	}
	return paths
}
