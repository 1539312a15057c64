package splitter

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/smallnest/docrag/rag"
)

// DefaultSeparators prefers paragraph, then line, then sentence boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?"}

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

// RecursiveCharacterTextSplitter cuts text into windows of at most chunkSize
// runes. Each window ends at the best boundary available within budget and
// the next window starts exactly chunkOverlap runes before that end.
type RecursiveCharacterTextSplitter struct {
	separators   []string
	chunkSize    int
	chunkOverlap int
}

// RecursiveCharacterTextSplitterOption configures the RecursiveCharacterTextSplitter
type RecursiveCharacterTextSplitterOption func(*RecursiveCharacterTextSplitter)

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(size int) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.chunkSize = size
	}
}

// WithChunkOverlap sets the number of runes shared by consecutive chunks.
func WithChunkOverlap(overlap int) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.chunkOverlap = overlap
	}
}

// WithSeparators sets the boundaries in order of preference.
func WithSeparators(separators []string) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.separators = separators
	}
}

// NewRecursiveCharacterTextSplitter creates a splitter with 1500 rune chunks
// and a 200 rune overlap unless overridden. An overlap that is negative or not
// smaller than the chunk size is treated as zero.
func NewRecursiveCharacterTextSplitter(opts ...RecursiveCharacterTextSplitterOption) *RecursiveCharacterTextSplitter {
	s := &RecursiveCharacterTextSplitter{
		separators:   DefaultSeparators,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		s.chunkOverlap = 0
	}

	return s
}

// SplitText splits text into chunks. Blank text yields no chunks.
func (s *RecursiveCharacterTextSplitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for {
		if len(runes)-start <= s.chunkSize {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		end := start + s.cut(runes[start:start+s.chunkSize])
		chunks = append(chunks, string(runes[start:end]))
		start = end - s.chunkOverlap
	}
}

// cut returns the length of the next chunk within window. The cut must leave
// more than chunkOverlap runes so the following chunk advances.
func (s *RecursiveCharacterTextSplitter) cut(window []rune) int {
	w := string(window)
	for _, sep := range s.separators {
		if sep == "" {
			continue
		}
		idx := strings.LastIndex(w, sep)
		if idx < 0 {
			continue
		}
		end := utf8.RuneCountInString(w[:idx]) + utf8.RuneCountInString(sep)
		if end > s.chunkOverlap {
			return end
		}
	}
	return len(window)
}

// SplitUnits splits each unit into chunks that keep the unit's metadata.
// Units with blank text produce no chunks.
func (s *RecursiveCharacterTextSplitter) SplitUnits(units []rag.ContentUnit) []rag.Chunk {
	chunks := make([]rag.Chunk, 0, len(units))

	for _, unit := range units {
		for i, text := range s.SplitText(unit.Text) {
			c := rag.Chunk{ContentUnit: unit, Index: i}
			c.Text = text
			c.ID = chunkID(unit, i, text)
			chunks = append(chunks, c)
		}
	}

	return chunks
}

// JoinText reassembles chunks produced by SplitText, dropping the overlap.
func (s *RecursiveCharacterTextSplitter) JoinText(chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		if len(runes) > s.chunkOverlap {
			sb.WriteString(string(runes[s.chunkOverlap:]))
		}
	}
	return sb.String()
}

// chunkID is stable for identical input so re-ingestion overwrites rather
// than duplicates stored vectors.
func chunkID(unit rag.ContentUnit, index int, text string) string {
	key := strings.Join([]string{
		unit.DocumentID,
		strconv.Itoa(unit.Page),
		string(unit.Kind),
		unit.ImagePath,
		strconv.Itoa(index),
		text,
	}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
