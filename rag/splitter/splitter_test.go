package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/smallnest/docrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longText() string {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("The river runs past the old mill and the miller keeps his wheel turning. ")
		if i%5 == 4 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

func assertWindows(t *testing.T, chunks []string, size, overlap int) {
	t.Helper()
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), size, "chunk %d too long", i)
		if i == 0 {
			continue
		}
		prev := []rune(chunks[i-1])
		cur := []rune(c)
		require.GreaterOrEqual(t, len(cur), overlap)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(cur[:overlap]), "overlap %d", i)
	}
}

func TestRecursiveCharacterTextSplitter(t *testing.T) {
	t.Run("Basic splitting", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter(
			WithChunkSize(10),
			WithChunkOverlap(0),
		)
		chunks := s.SplitText("1234567890abcdefghij")
		assert.Equal(t, []string{"1234567890", "abcdefghij"}, chunks)
	})

	t.Run("Split with separators", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter(
			WithChunkSize(12),
			WithChunkOverlap(0),
			WithSeparators([]string{"\n"}),
		)
		chunks := s.SplitText("part1\npart2\npart3")
		assert.Equal(t, []string{"part1\npart2\n", "part3"}, chunks)
	})

	t.Run("Paragraph preferred over sentence", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter(WithChunkSize(30), WithChunkOverlap(0))
		chunks := s.SplitText("One. Two.\n\nThree four five six seven.")
		require.NotEmpty(t, chunks)
		assert.Equal(t, "One. Two.\n\n", chunks[0])
	})

	t.Run("Raw cut when no boundary fits", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter(WithChunkSize(8), WithChunkOverlap(3))
		text := "abcdefghijklmnopqrstuvwxyz"
		chunks := s.SplitText(text)
		assert.Equal(t, "abcdefgh", chunks[0])
		assert.Equal(t, "fghijklm", chunks[1])
		assertWindows(t, chunks, 8, 3)
		assert.Equal(t, text, s.JoinText(chunks))
	})

	t.Run("Exact overlap on prose", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter()
		text := longText()
		chunks := s.SplitText(text)
		require.Greater(t, len(chunks), 1)
		assertWindows(t, chunks, DefaultChunkSize, DefaultChunkOverlap)
		assert.Equal(t, text, s.JoinText(chunks))
	})

	t.Run("Multibyte text is measured in runes", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter(WithChunkSize(20), WithChunkOverlap(5))
		text := strings.Repeat("தமிழ் மொழி. ", 10)
		chunks := s.SplitText(text)
		assertWindows(t, chunks, 20, 5)
		assert.Equal(t, text, s.JoinText(chunks))
	})

	t.Run("Deterministic", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter(WithChunkSize(100), WithChunkOverlap(20))
		text := longText()
		assert.Equal(t, s.SplitText(text), s.SplitText(text))
	})

	t.Run("Blank text", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter()
		assert.Empty(t, s.SplitText("   \n\n "))
	})

	t.Run("Invalid overlap is ignored", func(t *testing.T) {
		s := NewRecursiveCharacterTextSplitter(WithChunkSize(5), WithChunkOverlap(5))
		assert.Equal(t, []string{"abcde", "fghij"}, s.SplitText("abcdefghij"))
	})
}

func TestSplitUnits(t *testing.T) {
	s := NewRecursiveCharacterTextSplitter(WithChunkSize(10), WithChunkOverlap(2))
	units := []rag.ContentUnit{
		{Text: "123456789012345", Source: "book.pdf", Page: 3, DocumentID: "doc1", Kind: rag.KindText},
		{Text: "  ", Source: "book.pdf", Page: 3, DocumentID: "doc1", Kind: rag.KindText},
		{Text: "Image Description: a map", Source: "book.pdf", Page: 4, DocumentID: "doc1", Kind: rag.KindImage, ImagePath: "static/images/doc1_p4_i0.png"},
	}

	chunks := s.SplitUnits(units)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.Equal(t, "doc1", c.DocumentID)
		assert.Equal(t, "book.pdf", c.Source)
		assert.NotEmpty(t, c.ID)
	}
	assert.Equal(t, 3, chunks[0].Page)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)

	last := chunks[len(chunks)-1]
	assert.Equal(t, rag.KindImage, last.Kind)
	assert.Equal(t, "static/images/doc1_p4_i0.png", last.ImagePath)

	again := s.SplitUnits(units)
	assert.Equal(t, chunks, again)
}
