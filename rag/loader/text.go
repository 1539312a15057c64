package loader

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/smallnest/docrag/rag"
)

// TextOpener opens plain text. Form feeds separate pages, matching the
// output of pdftotext; text without form feeds is a single page.
type TextOpener struct {
	pageSeparator string
}

// TextOption configures the TextOpener
type TextOption func(*TextOpener)

// WithPageSeparator sets the page separator
func WithPageSeparator(separator string) TextOption {
	return func(o *TextOpener) {
		o.pageSeparator = separator
	}
}

// NewTextOpener creates a new TextOpener
func NewTextOpener(opts ...TextOption) *TextOpener {
	o := &TextOpener{pageSeparator: "\f"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open splits data into pages.
func (o *TextOpener) Open(_ context.Context, data []byte) (rag.PageSource, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("text document is not valid UTF-8")
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return NewStaticDocument(), nil
	}

	pages := strings.Split(text, o.pageSeparator)
	// pdftotext terminates the last page with a separator
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return NewStaticDocument(pages...), nil
}
