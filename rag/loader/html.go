package loader

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/smallnest/docrag/rag"
)

// HTMLOpener opens an HTML page as a single-page document. Inline data URL
// images are exposed as embedded images.
type HTMLOpener struct{}

// NewHTMLOpener creates a new HTMLOpener
func NewHTMLOpener() *HTMLOpener {
	return &HTMLOpener{}
}

// Open parses the HTML and extracts its readable text.
func (o *HTMLOpener) Open(_ context.Context, data []byte) (rag.PageSource, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var images []rag.EmbeddedImage
	doc.Find("img[src^='data:']").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		mimeType, payload, err := rag.ParseDataURL(src)
		if err != nil || !strings.HasPrefix(mimeType, "image/") {
			return
		}
		ext := strings.TrimPrefix(mimeType, "image/")
		if ext == "jpeg" {
			ext = "jpg"
		}
		images = append(images, rag.EmbeddedImage{Data: payload, Extension: ext})
	})

	text := extractText(doc.Selection)
	if text == "" && len(images) == 0 {
		return NewStaticDocument(), nil
	}
	return &StaticDocument{Pages: []StaticPage{{Text: text, Images: images}}}, nil
}

func extractText(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find("script, style, noscript, nav, footer, header, aside").Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	if root.Length() == 0 {
		root = doc
	}

	// block elements end lines so paragraphs survive Text()
	root.Find("p, div, li, h1, h2, h3, h4, h5, h6, br, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(root.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
