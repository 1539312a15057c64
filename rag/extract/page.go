package extract

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
)

const (
	DefaultMinTextChars  = 50
	DefaultMinImageBytes = 10000
	imageTextPrefix      = "Image Description: "
)

// PageExtractor turns one page into content units. In deep mode it falls back
// to a vision transcription for pages with little native text and describes
// embedded images.
type PageExtractor struct {
	describer     ImageDescriber
	images        *ImageStore
	minTextChars  int
	minImageBytes int
	logger        log.Logger
}

// PageExtractorOption configures the PageExtractor
type PageExtractorOption func(*PageExtractor)

// WithMinTextChars sets the native text length below which deep mode transcribes the page.
func WithMinTextChars(n int) PageExtractorOption {
	return func(e *PageExtractor) {
		e.minTextChars = n
	}
}

// WithMinImageBytes sets the size below which embedded images are ignored.
func WithMinImageBytes(n int) PageExtractorOption {
	return func(e *PageExtractor) {
		e.minImageBytes = n
	}
}

// WithPageLogger sets the logger
func WithPageLogger(logger log.Logger) PageExtractorOption {
	return func(e *PageExtractor) {
		e.logger = logger
	}
}

// NewPageExtractor creates a PageExtractor
func NewPageExtractor(describer ImageDescriber, images *ImageStore, opts ...PageExtractorOption) *PageExtractor {
	e := &PageExtractor{
		describer:     describer,
		images:        images,
		minTextChars:  DefaultMinTextChars,
		minImageBytes: DefaultMinImageBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.OrDefault(e.logger)
	return e
}

// Extract returns the content units of the zero-based page. An error means
// the page could not be read at all.
func (e *PageExtractor) Extract(ctx context.Context, doc rag.PageSource, page int, docID, source string, deep bool) (units []rag.ContentUnit, err error) {
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("page %d: %v", page+1, r)
		}
	}()

	text, err := doc.PageText(page)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page+1, err)
	}

	if deep && utf8.RuneCountInString(strings.TrimSpace(text)) < e.minTextChars {
		text = e.transcribe(ctx, doc, page, text)
	}

	base := rag.ContentUnit{Source: source, Page: page + 1, DocumentID: docID}
	if strings.TrimSpace(text) != "" {
		u := base
		u.Text = text
		u.Kind = rag.KindText
		units = append(units, u)
	}

	if deep {
		units = append(units, e.imageUnits(ctx, doc, page, base)...)
	}
	return units, nil
}

func (e *PageExtractor) transcribe(ctx context.Context, doc rag.PageSource, page int, native string) string {
	raster, err := doc.PageRaster(ctx, page)
	if err != nil {
		e.logger.Warn("page %d: rasterize failed: %v", page+1, err)
		return native
	}
	if ocr := e.describer.Describe(ctx, raster, "image/png", TranscribeInstruction); ocr != "" {
		return ocr
	}
	return native
}

func (e *PageExtractor) imageUnits(ctx context.Context, doc rag.PageSource, page int, base rag.ContentUnit) []rag.ContentUnit {
	images, err := doc.EmbeddedImages(ctx, page)
	if err != nil {
		e.logger.Warn("page %d: list images failed: %v", page+1, err)
		return nil
	}

	var units []rag.ContentUnit
	for idx, img := range images {
		if len(img.Data) < e.minImageBytes {
			continue
		}
		path, err := e.images.Save(base.DocumentID, base.Page, idx, img.Extension, img.Data)
		if err != nil {
			e.logger.Warn("page %d: %v", page+1, err)
			continue
		}
		desc := e.describer.Describe(ctx, img.Data, imageMIME(img.Data, img.Extension), DescribeInstruction)
		if desc == "" {
			continue
		}
		u := base
		u.Text = imageTextPrefix + desc
		u.Kind = rag.KindImage
		u.ImagePath = path
		units = append(units, u)
	}
	return units
}

// imageMIME sniffs the image type from its bytes and falls back to the file
// extension. Unknown types are sent as PNG.
func imageMIME(data []byte, ext string) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	if ct := mime.TypeByExtension("." + ext); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/png"
}
