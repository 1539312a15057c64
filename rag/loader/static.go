package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/docrag/rag"
)

// ErrNoRaster is returned by sources that cannot render page images.
var ErrNoRaster = errors.New("page rasterization not supported")

// StaticPage is the content of one page held in memory.
type StaticPage struct {
	Text   string
	Raster []byte
	Images []rag.EmbeddedImage
}

// StaticDocument is a PageSource over pages already held in memory.
type StaticDocument struct {
	Pages  []StaticPage
	closed bool
}

var _ rag.PageSource = (*StaticDocument)(nil)

// NewStaticDocument creates a document with one text-only page per entry.
func NewStaticDocument(texts ...string) *StaticDocument {
	pages := make([]StaticPage, len(texts))
	for i, t := range texts {
		pages[i] = StaticPage{Text: t}
	}
	return &StaticDocument{Pages: pages}
}

func (d *StaticDocument) PageCount() int {
	return len(d.Pages)
}

func (d *StaticDocument) page(i int) (StaticPage, error) {
	if i < 0 || i >= len(d.Pages) {
		return StaticPage{}, fmt.Errorf("page %d out of range", i)
	}
	return d.Pages[i], nil
}

func (d *StaticDocument) PageText(i int) (string, error) {
	p, err := d.page(i)
	return p.Text, err
}

func (d *StaticDocument) PageRaster(_ context.Context, i int) ([]byte, error) {
	p, err := d.page(i)
	if err != nil {
		return nil, err
	}
	if p.Raster == nil {
		return nil, ErrNoRaster
	}
	return p.Raster, nil
}

func (d *StaticDocument) EmbeddedImages(_ context.Context, i int) ([]rag.EmbeddedImage, error) {
	p, err := d.page(i)
	return p.Images, err
}

// Close marks the document closed.
func (d *StaticDocument) Close() error {
	d.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (d *StaticDocument) Closed() bool {
	return d.closed
}
