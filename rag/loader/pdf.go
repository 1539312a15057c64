package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/smallnest/docrag/rag"
)

// ErrToolMissing is returned when a poppler utility is not installed.
var ErrToolMissing = errors.New("poppler utility not available")

// PDFOpener opens PDF documents. Page text is read with ledongthuc/pdf, with
// pdftotext as a fallback. Page rasters and embedded images come from the
// poppler utilities pdftoppm and pdfimages.
type PDFOpener struct {
	tempDir    string
	resolution int
	timeout    time.Duration
	lookPath   func(string) (string, error)
}

// PDFOption configures the PDFOpener
type PDFOption func(*PDFOpener)

// WithTempDir sets the parent directory for per-document scratch space.
func WithTempDir(dir string) PDFOption {
	return func(o *PDFOpener) {
		o.tempDir = dir
	}
}

// WithResolution sets the raster resolution in DPI.
func WithResolution(dpi int) PDFOption {
	return func(o *PDFOpener) {
		o.resolution = dpi
	}
}

// WithCommandTimeout bounds each poppler invocation.
func WithCommandTimeout(d time.Duration) PDFOption {
	return func(o *PDFOpener) {
		o.timeout = d
	}
}

// NewPDFOpener creates a PDF opener
func NewPDFOpener(opts ...PDFOption) *PDFOpener {
	o := &PDFOpener{
		resolution: 150,
		timeout:    60 * time.Second,
		lookPath:   exec.LookPath,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open parses data and stages it on disk for the poppler utilities.
func (o *PDFOpener) Open(ctx context.Context, data []byte) (rag.PageSource, error) {
	reader, err := newPDFReader(data)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(o.tempDir, "docrag-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("stage pdf: %w", err)
	}

	return &pdfDocument{opener: o, reader: reader, dir: dir, path: path}, nil
}

func newPDFReader(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}
	return reader, nil
}

type pdfDocument struct {
	opener *PDFOpener
	reader *pdf.Reader
	dir    string
	path   string
}

func (d *pdfDocument) PageCount() int {
	return d.reader.NumPage()
}

// PageText returns the plain text of the zero-based page.
func (d *pdfDocument) PageText(page int) (string, error) {
	if page < 0 || page >= d.PageCount() {
		return "", fmt.Errorf("page %d out of range", page)
	}
	text, err := d.nativeText(page)
	if err == nil {
		return text, nil
	}
	if !d.opener.hasBinary("pdftotext") {
		return "", err
	}
	return d.popplerText(context.Background(), page)
}

func (d *pdfDocument) nativeText(page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: text extraction panicked: %v", page+1, r)
		}
	}()
	p := d.reader.Page(page + 1)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(make(map[string]*pdf.Font))
}

func (d *pdfDocument) popplerText(ctx context.Context, page int) (string, error) {
	n := strconv.Itoa(page + 1)
	out, err := d.run(ctx, "pdftotext", "-f", n, "-l", n, "-layout", d.path, "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// PageRaster renders the zero-based page to PNG.
func (d *pdfDocument) PageRaster(ctx context.Context, page int) ([]byte, error) {
	n := strconv.Itoa(page + 1)
	prefix := filepath.Join(d.dir, "page-"+n)
	_, err := d.run(ctx, "pdftoppm",
		"-f", n, "-l", n,
		"-r", strconv.Itoa(d.opener.resolution),
		"-png", "-singlefile",
		d.path, prefix)
	if err != nil {
		return nil, err
	}
	defer os.Remove(prefix + ".png")
	return os.ReadFile(prefix + ".png")
}

// EmbeddedImages extracts the raster images of the zero-based page. JPEGs
// keep their encoding; everything else is converted to PNG.
func (d *pdfDocument) EmbeddedImages(ctx context.Context, page int) ([]rag.EmbeddedImage, error) {
	n := strconv.Itoa(page + 1)
	dir, err := os.MkdirTemp(d.dir, "images-"+n+"-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if _, err := d.run(ctx, "pdfimages", "-f", n, "-l", n, "-j", "-png", d.path, filepath.Join(dir, "img")); err != nil {
		return nil, err
	}
	return readImageDir(dir)
}

func readImageDir(dir string) ([]rag.EmbeddedImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var images []rag.EmbeddedImage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		images = append(images, rag.EmbeddedImage{
			Data:      data,
			Extension: strings.TrimPrefix(filepath.Ext(e.Name()), "."),
		})
	}
	return images, nil
}

// Close removes the scratch directory.
func (d *pdfDocument) Close() error {
	return os.RemoveAll(d.dir)
}

func (d *pdfDocument) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if !d.opener.hasBinary(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrToolMissing)
	}

	runCtx, cancel := context.WithTimeout(ctx, d.opener.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %v, stderr: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (o *PDFOpener) hasBinary(name string) bool {
	_, err := o.lookPath(name)
	return err == nil
}
