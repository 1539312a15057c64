package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallnest/docrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a one-page PDF showing text in Helvetica.
func minimalPDF(text string) []byte {
	content := "BT /F1 12 Tf 72 712 Td (" + text + ") Tj ET"
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestPDFOpener(t *testing.T) {
	ctx := context.Background()

	t.Run("reads native text", func(t *testing.T) {
		o := NewPDFOpener(WithTempDir(t.TempDir()))
		doc, err := o.Open(ctx, minimalPDF("Hello World"))
		require.NoError(t, err)
		defer doc.Close()

		assert.Equal(t, 1, doc.PageCount())
		text, err := doc.PageText(0)
		require.NoError(t, err)
		assert.Contains(t, text, "Hello")

		_, err = doc.PageText(3)
		assert.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		o := NewPDFOpener(WithTempDir(t.TempDir()))
		_, err := o.Open(ctx, []byte("definitely not a pdf"))
		assert.Error(t, err)
	})

	t.Run("close removes scratch space", func(t *testing.T) {
		parent := t.TempDir()
		o := NewPDFOpener(WithTempDir(parent))
		doc, err := o.Open(ctx, minimalPDF("bye"))
		require.NoError(t, err)

		entries, _ := os.ReadDir(parent)
		assert.Len(t, entries, 1)

		require.NoError(t, doc.Close())
		entries, _ = os.ReadDir(parent)
		assert.Empty(t, entries)
	})

	t.Run("missing poppler tools", func(t *testing.T) {
		o := NewPDFOpener(WithTempDir(t.TempDir()))
		o.lookPath = func(string) (string, error) { return "", errors.New("not found") }
		doc, err := o.Open(ctx, minimalPDF("x"))
		require.NoError(t, err)
		defer doc.Close()

		_, err = doc.PageRaster(ctx, 0)
		assert.ErrorIs(t, err, ErrToolMissing)
		_, err = doc.EmbeddedImages(ctx, 0)
		assert.ErrorIs(t, err, ErrToolMissing)
	})
}

func TestReadImageDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img-001.png"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img-000.jpg"), []byte("a"), 0o600))

	images, err := readImageDir(dir)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, rag.EmbeddedImage{Data: []byte("a"), Extension: "jpg"}, images[0])
	assert.Equal(t, "png", images[1].Extension)
}

func TestTextOpener(t *testing.T) {
	ctx := context.Background()
	o := NewTextOpener()

	doc, err := o.Open(ctx, []byte("page one\fpage two\f"))
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount())
	text, _ := doc.PageText(1)
	assert.Equal(t, "page two", text)

	_, err = doc.PageRaster(ctx, 0)
	assert.ErrorIs(t, err, ErrNoRaster)

	empty, err := o.Open(ctx, []byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.PageCount())

	_, err = o.Open(ctx, []byte{0xff, 0xfe, 0xfd})
	assert.Error(t, err)
}

func TestHTMLOpener(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body>
<nav>menu</nav>
<p>First paragraph.</p><p>Second</p>
<img src="data:image/png;base64,iVBORw0KGgo=">
<img src="https://example.com/remote.png">
<script>track()</script>
</body></html>`

	doc, err := NewHTMLOpener().Open(context.Background(), []byte(html))
	require.NoError(t, err)
	require.Equal(t, 1, doc.PageCount())

	text, err := doc.PageText(0)
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "track()")

	images, err := doc.EmbeddedImages(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "png", images[0].Extension)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), images[0].Data)
}

func TestStaticDocument(t *testing.T) {
	doc := NewStaticDocument("a", "b")
	assert.Equal(t, 2, doc.PageCount())
	_, err := doc.PageText(2)
	assert.Error(t, err)
	assert.False(t, doc.Closed())
	require.NoError(t, doc.Close())
	assert.True(t, doc.Closed())
}

func TestForFile(t *testing.T) {
	assert.IsType(t, &TextOpener{}, ForFile("notes.TXT"))
	assert.IsType(t, &HTMLOpener{}, ForFile("page.html"))
	assert.IsType(t, &PDFOpener{}, ForFile("book.pdf"))
	assert.IsType(t, &PDFOpener{}, ForFile("unknown"))
}
