package loader

import (
	"path/filepath"
	"strings"

	"github.com/smallnest/docrag/rag"
)

// ForFile picks an opener from the file extension. Unknown extensions are
// treated as PDF.
func ForFile(fileName string, pdfOpts ...PDFOption) rag.DocumentOpener {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".text", ".md":
		return NewTextOpener()
	case ".html", ".htm":
		return NewHTMLOpener()
	default:
		return NewPDFOpener(pdfOpts...)
	}
}
