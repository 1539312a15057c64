package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImageStore writes extracted images under <static>/images.
type ImageStore struct {
	dir string
}

// NewImageStore creates a store rooted at staticDir.
func NewImageStore(staticDir string) *ImageStore {
	return &ImageStore{dir: filepath.Join(staticDir, "images")}
}

// Dir returns the directory images are written to.
func (s *ImageStore) Dir() string {
	return s.dir
}

// Save writes data as {docID}_p{page}_i{index}.{ext} and returns its path.
func (s *ImageStore) Save(docID string, page, index int, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	if ext == "" {
		ext = "png"
	}
	name := fmt.Sprintf("%s_p%d_i%d.%s", safeName(docID), page, index, ext)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
