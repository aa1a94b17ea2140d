package ingest

import (
	"path/filepath"
	"strings"
)

func fileName(path string) string {
	return filepath.Base(path)
}

// fileType returns the lowercased extension without its leading dot, used
// as the file_type filter value in search queries.
func fileType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return strings.TrimPrefix(ext, ".")
}
