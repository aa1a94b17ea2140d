// Package extractor implements format-dispatched text extraction (C3).
// Extraction never aborts ingestion of other documents: any parser failure
// is converted to a logged warning and an ("", false) result.
package extractor

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	// MaxFileSize is the hard cap beyond which files are not extracted (§4.3).
	MaxFileSize = 10 * 1024 * 1024
	// MinContentLength is the floor below which extracted text is treated
	// as "no useful content" (§4.3).
	MinContentLength = 50
)

var plainTextExtensions = map[string]bool{
	".txt": true, ".md": true, ".rst": true, ".csv": true,
	".json": true, ".xml": true, ".html": true, ".htm": true,
}

// Extractor dispatches by file extension to a format-specific parser.
type Extractor struct {
	maxFileSize int64
	log         zerolog.Logger
}

// New constructs an Extractor. maxFileSize overrides §4.3's 10 MiB default
// when positive; zero or negative keeps the default.
func New(maxFileSize int64, log zerolog.Logger) *Extractor {
	if maxFileSize <= 0 {
		maxFileSize = MaxFileSize
	}
	return &Extractor{
		maxFileSize: maxFileSize,
		log:         log.With().Str("component", "extractor").Logger(),
	}
}

// Extract returns the UTF-8 text content of path, or "", false when the
// file is not extractable (unknown extension, too large, unparseable, or
// below the minimum useful content length).
func (e *Extractor) Extract(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		e.log.Warn().Str("path", path).Err(err).Msg("stat failed")
		return "", false
	}
	if info.Size() > e.maxFileSize {
		e.log.Warn().Str("path", path).Int64("size", info.Size()).Msg("file exceeds max size, skipping")
		return "", false
	}

	ext := strings.ToLower(filepath.Ext(path))
	text, err := e.dispatch(ext, path)
	if err != nil {
		e.log.Warn().Str("path", path).Str("ext", ext).Err(err).Msg("extraction failed")
		return "", false
	}
	if text == "" {
		return "", false
	}
	if utf8.RuneCountInString(text) < MinContentLength {
		return "", false
	}
	return text, true
}

func (e *Extractor) dispatch(ext, path string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDOCX(path)
	default:
		if plainTextExtensions[ext] {
			return extractPlainText(path, ext)
		}
		return "", errUnsupportedExtension(ext)
	}
}

type unsupportedExtensionError struct{ ext string }

func (e unsupportedExtensionError) Error() string { return "unsupported extension: " + e.ext }

func errUnsupportedExtension(ext string) error { return unsupportedExtensionError{ext: ext} }
