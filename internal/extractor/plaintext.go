package extractor

import (
	"os"
	"strings"
	"unicode/utf8"
)

// extractPlainText reads a file as UTF-8 with a permissive fallback that
// replaces invalid byte sequences, matching the source formats' ".txt",
// ".md", ".rst", ".csv", ".json", ".xml", ".html", ".htm" handling (§4.3).
// ".csv" preserves row boundaries as newlines, which this simple byte-mode
// read already does since rows are newline-delimited on disk.
func extractPlainText(path, ext string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	if utf8.Valid(data) {
		return string(data), nil
	}
	return toValidUTF8(data), nil
}

// toValidUTF8 replaces invalid byte sequences with the Unicode replacement
// character rather than failing the whole extraction.
func toValidUTF8(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for len(data) > 0 {
		r, size := decodeRune(data)
		b.WriteRune(r)
		data = data[size:]
	}
	return b.String()
}

func decodeRune(data []byte) (rune, int) {
	r, size := utf8.DecodeRune(data)
	if r == utf8.RuneError && size <= 1 {
		return utf8.RuneError, 1
	}
	return r, size
}
