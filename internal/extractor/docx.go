package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	paragraphBoundary = regexp.MustCompile(`</w:p>`)
	xmlTag            = regexp.MustCompile(`<[^>]+>`)
)

// extractDOCX concatenates paragraph text in document order (§4.3). The
// nguyenthenguyen/docx library exposes the raw document.xml body via
// GetContent(); paragraph boundaries are recovered from the </w:p> closing
// tag before stripping the remaining markup.
func extractDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	raw := r.Editable().GetContent()

	withBreaks := paragraphBoundary.ReplaceAllString(raw, "\n")
	plain := xmlTag.ReplaceAllString(withBreaks, "")

	var paragraphs []string
	for _, line := range strings.Split(plain, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return strings.Join(paragraphs, "\n"), nil
}
