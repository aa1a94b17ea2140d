package extractor

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF concatenates page text in page order with single newline
// separators (§4.3).
func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	totalPages := r.NumPage()
	pages := make([]string, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unparseable page does not abort the whole document;
			// skip it and continue with the rest.
			continue
		}
		pages = append(pages, strings.TrimRight(text, "\n"))
	}

	return strings.Join(pages, "\n"), nil
}
