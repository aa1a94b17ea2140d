// Package chunker implements the hierarchical recursive character splitter
// (C4 of the spec).
package chunker

import "strings"

// separators are tried in priority order; the last, "", performs a
// fixed-width slice and is guaranteed to make progress.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter holds chunk-size and overlap tuning.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// New constructs a Splitter with the given chunk size and overlap.
func New(chunkSize, overlap int) *Splitter {
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split breaks text into overlapping chunks. Every returned chunk satisfies
// 1 <= len(chunk) <= ChunkSize+Overlap; consecutive chunks share at most
// Overlap characters (§4.4).
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= s.ChunkSize {
		return []string{text}
	}

	pieces := s.splitBySeparator(text)
	return s.accumulate(pieces)
}

// splitBySeparator splits on the first separator (in priority order) that
// yields at least one piece no larger than ChunkSize, recursively splitting
// any oversized piece using the next separator.
func (s *Splitter) splitBySeparator(text string) []string {
	return s.splitFrom(text, 0)
}

func (s *Splitter) splitFrom(text string, sepIdx int) []string {
	if len(text) <= s.ChunkSize {
		return []string{text}
	}
	if sepIdx >= len(separators) {
		return sliceFixedWidth(text, s.ChunkSize)
	}

	sep := separators[sepIdx]
	if sep == "" {
		return sliceFixedWidth(text, s.ChunkSize)
	}

	parts := strings.Split(text, sep)
	fits := false
	for _, p := range parts {
		if p != "" && len(p) <= s.ChunkSize {
			fits = true
			break
		}
	}
	if len(parts) < 2 || !fits {
		return s.splitFrom(text, sepIdx+1)
	}

	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if len(p) > s.ChunkSize {
			out = append(out, s.splitFrom(p, sepIdx+1)...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

func sliceFixedWidth(text string, width int) []string {
	var out []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += width {
		end := i + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// accumulate walks pieces, packing them into chunks no larger than
// ChunkSize+Overlap, seeding each new chunk with the trailing Overlap
// characters of the previous one.
func (s *Splitter) accumulate(pieces []string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() string {
		out := current.String()
		current.Reset()
		return out
	}

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > s.ChunkSize {
			chunk := flush()
			chunks = append(chunks, chunk)
			current.WriteString(overlapSuffix(chunk, s.Overlap))
		}
		current.WriteString(piece)

		for current.Len() > s.ChunkSize+s.Overlap {
			full := current.String()
			cut := s.ChunkSize
			chunks = append(chunks, full[:cut])
			current.Reset()
			current.WriteString(full[cut-s.Overlap:])
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, flush())
	}

	return chunks
}

// overlapSuffix returns the trailing n characters of s (fewer if s is
// shorter), operating on runes to avoid splitting multi-byte characters.
func overlapSuffix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
