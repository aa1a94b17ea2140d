package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortTextReturnsSingleChunk(t *testing.T) {
	s := New(512, 100)
	chunks := s.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitEmptyTextReturnsNoChunks(t *testing.T) {
	s := New(512, 100)
	assert.Empty(t, s.Split(""))
}

func TestSplitRespectsChunkSizePlusOverlapBound(t *testing.T) {
	s := New(512, 100)
	text := strings.Repeat("a", 1024)
	chunks := s.Split(text)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, len(c), 1)
		assert.LessOrEqual(t, len(c), s.ChunkSize+s.Overlap)
	}
}

func TestSplitConsecutiveChunksShareBoundedOverlap(t *testing.T) {
	s := New(512, 100)
	text := strings.Repeat("a", 1024)
	chunks := s.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)

	for i := 0; i+1 < len(chunks); i++ {
		suffix := overlapSuffix(chunks[i], s.Overlap)
		assert.True(t, strings.HasPrefix(chunks[i+1], suffix) || suffix == "")
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := New(40, 5)
	text := "First paragraph here.\n\nSecond paragraph that is also short.\n\nThird paragraph text."
	chunks := s.Split(text)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), s.ChunkSize+s.Overlap)
	}
	assert.Contains(t, strings.Join(chunks, ""), "First paragraph")
	// The first chunk ends exactly at the first paragraph break.
	assert.Equal(t, "First paragraph here.", chunks[0])
}

func TestSplitHandlesSmallDocumentWithHeaderAndParagraphs(t *testing.T) {
	s := New(512, 100)
	text := "## Header\n\n" + strings.Repeat("para one sentence. ", 10) +
		"\n\n" + strings.Repeat("para two sentence. ", 10) +
		"\n\n" + strings.Repeat("para three sentence. ", 10)

	chunks := s.Split(text)
	assert.GreaterOrEqual(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), s.ChunkSize+s.Overlap)
	}
}
