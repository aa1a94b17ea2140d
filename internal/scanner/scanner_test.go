package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWrite(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestScanAggregatesBytesByDirectoryAndCategory(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.txt"), 10)
	mustWrite(t, filepath.Join(root, "sub", "b.pdf"), 20)

	s := New(nil, []string{"pdf", "txt"}, zerolog.Nop())
	result, err := s.Scan(root)
	require.NoError(t, err)

	assert.Equal(t, int64(10), result.CategoryBytes["txt"])
	assert.Equal(t, int64(20), result.CategoryBytes["pdf"])
	assert.NotEmpty(t, result.ScanID)
}

func TestScanSkipsNamedDirectoriesEntirely(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "keep.txt"), 5)
	mustWrite(t, filepath.Join(root, "AppData", "skip.txt"), 1000)

	s := New([]string{"AppData"}, []string{"txt"}, zerolog.Nop())
	result, err := s.Scan(root)
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.CategoryBytes["txt"])
}

func TestScanCollectsDocumentsGroupedByDirectorySorted(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "dirB", "doc.pdf"), 1)
	mustWrite(t, filepath.Join(root, "dirA", "z.pdf"), 1)
	mustWrite(t, filepath.Join(root, "dirA", "a.pdf"), 1)

	s := New(nil, []string{"pdf"}, zerolog.Nop())
	result, err := s.Scan(root)
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, filepath.Join(root, "dirA"), result.Documents[0].Directory)
	require.Len(t, result.Documents[0].Paths, 2)
	assert.Equal(t, filepath.Join(root, "dirA", "a.pdf"), result.Documents[0].Paths[0])
}

func TestScanOrdersDirectoriesByDescendingSize(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "small", "a.txt"), 5)
	mustWrite(t, filepath.Join(root, "big", "b.txt"), 500)

	s := New(nil, []string{"txt"}, zerolog.Nop())
	result, err := s.Scan(root)
	require.NoError(t, err)

	require.True(t, len(result.Directories) >= 2)
	assert.Equal(t, filepath.Join(root, "big"), result.Directories[0].Path)
}

func TestScanIgnoresNonWhitelistedExtensions(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "image.png"), 10)

	s := New(nil, []string{"pdf", "txt"}, zerolog.Nop())
	result, err := s.Scan(root)
	require.NoError(t, err)

	assert.Empty(t, result.Documents)
	assert.Equal(t, int64(10), result.CategoryBytes["png"])
}
