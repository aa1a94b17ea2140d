package modelstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDefaultsWhenFileMissing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "model.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, s.Get())
}

func TestSetPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("mistral:7b"))
	assert.Equal(t, "mistral:7b", s.Get())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", reopened.Get())
}

func TestSetRejectsEmptyModel(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "model.json"))
	require.NoError(t, err)
	assert.Error(t, s.Set(""))
	assert.Equal(t, DefaultModel, s.Get())
}

func TestOpenDefaultsOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, s.Get())
}

func TestSetLeavesInMemoryValueOnVerificationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	// Make the rename destination an existing non-empty directory so the
	// commit step fails durability verification after the write succeeds.
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "occupied"), []byte("x"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)

	err = s.Set("mistral:7b")
	assert.Error(t, err)
	assert.Equal(t, "mistral:7b", s.Get())
}

func TestReadPersistedMatchesSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("mistral:7b"))

	persisted, err := s.ReadPersisted()
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", persisted)
}
