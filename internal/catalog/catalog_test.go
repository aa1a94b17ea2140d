package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwvanderstam/wherespace/internal/modelserver"
)

type fakeTagsClient struct {
	tags []modelserver.TagInfo
	err  error
}

func (f *fakeTagsClient) ListTags(ctx context.Context) ([]modelserver.TagInfo, error) {
	return f.tags, f.err
}

func TestListNormalizesAndGroups(t *testing.T) {
	fc := &fakeTagsClient{tags: []modelserver.TagInfo{
		{Name: "llama3.1:latest", Size: 100},
		{Name: "mistral:7b", Size: 200},
		{Name: "custom-model:latest", Size: 300},
	}}
	c := New(fc)

	tags, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tags, 3)

	assert.Equal(t, "llama3.1", tags[0].Name)
	assert.Equal(t, "llama", tags[0].Family)
	assert.Equal(t, "mistral:7b", tags[1].Name)
	assert.Equal(t, "mistral", tags[1].Family)
	assert.Equal(t, "other", tags[2].Family)
}

func TestResolveAcceptsBareOrFullyQualified(t *testing.T) {
	tags := []Tag{{Name: "llama3.1", FullTag: "llama3.1:latest"}}

	name, ok := Resolve(tags, "llama3.1")
	assert.True(t, ok)
	assert.Equal(t, "llama3.1", name)

	name, ok = Resolve(tags, "llama3.1:latest")
	assert.True(t, ok)
	assert.Equal(t, "llama3.1", name)

	_, ok = Resolve(tags, "unknown")
	assert.False(t, ok)
}
