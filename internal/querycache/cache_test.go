package querycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwvanderstam/wherespace/internal/retrieval"
)

func TestGetMissOnEmptyCache(t *testing.T) {
	c := New(10, time.Minute)
	_, ok := c.Get([]float32{0.1, 0.2}, 5)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestPutThenGetHits(t *testing.T) {
	c := New(10, time.Minute)
	embedding := []float32{0.1, 0.2, 0.3}
	hits := []retrieval.Hit{{FileName: "a.txt", Similarity: 0.9}}

	c.Put(embedding, 5, hits)
	got, ok := c.Get(embedding, 5)
	require.True(t, ok)
	assert.Equal(t, hits, got)
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	c := New(10, time.Minute)
	embedding := []float32{0.1}
	hits := []retrieval.Hit{{FileName: "a.txt"}}
	c.Put(embedding, 1, hits)

	got, _ := c.Get(embedding, 1)
	got[0].FileName = "mutated"

	got2, _ := c.Get(embedding, 1)
	assert.Equal(t, "a.txt", got2[0].FileName)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New(10, 10*time.Millisecond)
	embedding := []float32{0.5}
	c.Put(embedding, 3, []retrieval.Hit{{FileName: "x"}})

	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get(embedding, 3)
	assert.False(t, ok)
}

func TestDifferentTopKProducesDifferentKey(t *testing.T) {
	c := New(10, time.Minute)
	embedding := []float32{0.2, 0.4}
	c.Put(embedding, 5, []retrieval.Hit{{FileName: "five"}})

	_, ok := c.Get(embedding, 10)
	assert.False(t, ok)
}

func TestClearEmptiesCache(t *testing.T) {
	c := New(10, time.Minute)
	embedding := []float32{0.2}
	c.Put(embedding, 5, []retrieval.Hit{{FileName: "x"}})
	c.Clear()

	_, ok := c.Get(embedding, 5)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := New(2, time.Minute)
	c.Put([]float32{1}, 1, []retrieval.Hit{{FileName: "one"}})
	c.Put([]float32{2}, 1, []retrieval.Hit{{FileName: "two"}})
	// Touch "one" so "two" becomes the least recently used.
	c.Get([]float32{1}, 1)
	c.Put([]float32{3}, 1, []retrieval.Hit{{FileName: "three"}})

	_, twoOK := c.Get([]float32{2}, 1)
	_, oneOK := c.Get([]float32{1}, 1)
	_, threeOK := c.Get([]float32{3}, 1)

	assert.False(t, twoOK)
	assert.True(t, oneOK)
	assert.True(t, threeOK)
}
