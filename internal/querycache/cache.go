// Package querycache implements the Query Cache (C7): a thread-safe LRU+TTL
// cache of retrieval results keyed by an embedding-prefix fingerprint.
package querycache

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jwvanderstam/wherespace/internal/retrieval"
)

// fingerprintComponents is K in §4.7: the number of leading embedding
// components folded into the cache key.
const fingerprintComponents = 10

type entry struct {
	hits       []retrieval.Hit
	insertedAt time.Time
}

// Stats reports cache effectiveness for /api/cache_stats.
type Stats struct {
	Size    int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Cache is a thread-safe, bounded, TTL-expiring memo of recent retrievals.
// All operations are serialized behind a single mutex (§4.7); critical
// sections are O(1) amortized thanks to the underlying LRU.
type Cache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, entry]
	ttl    time.Duration
	hits   uint64
	misses uint64
}

// New constructs a Cache bounded to capacity entries with the given TTL.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	backing, err := lru.New[string, entry](capacity)
	if err != nil {
		// lru.New only errors on a non-positive size, already guarded above.
		panic(err)
	}
	return &Cache{lru: backing, ttl: ttl}
}

// Get returns a copy of the cached hits for (embedding, topK) if present and
// not older than the TTL; otherwise it returns (nil, false). A hit refreshes
// LRU recency.
func (c *Cache) Get(embedding []float32, topK int) ([]retrieval.Hit, bool) {
	key := fingerprint(embedding, topK)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(e.insertedAt) > c.ttl {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}

	c.hits++
	out := make([]retrieval.Hit, len(e.hits))
	copy(out, e.hits)
	return out, true
}

// Put inserts hits for (embedding, topK) with the current timestamp,
// evicting the least recently used entry if at capacity.
func (c *Cache) Put(embedding []float32, topK int, hits []retrieval.Hit) {
	key := fingerprint(embedding, topK)
	stored := make([]retrieval.Hit, len(hits))
	copy(stored, hits)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{hits: stored, insertedAt: time.Now()})
}

// Clear empties the cache. Required by P8: after a flush/write, callers
// that want a guaranteed fresh query must call Clear rather than rely on
// TTL expiry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats reports current size, hit/miss counters, and the hit rate.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    c.lru.Len(),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// fingerprint derives a cache key from the first fingerprintComponents
// components of embedding and topK. Collisions are tolerated (§4.7): the
// cache is best-effort, not authoritative.
func fingerprint(embedding []float32, topK int) string {
	h := fnv.New64a()

	n := fingerprintComponents
	if len(embedding) < n {
		n = len(embedding)
	}
	for i := 0; i < n; i++ {
		// Quantize to reduce float-noise sensitivity while remaining
		// deterministic for identical query embeddings.
		quantized := int64(embedding[i] * 1e6)
		h.Write([]byte(strconv.FormatInt(quantized, 36)))
		h.Write([]byte{0})
	}
	h.Write([]byte(strconv.Itoa(topK)))

	return strconv.FormatUint(h.Sum64(), 36)
}
