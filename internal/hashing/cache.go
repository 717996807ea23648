package hashing

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of digests kept between rebuilds.
const DefaultCacheSize = 1024

// ContentKey identifies file content by its xxh64 sum and length.
type ContentKey struct {
	Sum       uint64
	Size      int
	Algorithm Algorithm
}

// KeyOf returns the cache key for content under algorithm.
func KeyOf(algorithm Algorithm, content []byte) ContentKey {
	return ContentKey{Sum: xxhash.Sum64(content), Size: len(content), Algorithm: algorithm}
}

// CacheStats contains digest cache statistics
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// DigestCache memoizes slow digests across rebuilds of the same staging tree (watch mode).
type DigestCache struct {
	entries *lru.Cache[ContentKey, string]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewDigestCache creates a cache holding up to size digests.
func NewDigestCache(size int) (*DigestCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[ContentKey, string](size)
	if err != nil {
		return nil, err
	}
	return &DigestCache{entries: entries}, nil
}

// Get returns the digest stored for key.
func (c *DigestCache) Get(key ContentKey) (string, bool) {
	digest, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return digest, ok
}

// Add stores a digest.
func (c *DigestCache) Add(key ContentKey, digest string) {
	c.entries.Add(key, digest)
}

// Stats returns cache statistics
func (c *DigestCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.entries.Len(),
	}
}
