package depgraph

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cacheEntry struct {
	modTime time.Time
	size    int64
	result  ParseResult
}

// parseCache holds recent parse results keyed by file. An entry only counts
// as a hit while the file's mtime and size are unchanged.
type parseCache struct {
	lru *expirable.LRU[string, cacheEntry]
}

func newParseCache(size int, ttl time.Duration) *parseCache {
	return &parseCache{lru: expirable.NewLRU[string, cacheEntry](size, nil, ttl)}
}

func (c *parseCache) get(key string, modTime time.Time, size int64) (ParseResult, bool) {
	entry, ok := c.lru.Get(key)
	if !ok || !entry.modTime.Equal(modTime) || entry.size != size {
		return ParseResult{}, false
	}
	return entry.result, true
}

func (c *parseCache) put(key string, modTime time.Time, size int64, result ParseResult) {
	c.lru.Add(key, cacheEntry{modTime: modTime, size: size, result: result})
}

func (c *parseCache) invalidate(key string) {
	c.lru.Remove(key)
}

func (c *parseCache) len() int {
	return c.lru.Len()
}
