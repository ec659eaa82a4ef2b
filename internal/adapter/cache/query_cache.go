package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"recall/internal/domain"
)

// QueryCache memoizes retrieval results behind an expirable LRU.
// Entries are stamped with the index generation at insert time; any
// index mutation bumps the generation, which lazily invalidates every
// older entry.
type QueryCache struct {
	lru *expirable.LRU[[32]byte, entry]
	gen atomic.Uint64
}

type entry struct {
	results []domain.RetrievalResult
	gen     uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		lru: expirable.NewLRU[[32]byte, entry](maxSize, nil, ttl),
	}
}

func cacheKey(query string, topK int) [32]byte {
	data := make([]byte, 0, len(query)+8)
	data = append(data, query...)
	data = binary.BigEndian.AppendUint64(data, uint64(topK))
	return sha256.Sum256(data)
}

func (c *QueryCache) Get(query string, topK int) ([]domain.RetrievalResult, bool) {
	e, ok := c.lru.Get(cacheKey(query, topK))
	if !ok || e.gen != c.gen.Load() {
		return nil, false
	}
	return e.results, true
}

func (c *QueryCache) Put(query string, topK int, results []domain.RetrievalResult) {
	c.lru.Add(cacheKey(query, topK), entry{results: results, gen: c.gen.Load()})
}

// Invalidate drops all cached results by advancing the generation.
func (c *QueryCache) Invalidate() {
	c.gen.Add(1)
}

func (c *QueryCache) Len() int {
	return c.lru.Len()
}
