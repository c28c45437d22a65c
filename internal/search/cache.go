// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package search

import (
	"container/list"
	"sync"
	"time"

	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/metrics"
)

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRatio float64 `json:"hitRatio"`
	Size     int     `json:"size"`
}

type cacheEntry struct {
	fingerprint string
	result      *Result
	expiresAt   time.Time
}

// Cache maps query fingerprints to results with LRU eviction and a TTL.
// When disabled it stops serving reads but Put still stores, so the
// toggle can be flipped at runtime without losing warm state.
type Cache struct {
	cfg config.CacheConfig
	now func() time.Time

	mu     sync.Mutex
	lru    *list.List
	items  map[string]*list.Element
	hits   uint64
	misses uint64
}

// NewCache builds a cache from the configuration.
func NewCache(cfg config.CacheConfig) *Cache {
	return &Cache{
		cfg:   cfg,
		now:   time.Now,
		lru:   list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached result for a fingerprint, or nil. Expired
// entries are removed on access.
func (c *Cache) Get(fingerprint string) *Result {
	if !c.cfg.Enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fingerprint]
	if !ok {
		c.misses++
		metrics.CacheMisses.Inc()
		return nil
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(el)
		metrics.CacheEvictions.WithLabelValues("expired").Inc()
		c.misses++
		metrics.CacheMisses.Inc()
		return nil
	}
	c.lru.MoveToFront(el)
	c.hits++
	metrics.CacheHits.Inc()
	return entry.result
}

// Put stores a result under its fingerprint, evicting the least recently
// used entry when the cache is at capacity.
func (c *Cache) Put(fingerprint string, result *Result) {
	if c.cfg.MaxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[fingerprint]; ok {
		entry := el.Value.(*cacheEntry)
		entry.result = result
		entry.expiresAt = c.now().Add(c.cfg.TTL())
		c.lru.MoveToFront(el)
		return
	}
	for c.lru.Len() >= c.cfg.MaxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		metrics.CacheEvictions.WithLabelValues("lru").Inc()
	}
	el := c.lru.PushFront(&cacheEntry{
		fingerprint: fingerprint,
		result:      result,
		expiresAt:   c.now().Add(c.cfg.TTL()),
	})
	c.items[fingerprint] = el
	metrics.CacheSize.Set(float64(c.lru.Len()))
}

func (c *Cache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.items, entry.fingerprint)
	c.lru.Remove(el)
	metrics.CacheSize.Set(float64(c.lru.Len()))
}

// Invalidate drops every entry. Retention calls this after deleting
// indexed data so stale results do not outlive their events.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Init()
	c.items = make(map[string]*list.Element)
	metrics.CacheSize.Set(0)
}

// Stats returns hit/miss counters and the current size.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return CacheStats{Hits: c.hits, Misses: c.misses, HitRatio: ratio, Size: c.lru.Len()}
}
