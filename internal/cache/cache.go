// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package cache

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/tomtom215/scuttle/internal/metrics"
)

// Cache maps (owner, tag) pairs to frozen response buffers. Owners are the
// module instances mounted at startup; a tag is the 64-bit key a module
// computes for a cacheable variant of its response.
type Cache[K comparable] struct {
	owners map[K]*xsync.MapOf[int64, *Buffer]
	stats  counters
}

type counters struct {
	hits        atomic.Int64
	misses      atomic.Int64
	populations atomic.Int64
	evictions   atomic.Int64
	entries     atomic.Int64
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Populations int64 `json:"populations"`
	Evictions   int64 `json:"evictions"`
	Entries     int64 `json:"entries"`
}

// New creates a response cache for a fixed set of owners.
//
// The owner set is frozen here: one inner concurrent map is created per
// owner and the outer map is never written again, so Get and Populate only
// contend on inner map entries and need no cache-wide lock.
//
// Parameters:
//   - owners: every identity that may later be passed to Get or Populate
//
// Behaviour for identities outside that set:
//   - Get always misses
//   - Populate silently discards the buffer
//
// There is no expiry. Entries live until Evict or EvictAll.
//
// Example:
//
//	c := cache.New([]module.Module{meta, jobs})
//	if buf, ok := c.Get(meta, 42); ok {
//	    return buf.Replay(acceptsGzip, sink)
//	}
func New[K comparable](owners []K) *Cache[K] {
	c := &Cache[K]{owners: make(map[K]*xsync.MapOf[int64, *Buffer], len(owners))}
	for _, o := range owners {
		if _, dup := c.owners[o]; !dup {
			c.owners[o] = xsync.NewMapOf[int64, *Buffer]()
		}
	}
	return c
}

// Get returns the buffer stored for (owner, tag). Tag 0 never matches.
func (c *Cache[K]) Get(owner K, tag int64) (*Buffer, bool) {
	inner, ok := c.owners[owner]
	if !ok || tag == 0 {
		c.stats.misses.Add(1)
		return nil, false
	}
	buf, ok := inner.Load(tag)
	if !ok {
		c.stats.misses.Add(1)
		return nil, false
	}
	c.stats.hits.Add(1)
	return buf, true
}

// Populate stores buf under (owner, tag), replacing any earlier buffer.
// Concurrent populations of the same key are last-write-wins. buf must be
// frozen; tag 0 and unknown owners are ignored.
func (c *Cache[K]) Populate(owner K, tag int64, buf *Buffer) error {
	if buf == nil || !buf.Frozen() {
		return ErrNotFrozen
	}
	inner, ok := c.owners[owner]
	if !ok || tag == 0 {
		return nil
	}
	if _, replaced := inner.LoadAndStore(tag, buf); !replaced {
		c.stats.entries.Add(1)
		metrics.ResponseCacheEntries.Inc()
	}
	c.stats.populations.Add(1)
	return nil
}

// Evict drops every buffer stored for owner and returns how many there were.
func (c *Cache[K]) Evict(owner K) int {
	inner, ok := c.owners[owner]
	if !ok {
		return 0
	}
	return c.clear(inner)
}

// EvictAll drops every stored buffer.
func (c *Cache[K]) EvictAll() int {
	n := 0
	for _, inner := range c.owners {
		n += c.clear(inner)
	}
	return n
}

func (c *Cache[K]) clear(inner *xsync.MapOf[int64, *Buffer]) int {
	n := 0
	inner.Range(func(tag int64, _ *Buffer) bool {
		if _, ok := inner.LoadAndDelete(tag); ok {
			n++
		}
		return true
	})
	if n > 0 {
		c.stats.entries.Add(int64(-n))
		c.stats.evictions.Add(int64(n))
		metrics.ResponseCacheEntries.Sub(float64(n))
		metrics.ResponseCacheEvictions.Add(float64(n))
	}
	return n
}

// Known reports whether owner was part of the set given to New.
func (c *Cache[K]) Known(owner K) bool {
	_, ok := c.owners[owner]
	return ok
}

// Len returns the number of buffers stored for owner.
func (c *Cache[K]) Len(owner K) int {
	inner, ok := c.owners[owner]
	if !ok {
		return 0
	}
	return inner.Size()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K]) Stats() Stats {
	return Stats{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Populations: c.stats.populations.Load(),
		Evictions:   c.stats.evictions.Load(),
		Entries:     c.stats.entries.Load(),
	}
}
