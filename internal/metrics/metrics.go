// Package metrics provides the in-process counters, periodic snapshot task,
// and optional loopback HTTP exposition for the offline queue.
package metrics

import "sync/atomic"

// CacheCounters tracks read-through cache activity.
type CacheCounters struct {
	hits   atomic.Int64
	misses atomic.Int64
	stores atomic.Int64
}

// NewCacheCounters creates zeroed counters.
func NewCacheCounters() *CacheCounters {
	return &CacheCounters{}
}

// Hit records a cache hit.
func (c *CacheCounters) Hit() { c.hits.Add(1) }

// Miss records a cache miss.
func (c *CacheCounters) Miss() { c.misses.Add(1) }

// Store records a cache write.
func (c *CacheCounters) Store() { c.stores.Add(1) }

// CacheCounterSnapshot is a point-in-time copy of the counters.
type CacheCounterSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Stores int64 `json:"stores"`
}

// Snapshot copies the current counter values.
func (c *CacheCounters) Snapshot() CacheCounterSnapshot {
	return CacheCounterSnapshot{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Stores: c.stores.Load(),
	}
}
