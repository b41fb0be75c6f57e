// Package pathcache keeps a small in-process map of object-key existence
// answers with a TTL. It fronts the persistent dedup cache during bursts:
// a scan that checks thousands of candidate keys against the same few
// hive prefixes hits memory instead of SQLite for repeats.
//
// Entries answer true or false; an expired or absent entry answers
// "unknown" and the caller falls through to the next tier.
package pathcache

import (
	"sync"
	"time"
)

// DefaultTTL matches the persistent cache's by-key freshness window.
const DefaultTTL = time.Hour

type entry struct {
	exists   bool
	storedAt time.Time
}

// Cache is a TTL map of fully-qualified keys ("bucket/s3_path") to
// existence answers. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry

	// now is swappable for tests.
	now func() time.Time
}

// New returns an empty cache. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get reports the cached answer for a key. ok is false when the key was
// never stored or its entry has expired; expired entries are evicted.
func (c *Cache) Get(bucket, s3Path string) (exists, ok bool) {
	k := bucket + "/" + s3Path
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[k]
	if !found {
		return false, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, k)
		return false, false
	}
	return e.exists, true
}

// Set records an existence answer for a key, restarting its TTL.
func (c *Cache) Set(bucket, s3Path string, exists bool) {
	k := bucket + "/" + s3Path
	c.mu.Lock()
	c.entries[k] = entry{exists: exists, storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops a single key.
func (c *Cache) Invalidate(bucket, s3Path string) {
	k := bucket + "/" + s3Path
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes expired entries and reports how many were dropped.
// Long-running processes call this periodically; lookups already evict
// lazily, so Purge only bounds memory between lookups.
func (c *Cache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}
