package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

// MemoryCache is the per-process cache tier: a bounded LRU with per-entry
// freshness. It is a best-effort accelerator only; a missing or stale entry
// never affects correctness, only latency. Entries past their TTL remain
// available inside the stale window as fallback candidates.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string]*list.Element
	order       *list.List // front = most recently used
	capacity    int
	ttl         time.Duration
	staleWindow time.Duration

	now func() time.Time
}

type memoryEntry struct {
	key      string
	data     json.RawMessage
	cachedAt time.Time
}

// NewMemoryCache creates a bounded local cache
func NewMemoryCache(capacity int, ttl, staleWindow time.Duration) *MemoryCache {
	return &MemoryCache{
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		capacity:    capacity,
		ttl:         ttl,
		staleWindow: staleWindow,
		now:         time.Now,
	}
}

// Get returns the cached value for key. fresh reports whether the entry is
// within its TTL; a stale-but-present entry is returned with fresh == false.
// Entries past the stale window are evicted and reported absent.
func (c *MemoryCache) Get(key string) (data json.RawMessage, fresh, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.entries[key]
	if !exists {
		return nil, false, false
	}
	entry := el.Value.(*memoryEntry)

	age := c.now().Sub(entry.cachedAt)
	if age > c.ttl+c.staleWindow {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false, false
	}

	c.order.MoveToFront(el)
	return entry.data, age <= c.ttl, true
}

// Set stores a value, evicting the least recently used entry when the cache
// is at capacity.
func (c *MemoryCache) Set(key string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.entries[key]; exists {
		entry := el.Value.(*memoryEntry)
		entry.data = data
		entry.cachedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry).key)
	}

	el := c.order.PushFront(&memoryEntry{
		key:      key,
		data:     data,
		cachedAt: c.now(),
	})
	c.entries[key] = el
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
