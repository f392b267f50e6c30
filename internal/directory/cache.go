// ABOUTME: Thread-safe TTL cache for holder-rank lookups
// ABOUTME: Size-bounded with oldest-first eviction so the chain RPC is not hammered

package directory

import (
	"container/list"
	"sync"
	"time"
)

// rankEntry stores a cached rank with its insertion time and list element.
type rankEntry struct {
	accountID string
	rank      int
	timestamp time.Time
	element   *list.Element
}

// rankCache provides a thread-safe, TTL-based, size-limited cache for
// on-chain holder ranks. Uses a doubly-linked list to maintain insertion
// order for O(1) eviction.
type rankCache struct {
	mu      sync.RWMutex
	entries map[string]*rankEntry
	order   *list.List // account IDs in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// newRankCache creates a cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func newRankCache(ttl time.Duration, maxSize int) *rankCache {
	c := &rankCache{
		entries: make(map[string]*rankEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the cached rank for an account, or false if absent or expired.
func (c *rankCache) Get(accountID string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[accountID]
	if !ok {
		return 0, false
	}
	if time.Since(entry.timestamp) >= c.ttl {
		return 0, false
	}
	return entry.rank, true
}

// Put records a rank. If the cache is at capacity the oldest entry is evicted.
func (c *rankCache) Put(accountID string, rank int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	// If the account already exists, refresh it and move to back
	if entry, exists := c.entries[accountID]; exists {
		entry.rank = rank
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(accountID)
	c.entries[accountID] = &rankEntry{
		accountID: accountID,
		rank:      rank,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *rankCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	accountID, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, accountID)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *rankCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *rankCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for accountID, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, accountID)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *rankCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
