// ABOUTME: Tests for the holder-rank TTL cache
// ABOUTME: Covers expiry, size-bounded eviction and refresh on re-put

package directory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRankCache_PutGet(t *testing.T) {
	c := newRankCache(time.Minute, 10)
	defer c.Close()

	c.Put("alice.near", 7)

	rank, ok := c.Get("alice.near")
	assert.True(t, ok)
	assert.Equal(t, 7, rank)

	_, ok = c.Get("bob.near")
	assert.False(t, ok)
}

func TestRankCache_TTLExpiry(t *testing.T) {
	c := newRankCache(10*time.Millisecond, 10)
	defer c.Close()

	c.Put("alice.near", 7)
	_, ok := c.Get("alice.near")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("alice.near")
	assert.False(t, ok)
}

func TestRankCache_EvictsOldestAtCapacity(t *testing.T) {
	c := newRankCache(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("acct-%d.near", i), i)
	}

	_, ok := c.Get("acct-0.near")
	assert.False(t, ok, "oldest entry should have been evicted")

	for i := 1; i < 4; i++ {
		_, ok := c.Get(fmt.Sprintf("acct-%d.near", i))
		assert.True(t, ok, "acct-%d should still be cached", i)
	}
}

func TestRankCache_RePutRefreshesOrder(t *testing.T) {
	c := newRankCache(time.Minute, 2)
	defer c.Close()

	c.Put("a.near", 1)
	c.Put("b.near", 2)
	c.Put("a.near", 10) // refresh a, making b the oldest
	c.Put("c.near", 3)  // evicts b

	rank, ok := c.Get("a.near")
	assert.True(t, ok)
	assert.Equal(t, 10, rank)

	_, ok = c.Get("b.near")
	assert.False(t, ok)
}

func TestRankCache_CloseIsIdempotent(t *testing.T) {
	c := newRankCache(time.Minute, 10)
	c.Close()
	c.Close()
}
