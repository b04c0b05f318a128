package resolv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c := newCache(0)
	defer c.Close()

	key := cacheKey{name: "example.com", kind: KindA}
	answers := []Answer{{Data: "1.2.3.4", Kind: KindA, TTL: 60}}
	c.set(key, answers)

	got, ok := c.get(key)
	require.True(t, ok)
	require.Equal(t, answers, got)
}

func TestCacheZeroTTLNotStored(t *testing.T) {
	c := newCache(0)
	defer c.Close()

	key := cacheKey{name: "example.com", kind: KindA}
	c.set(key, []Answer{{Data: "1.2.3.4", Kind: KindA, TTL: 0}})

	_, ok := c.get(key)
	require.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := newCache(0)
	defer c.Close()

	key := cacheKey{name: "example.com", kind: KindA}
	c.set(key, []Answer{{Data: "1.2.3.4", Kind: KindA, TTL: 1}})
	require.True(t, c.has(key))

	// Force expiry by rewriting the entry with a TTL that has already
	// elapsed, rather than sleeping a full second in the test.
	c.mu.Lock()
	e := c.items[key]
	e.expiry = time.Now().Add(-time.Second)
	c.items[key] = e
	c.mu.Unlock()

	_, ok := c.get(key)
	require.False(t, ok)
	require.False(t, c.has(key))
}

func TestCacheMinPositiveTTL(t *testing.T) {
	min, ok := minPositiveTTL([]Answer{
		{TTL: 300},
		{TTL: 60},
		{TTL: TTLUnset},
	})
	require.True(t, ok)
	require.Equal(t, int32(60), min)

	_, ok = minPositiveTTL([]Answer{{TTL: 0}, {TTL: TTLUnset}})
	require.False(t, ok)
}

func TestCacheDelete(t *testing.T) {
	c := newCache(0)
	defer c.Close()

	key := cacheKey{name: "example.com", kind: KindA}
	c.set(key, []Answer{{Data: "1.2.3.4", Kind: KindA, TTL: 60}})
	c.delete(key)

	_, ok := c.get(key)
	require.False(t, ok)
}
