package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

func TestNewResultCache_Defaults(t *testing.T) {
	c := NewResultCache(0, 0)
	assert.Equal(t, DefaultCacheSize, c.capacity)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}

func TestResultCache_GetPut(t *testing.T) {
	c := NewResultCache(4, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("k", domain.SearchResponse{Query: "vpn", TotalResults: 2})
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "vpn", got.Query)
	assert.Equal(t, 2, got.TotalResults)

	c.Put("k", domain.SearchResponse{Query: "vpn", TotalResults: 5})
	got, _ = c.Get("k")
	assert.Equal(t, 5, got.TotalResults)
	assert.Equal(t, 1, c.Len())
}

func TestResultCache_Expires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewResultCache(4, time.Minute)
	c.now = func() time.Time { return now }

	c.Put("k", domain.SearchResponse{Query: "vpn"})
	now = now.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entries are dropped on read")
}

func TestResultCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewResultCache(2, time.Minute)

	c.Put("a", domain.SearchResponse{Query: "a"})
	c.Put("b", domain.SearchResponse{Query: "b"})
	_, _ = c.Get("a")
	c.Put("c", domain.SearchResponse{Query: "c"})

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestResultCache_Purge(t *testing.T) {
	c := NewResultCache(4, time.Minute)
	c.Put("a", domain.SearchResponse{})
	c.Put("b", domain.SearchResponse{})

	c.Purge()
	assert.Zero(t, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestResultCache_PutIfCurrent(t *testing.T) {
	c := NewResultCache(4, time.Minute)

	epoch := c.Epoch()
	assert.True(t, c.PutIfCurrent(epoch, "a", domain.SearchResponse{Query: "a"}))

	stale := c.Epoch()
	c.Purge()
	assert.NotEqual(t, stale, c.Epoch())
	assert.False(t, c.PutIfCurrent(stale, "b", domain.SearchResponse{Query: "b"}))
	_, ok := c.Get("b")
	assert.False(t, ok, "a response from before the purge is dropped")

	assert.True(t, c.PutIfCurrent(c.Epoch(), "b", domain.SearchResponse{Query: "b"}))
	assert.Equal(t, 1, c.Len())
}

func TestResultCache_Concurrent(t *testing.T) {
	c := NewResultCache(8, time.Minute)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i%10))
			c.Put(key, domain.SearchResponse{Query: key})
			c.Get(key)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}

func TestCacheKey(t *testing.T) {
	base := domain.DefaultSearchOptions()
	key := CacheKey("VPN  certificate", base)

	assert.Len(t, key, 64)
	assert.Equal(t, key, CacheKey(" vpn certificate ", base), "case and spacing are normalised")

	spaced := base
	spaced.SpaceKeys = []string{"OPS", "DEV"}
	reordered := base
	reordered.SpaceKeys = []string{"DEV", "OPS"}
	assert.Equal(t, CacheKey("vpn", spaced), CacheKey("vpn", reordered), "space order does not matter")

	variants := map[string]func(*domain.SearchOptions){
		"spaces":         func(o *domain.SearchOptions) { o.SpaceKeys = []string{"OPS"} },
		"semantic":       func(o *domain.SearchOptions) { o.SemanticWeight = 0.7 },
		"keyword":        func(o *domain.SearchOptions) { o.KeywordWeight = 0.3 },
		"threshold":      func(o *domain.SearchOptions) { o.MinRelevanceScore = 0.01 },
		"top_k":          func(o *domain.SearchOptions) { o.TopK = 5 },
		"citations":      func(o *domain.SearchOptions) { o.IncludeCitations = false },
		"citation limit": func(o *domain.SearchOptions) { o.MaxCitationsPerResult = 1 },
	}
	for name, mod := range variants {
		opts := base
		mod(&opts)
		assert.NotEqual(t, CacheKey("vpn", base), CacheKey("vpn", opts), name)
	}
	assert.NotEqual(t, CacheKey("vpn", base), CacheKey("vpn client", base))
}
