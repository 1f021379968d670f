package services

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

// Cache defaults.
const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 5 * time.Minute
)

// ResultCache is a thread-safe LRU of search responses with a TTL.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	items    map[string]*list.Element
	order    *list.List

	// epoch counts purges; see PutIfCurrent.
	epoch uint64
}

type cacheEntry struct {
	key      string
	response domain.SearchResponse
	expires  time.Time
}

// NewResultCache creates a cache holding up to capacity responses for ttl.
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// CacheKey fingerprints everything that shapes a response: the normalised
// query text, the space filter, weights, threshold, limit and citation flags.
func CacheKey(query string, opts domain.SearchOptions) string {
	spaces := append([]string(nil), opts.SpaceKeys...)
	sort.Strings(spaces)

	h := sha256.New()
	fmt.Fprintf(h, "q=%s\n", strings.Join(strings.Fields(strings.ToLower(query)), " "))
	fmt.Fprintf(h, "spaces=%s\n", strings.Join(spaces, ","))
	fmt.Fprintf(h, "w=%g/%g\n", opts.SemanticWeight, opts.KeywordWeight)
	fmt.Fprintf(h, "min=%g\n", opts.MinRelevanceScore)
	fmt.Fprintf(h, "k=%d\n", opts.TopK)
	fmt.Fprintf(h, "cite=%t/%d\n", opts.IncludeCitations, opts.MaxCitationsPerResult)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a live entry.
func (c *ResultCache) Get(key string) (domain.SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return domain.SearchResponse{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.items, key)
		return domain.SearchResponse{}, false
	}
	c.order.MoveToFront(el)
	return entry.response, true
}

// Put stores a response with LRU eviction.
func (c *ResultCache) Put(key string, resp domain.SearchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, resp)
}

func (c *ResultCache) put(key string, resp domain.SearchResponse) {
	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		entry.response = resp
		entry.expires = expires
		return
	}
	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.order.Remove(back)
			delete(c.items, back.Value.(*cacheEntry).key)
		}
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, response: resp, expires: expires})
}

// Purge drops every entry and starts a new epoch.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.epoch++
}

// Epoch returns the current purge epoch.
func (c *ResultCache) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// PutIfCurrent stores resp only if no purge happened since epoch was read.
// A response computed against the index before a purge is never cached
// after it.
func (c *ResultCache) PutIfCurrent(epoch uint64, key string, resp domain.SearchResponse) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.put(key, resp)
	return true
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
