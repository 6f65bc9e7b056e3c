package cache

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 15 * time.Minute
)

const keyFlags = purell.FlagsSafe |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery

// Cache is a concurrent-safe, size-bounded store whose entries expire after
// a fixed TTL.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

// New creates a Cache. Non-positive size or ttl fall back to the defaults.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get retrieves a value from the cache.
// It returns the value and true if the key exists and has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set adds or updates a value in the cache, evicting the least recently used
// entry when full.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Delete removes a value from the cache.
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Len counts live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Key builds the cache key for an analysis of productURL for purpose.
// URLs differing only in case, default port, fragment or query order share
// a key. Unparseable URLs are keyed verbatim.
func Key(productURL, purpose string) string {
	canonical, err := purell.NormalizeURLString(strings.TrimSpace(productURL), keyFlags)
	if err != nil {
		canonical = strings.TrimSpace(productURL)
	}
	return strings.ToLower(strings.TrimSpace(purpose)) + ":" + canonical
}
