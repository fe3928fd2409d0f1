// Package ttlcache provides a small expiring key→value store with a
// capacity bound. Entries are dropped at TTL or evicted oldest-first when
// the cache is full; a background reaper keeps memory bounded independent
// of traffic.
package ttlcache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is an injectable TTL cache. Tests instantiate isolated instances;
// production wires one per process.
type Cache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
	ttl time.Duration
}

// New builds a cache holding at most capacity entries, each living at most
// ttl. A capacity of zero means unbounded (TTL eviction only).
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		lru: expirable.NewLRU[K, V](capacity, nil, ttl),
		ttl: ttl,
	}
}

// Get returns the live value for key. Expired entries are never served.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value under key, evicting the oldest entry when at capacity.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.lru.Remove(key)
}

// Len returns the number of unexpired entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// TTL reports the configured entry lifetime.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.lru.Purge()
}
