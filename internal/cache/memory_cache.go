package cache

import (
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryEntries = 128

// MemoryCache implements Cache with a bounded in-process LRU.
// Values are stored JSON encoded, so callers always get their own copy back.
type MemoryCache struct {
	lru *lru.Cache[string, *Entry]
}

// NewMemoryCache creates a memory cache holding at most size entries
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = defaultMemoryEntries
	}
	l, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &MemoryCache{lru: l}, nil
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string, value interface{}) error {
	entry, ok := c.lru.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	if entry.IsExpired() {
		c.lru.Remove(key)
		return ErrCacheMiss
	}
	if err := json.Unmarshal(entry.Data, value); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return nil
}

// Set stores a value in the cache with an optional TTL
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) error {
	entry, err := newEntry(value, ttl)
	if err != nil {
		return err
	}
	c.lru.Add(key, entry)
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) error {
	c.lru.Remove(key)
	return nil
}

// Close drops every entry
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
