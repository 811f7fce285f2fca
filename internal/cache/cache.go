package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common cache errors
var (
	ErrCacheMiss = errors.New("cache miss")
)

// Cache defines the interface for all cache implementations
type Cache interface {
	// Get retrieves a value from the cache
	Get(key string, value interface{}) error

	// Set stores a value in the cache with an optional TTL
	Set(key string, value interface{}, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error

	// Close cleans up the cache resources
	Close() error
}

// Entry represents a cached entry with metadata
type Entry struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func newEntry(value interface{}, ttl time.Duration) (*Entry, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	entry := &Entry{
		Data:      data,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		expiresAt := entry.CreatedAt.Add(ttl)
		entry.ExpiresAt = &expiresAt
	}
	return entry, nil
}

// IsExpired checks if the cache entry has expired
func (e *Entry) IsExpired() bool {
	if e.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*e.ExpiresAt)
}

// KeyBuilder helps build consistent cache keys
type KeyBuilder struct {
	prefix string
}

func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{prefix: prefix}
}

// ExecutionRecordsKey identifies the records of a project loaded from a source since a point in time
func (b *KeyBuilder) ExecutionRecordsKey(source, projectID string, since time.Time) string {
	return b.buildKey("records", source, projectID, since.UTC().Format(time.RFC3339))
}

func (b *KeyBuilder) buildKey(parts ...string) string {
	return b.prefix + ":" + strings.Join(parts, ":")
}

// Backend names accepted by New
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// New creates a cache for the named backend. dir is only used by the file backend and
// defaults to the user cache directory; size is only used by the memory backend.
func New(backend, dir string, size int) (Cache, error) {
	switch backend {
	case BackendFile, "":
		if dir == "" {
			return NewFileCache("flakewatch")
		}
		return NewFileCacheWithDir(dir)
	case BackendMemory:
		return NewMemoryCache(size)
	case BackendNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// Noop is a Cache that never stores anything
type Noop struct{}

func (Noop) Get(string, interface{}) error { return ErrCacheMiss }

func (Noop) Set(string, interface{}, time.Duration) error { return nil }

func (Noop) Delete(string) error { return nil }

func (Noop) Close() error { return nil }
