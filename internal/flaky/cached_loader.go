package flaky

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/reillywatson/flakewatch/internal/cache"
)

// CachedLoader wraps a HistoryLoader with caching.
//
// Windows are widened to the start of the hour so repeated analyses within the hour share
// one cache entry; records older than the requested since are filtered out again on return.
// An entry is a snapshot: records created after it was written are not returned until it
// expires, so the TTL bounds how stale an analysis can be.
type CachedLoader struct {
	loader HistoryLoader
	cache  cache.Cache
	kb     *cache.KeyBuilder
	source string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedLoader creates a caching loader. source names the wrapped loader in cache keys.
func NewCachedLoader(loader HistoryLoader, cacheImpl cache.Cache, source string, ttl time.Duration, log zerolog.Logger) *CachedLoader {
	return &CachedLoader{
		loader: loader,
		cache:  cacheImpl,
		kb:     cache.NewKeyBuilder("flakewatch"),
		source: source,
		ttl:    ttl,
		log:    log.With().Str("component", "cached_loader").Str("source", source).Logger(),
	}
}

// FetchExecutionRecords fetches records with caching. Errors from the wrapped loader are
// returned unmodified and never cached.
func (c *CachedLoader) FetchExecutionRecords(ctx context.Context, projectID string, since time.Time) ([]ExecutionRecord, error) {
	window := since.Truncate(time.Hour)
	key := c.kb.ExecutionRecordsKey(c.source, projectID, window)

	var cached []ExecutionRecord
	if err := c.cache.Get(key, &cached); err == nil {
		c.log.Debug().Str("project", projectID).Int("records", len(cached)).Msg("cache hit")
		return recordsSince(cached, since), nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.log.Warn().Err(err).Str("project", projectID).Msg("cache read failed")
	}

	records, err := c.loader.FetchExecutionRecords(ctx, projectID, window)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(key, records, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("project", projectID).Msg("failed to cache execution records")
	}

	return recordsSince(records, since), nil
}

func recordsSince(records []ExecutionRecord, since time.Time) []ExecutionRecord {
	filtered := make([]ExecutionRecord, 0, len(records))
	for _, record := range records {
		if !record.CreatedAt.Before(since) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}
