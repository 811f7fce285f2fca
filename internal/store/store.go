// Package store persists test identities and execution history in an embedded BadgerDB.
//
// Key layout:
//
//	test/<test id>                                   JSON flaky.TestIdentity
//	rec/<escaped project id>/<unix nanos, 20 digits>/<uuid>   JSON flaky.ExecutionRecord
//
// Record keys sort by creation time within a project, so a time-range fetch is a single
// prefix seek.
//
// Test ids are global. A test registered under one project stays registered there when
// another project records executions with the same id, so ListTests only reports it for the
// first project. Records are still kept per project.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

const (
	testPrefix   = "test/"
	recordPrefix = "rec/"
)

// Config holds configuration for the store
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for tests and one-shot analyses.
	InMemory bool

	SyncWrites bool
}

// DefaultConfig returns a persistent configuration rooted at path
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store is a BadgerDB backed test history store. It is safe for concurrent use.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens the store described by cfg
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{log: log.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &Store{db: db, log: log.With().Str("component", "store").Logger()}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// PutTest registers a test identity. A new identity is stored as given; an existing one only
// takes the new project, name and type and keeps its enabled flag and config, which change
// through WriteTestConfig alone.
func (s *Store) PutTest(ctx context.Context, identity flaky.TestIdentity) error {
	if identity.ID == "" {
		return errors.New("test id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := getIdentity(txn, identity.ID)
		if errors.Is(err, flaky.ErrNotFound) {
			return putIdentity(txn, &identity)
		}
		if err != nil {
			return err
		}
		existing.ProjectID = identity.ProjectID
		existing.Name = identity.Name
		existing.Type = identity.Type
		return putIdentity(txn, existing)
	})
}

// AppendRecords stores execution records for a project. Tests seen for the first time are
// registered as enabled identities named after their most recent record.
func (s *Store) AppendRecords(ctx context.Context, projectID string, records []flaky.ExecutionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	latest := make(map[string]flaky.ExecutionRecord)
	var order []string
	for _, record := range records {
		if record.TestID == "" {
			return errors.New("execution record without test id")
		}
		prev, seen := latest[record.TestID]
		if !seen {
			order = append(order, record.TestID)
		}
		if !seen || !record.CreatedAt.Before(prev.CreatedAt) {
			latest[record.TestID] = record
		}
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range order {
			_, err := txn.Get(testKey(id))
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			r := latest[id]
			if err := putIdentity(txn, &flaky.TestIdentity{
				ID:        id,
				ProjectID: projectID,
				Name:      r.TestName,
				Type:      r.TestType,
				Enabled:   true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register tests: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode record for test %s: %w", record.TestID, err)
		}
		if err := wb.Set(recordKey(projectID, record.CreatedAt), data); err != nil {
			return fmt.Errorf("failed to write record for test %s: %w", record.TestID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}

	s.log.Debug().Str("project", projectID).Int("records", len(records)).Int("tests", len(order)).Msg("appended records")
	return nil
}

// FetchExecutionRecords returns the project's records created at or after since, oldest first
func (s *Store) FetchExecutionRecords(ctx context.Context, projectID string, since time.Time) ([]flaky.ExecutionRecord, error) {
	prefix := recordProjectPrefix(projectID)
	start := append([]byte(prefix), timeSegment(since)...)

	records := []flaky.ExecutionRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(prefix)})
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record flaky.ExecutionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("failed to decode record %s: %w", it.Item().Key(), err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records for project %s: %w", projectID, err)
	}
	return records, nil
}

// ReadTestConfig returns the identity for testID
func (s *Store) ReadTestConfig(ctx context.Context, testID string) (*flaky.TestIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var identity *flaky.TestIdentity
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		identity, err = getIdentity(txn, testID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// WriteTestConfig replaces the config and enabled flag of an existing test
func (s *Store) WriteTestConfig(ctx context.Context, testID string, config *flaky.ConfigMap, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		identity, err := getIdentity(txn, testID)
		if err != nil {
			return err
		}
		identity.Config = config
		identity.Enabled = enabled
		return putIdentity(txn, identity)
	})
}

// ListTests returns every test identity of a project, ordered by test id
func (s *Store) ListTests(ctx context.Context, projectID string) ([]flaky.TestIdentity, error) {
	tests := []flaky.TestIdentity{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(testPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var identity flaky.TestIdentity
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &identity)
			}); err != nil {
				return fmt.Errorf("failed to decode test %s: %w", it.Item().Key(), err)
			}
			if identity.ProjectID == projectID {
				tests = append(tests, identity)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tests for project %s: %w", projectID, err)
	}
	return tests, nil
}

func getIdentity(txn *badger.Txn, testID string) (*flaky.TestIdentity, error) {
	item, err := txn.Get(testKey(testID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("test %s: %w", testID, flaky.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read test %s: %w", testID, err)
	}
	var identity flaky.TestIdentity
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &identity)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode test %s: %w", testID, err)
	}
	return &identity, nil
}

func putIdentity(txn *badger.Txn, identity *flaky.TestIdentity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode test %s: %w", identity.ID, err)
	}
	return txn.Set(testKey(identity.ID), data)
}

func testKey(testID string) []byte {
	return []byte(testPrefix + testID)
}

// Project ids such as "owner/repo" contain the separator, so they are path escaped.
func recordProjectPrefix(projectID string) string {
	return recordPrefix + url.PathEscape(projectID) + "/"
}

func recordKey(projectID string, createdAt time.Time) []byte {
	return []byte(recordProjectPrefix(projectID) + timeSegment(createdAt) + "/" + uuid.NewString())
}

func timeSegment(t time.Time) string {
	if t.Before(time.Unix(0, 0)) {
		return fmt.Sprintf("%020d", 0)
	}
	return fmt.Sprintf("%020d", t.UnixNano())
}

// badgerLogger adapts zerolog to badger's Logger interface
type badgerLogger struct {
	log zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

// Badger's info output is startup chatter; keep it at debug.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}
