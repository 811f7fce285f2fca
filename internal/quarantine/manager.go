// Package quarantine applies and reverts the quarantine flag on test identities.
//
// Quarantine is always an explicit administrative action. The analyzer's ShouldQuarantine
// field is advisory and nothing in this package reacts to it.
//
// QuarantineTest and UnquarantineTest read the test's config, change the quarantine keys and
// write the whole config back. Two concurrent calls for the same test can therefore lose one
// update; callers that need strict ordering must serialize calls per test ID.
package quarantine

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

// Config keys owned by this package. All other keys belong to callers and are never touched.
const (
	KeyQuarantined   = "quarantined"
	KeyQuarantinedAt = "quarantinedAt"
)

// State is the quarantine state of a test
type State string

const (
	StateActive      State = "ACTIVE"
	StateQuarantined State = "QUARANTINED"
)

// ConfigStore persists test identities and their configuration.
// Both methods return an error wrapping flaky.ErrNotFound for unknown tests.
type ConfigStore interface {
	ReadTestConfig(ctx context.Context, testID string) (*flaky.TestIdentity, error)
	WriteTestConfig(ctx context.Context, testID string, config *flaky.ConfigMap, enabled bool) error
}

// Manager performs quarantine transitions
type Manager struct {
	store   ConfigStore
	clock   clock.Clock
	metrics *flaky.Metrics
	log     zerolog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the clock used for quarantinedAt timestamps
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMetrics counts transitions in m's QuarantineTransitions
func WithMetrics(metrics *flaky.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a Manager backed by store
func NewManager(store ConfigStore, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		clock: clock.New(),
		log:   log.With().Str("component", "quarantine").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// QuarantineTest disables a test and marks it quarantined. Calling it again re-stamps quarantinedAt.
func (m *Manager) QuarantineTest(ctx context.Context, testID string) error {
	identity, err := m.store.ReadTestConfig(ctx, testID)
	if err != nil {
		return fmt.Errorf("failed to read config for test %s: %w", testID, err)
	}

	config := identity.Config.Clone()
	config.Set(KeyQuarantined, true)
	config.Set(KeyQuarantinedAt, m.clock.Now().UTC().Format(time.RFC3339))

	if err := m.store.WriteTestConfig(ctx, testID, config, false); err != nil {
		return fmt.Errorf("failed to write config for test %s: %w", testID, err)
	}

	m.record("quarantine")
	m.log.Info().Str("test", testID).Msg("test quarantined")
	return nil
}

// UnquarantineTest re-enables a test and removes the quarantine markers
func (m *Manager) UnquarantineTest(ctx context.Context, testID string) error {
	identity, err := m.store.ReadTestConfig(ctx, testID)
	if err != nil {
		return fmt.Errorf("failed to read config for test %s: %w", testID, err)
	}

	config := identity.Config.Clone()
	config.Delete(KeyQuarantined)
	config.Delete(KeyQuarantinedAt)

	if err := m.store.WriteTestConfig(ctx, testID, config, true); err != nil {
		return fmt.Errorf("failed to write config for test %s: %w", testID, err)
	}

	m.record("unquarantine")
	m.log.Info().Str("test", testID).Msg("test unquarantined")
	return nil
}

func (m *Manager) record(action string) {
	if m.metrics != nil {
		m.metrics.QuarantineTransitions.WithLabelValues(action).Inc()
	}
}

// StateOf returns the quarantine state recorded on identity
func StateOf(identity *flaky.TestIdentity) State {
	if quarantined, ok := identity.Config.Get(KeyQuarantined); ok && quarantined == true {
		return StateQuarantined
	}
	return StateActive
}

// QuarantinedAt returns when identity was quarantined, if it is
func QuarantinedAt(identity *flaky.TestIdentity) (time.Time, bool) {
	value, ok := identity.Config.Get(KeyQuarantinedAt)
	if !ok {
		return time.Time{}, false
	}
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsQuarantined reports whether identity carries the quarantine marker
func IsQuarantined(identity *flaky.TestIdentity) bool {
	return StateOf(identity) == StateQuarantined
}
