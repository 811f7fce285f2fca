package flaky

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced test identity does not exist
var ErrNotFound = errors.New("test not found")

// Status is the outcome of a single test execution
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// ExecutionRecord represents one execution of a test, as produced by the execution engine
type ExecutionRecord struct {
	TestID       string    `json:"test_id"`
	TestName     string    `json:"test_name"`
	TestType     string    `json:"test_type"`
	Status       Status    `json:"status"`
	DurationMs   *float64  `json:"duration_ms,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TestIdentity is the persisted identity of a test along with its quarantine state
type TestIdentity struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Enabled   bool       `json:"enabled"`
	Config    *ConfigMap `json:"config"`
}

// Category is the inferred root cause of a flaky test
type Category string

const (
	CategoryTiming        Category = "TIMING"
	CategoryNetwork       Category = "NETWORK"
	CategoryState         Category = "STATE"
	CategoryExternal      Category = "EXTERNAL"
	CategoryRaceCondition Category = "RACE_CONDITION"
	CategoryUnknown       Category = "UNKNOWN"
)

// Health is the overall flakiness health of a project
type Health string

const (
	HealthHealthy  Health = "HEALTHY"
	HealthDegraded Health = "DEGRADED"
	HealthCritical Health = "CRITICAL"
)

// FlakyTestResult represents the analysis of a single flaky test
type FlakyTestResult struct {
	TestID           string     `json:"test_id"`
	TestName         string     `json:"test_name"`
	FlakinessScore   int        `json:"flakiness_score"`
	PassRate         float64    `json:"pass_rate"`
	TotalRuns        int        `json:"total_runs"`
	Criteria         []string   `json:"criteria"`
	Category         Category   `json:"category"`
	Recommendations  []string   `json:"recommendations"`
	ShouldQuarantine bool       `json:"should_quarantine"`
	LastFlake        *time.Time `json:"last_flake,omitempty"` // Most recent fail -> pass transition
}

// ProjectFlakinessReport is the result of analyzing every test in a project
type ProjectFlakinessReport struct {
	ProjectID       string            `json:"project_id"`
	AnalyzedAt      time.Time         `json:"analyzed_at"`
	TotalTests      int               `json:"total_tests"` // Tests with at least MinRuns executions
	FlakyTests      []FlakyTestResult `json:"flaky_tests"`
	OverallHealth   Health            `json:"overall_health"`
	Recommendations []string          `json:"recommendations"`
}

// Options controls a project analysis. Negative values fall back to the defaults; zero is
// taken literally, so a zero threshold reports every analyzed test. Start from
// DefaultOptions to override single values.
type Options struct {
	MinRuns            int `json:"min_runs" yaml:"min_runs"`
	TimeRangeDays      int `json:"time_range_days" yaml:"time_range_days"`
	FlakinessThreshold int `json:"flakiness_threshold" yaml:"flakiness_threshold"`
}

const (
	DefaultMinRuns            = 5
	DefaultTimeRangeDays      = 30
	DefaultFlakinessThreshold = 10
)

// DefaultOptions returns the default analysis options
func DefaultOptions() Options {
	return Options{
		MinRuns:            DefaultMinRuns,
		TimeRangeDays:      DefaultTimeRangeDays,
		FlakinessThreshold: DefaultFlakinessThreshold,
	}
}

func (o Options) withDefaults() Options {
	if o.MinRuns < 0 {
		o.MinRuns = DefaultMinRuns
	}
	if o.TimeRangeDays < 0 {
		o.TimeRangeDays = DefaultTimeRangeDays
	}
	if o.FlakinessThreshold < 0 {
		o.FlakinessThreshold = DefaultFlakinessThreshold
	}
	return o
}
