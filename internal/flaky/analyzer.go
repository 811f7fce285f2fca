package flaky

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HistoryLoader supplies the execution records of a project.
//
// Implementations must return every record created at or after since, in any order.
// A truncated result silently skews every score, so loaders page internally.
type HistoryLoader interface {
	FetchExecutionRecords(ctx context.Context, projectID string, since time.Time) ([]ExecutionRecord, error)
}

// Analyzer produces flakiness reports for projects
type Analyzer struct {
	loader  HistoryLoader
	clock   clock.Clock
	metrics *Metrics
	log     zerolog.Logger
}

// AnalyzerOption configures an Analyzer
type AnalyzerOption func(*Analyzer)

// WithClock sets the clock used for the analysis window and report timestamps
func WithClock(c clock.Clock) AnalyzerOption {
	return func(a *Analyzer) { a.clock = c }
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *Metrics) AnalyzerOption {
	return func(a *Analyzer) { a.metrics = m }
}

// NewAnalyzer creates an Analyzer reading history from loader
func NewAnalyzer(loader HistoryLoader, log zerolog.Logger, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		loader: loader,
		clock:  clock.New(),
		log:    log.With().Str("component", "analyzer").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeProject loads the project's recent history and scores every test in it.
// Loader errors are returned as is and no report is produced.
func (a *Analyzer) AnalyzeProject(ctx context.Context, projectID string, opts Options) (*ProjectFlakinessReport, error) {
	opts = opts.withDefaults()
	start := a.clock.Now()
	since := start.AddDate(0, 0, -opts.TimeRangeDays)

	records, err := a.loader.FetchExecutionRecords(ctx, projectID, since)
	if err != nil {
		a.log.Error().Err(err).Str("project", projectID).Msg("failed to load execution records")
		if a.metrics != nil {
			a.metrics.AnalysesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	report := AnalyzeRecords(projectID, records, opts, start)
	for _, result := range report.FlakyTests {
		a.log.Debug().
			Str("project", projectID).
			Str("test", result.TestID).
			Int("score", result.FlakinessScore).
			Str("category", string(result.Category)).
			Strs("criteria", result.Criteria).
			Msg("flaky test")
	}

	a.log.Info().
		Str("project", projectID).
		Int("records", len(records)).
		Int("tests", report.TotalTests).
		Int("flaky", len(report.FlakyTests)).
		Str("health", string(report.OverallHealth)).
		Msg("analysis complete")

	if a.metrics != nil {
		a.metrics.AnalysesTotal.WithLabelValues("success").Inc()
		a.metrics.AnalysisDuration.Observe(a.clock.Since(start).Seconds())
		a.metrics.TestsAnalyzed.Add(float64(report.TotalTests))
		a.metrics.FlakyTests.WithLabelValues(projectID).Set(float64(len(report.FlakyTests)))
	}

	return report, nil
}

// AnalyzeProjects analyzes several projects concurrently, at most parallelism at a time.
// Reports are returned in the order of projectIDs. The first failure cancels the rest.
func (a *Analyzer) AnalyzeProjects(ctx context.Context, projectIDs []string, opts Options, parallelism int) ([]*ProjectFlakinessReport, error) {
	reports := make([]*ProjectFlakinessReport, len(projectIDs))

	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, projectID := range projectIDs {
		g.Go(func() error {
			report, err := a.AnalyzeProject(ctx, projectID, opts)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// AnalyzeRecords builds a report from an already loaded set of records
func AnalyzeRecords(projectID string, records []ExecutionRecord, opts Options, analyzedAt time.Time) *ProjectFlakinessReport {
	opts = opts.withDefaults()
	tests := GroupByTest(records, opts.MinRuns)

	flakyTests := []FlakyTestResult{}
	for _, runs := range tests {
		result := AnalyzeTest(runs)
		if result.FlakinessScore >= opts.FlakinessThreshold {
			flakyTests = append(flakyTests, result)
		}
	}

	// Stable so that ties keep the order tests were first seen in
	sort.SliceStable(flakyTests, func(i, j int) bool {
		return flakyTests[i].FlakinessScore > flakyTests[j].FlakinessScore
	})

	health := OverallHealth(len(flakyTests), len(tests))

	return &ProjectFlakinessReport{
		ProjectID:       projectID,
		AnalyzedAt:      analyzedAt,
		TotalTests:      len(tests),
		FlakyTests:      flakyTests,
		OverallHealth:   health,
		Recommendations: ProjectRecommendations(flakyTests, health),
	}
}

// AnalyzeTest scores, categorizes and produces recommendations for a single test
func AnalyzeTest(runs TestRuns) FlakyTestResult {
	score := ScoreRuns(runs.Records)
	category := Categorize(errorMessages(runs.Records), score.Criteria)

	return FlakyTestResult{
		TestID:           runs.TestID,
		TestName:         runs.TestName,
		FlakinessScore:   score.Value,
		PassRate:         math.Round(score.PassRate*10) / 10,
		TotalRuns:        len(runs.Records),
		Criteria:         score.Criteria,
		Category:         category,
		Recommendations:  Recommendations(category, score.Criteria),
		ShouldQuarantine: ShouldQuarantine(score.Value),
		LastFlake:        runs.LastFlake(),
	}
}

// OverallHealth grades a project by the share of analyzed tests that are flaky
func OverallHealth(flakyCount, analyzedCount int) Health {
	if analyzedCount == 0 {
		return HealthHealthy
	}
	flakyPercentage := float64(flakyCount) / float64(analyzedCount) * 100
	switch {
	case flakyPercentage < 5:
		return HealthHealthy
	case flakyPercentage < 15:
		return HealthDegraded
	default:
		return HealthCritical
	}
}
