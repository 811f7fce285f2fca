// Package circleci loads test execution history from the test results CircleCI jobs store
// with store_test_results. Every stored result is one execution of "<classname>.<name>".
package circleci

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

const (
	// TestType tags records loaded from CircleCI
	TestType = "circleci"

	defaultVCS         = "gh"
	defaultParallelism = 4
)

var resultStatus = map[string]flaky.Status{
	"success": flaky.StatusPassed,
	"failure": flaky.StatusFailed,
	"error":   flaky.StatusFailed,
	"skipped": flaky.StatusSkipped,
}

// Client is the part of the CircleCI API the loader reads
type Client interface {
	FetchPipelines(ctx context.Context, projectSlug string, since time.Time) ([]Pipeline, error)
	FetchWorkflows(ctx context.Context, pipelineID string) ([]Workflow, error)
	FetchJobs(ctx context.Context, workflowID string) ([]Job, error)
	FetchTestMetadata(ctx context.Context, projectSlug string, jobNumber int) ([]TestMetadata, error)
}

// Loader implements flaky.HistoryLoader over CircleCI test metadata
type Loader struct {
	client      Client
	parallelism int
	log         zerolog.Logger
}

// NewLoader creates a loader
func NewLoader(client Client, log zerolog.Logger) *Loader {
	return &Loader{
		client:      client,
		parallelism: defaultParallelism,
		log:         log.With().Str("component", "circleci_loader").Logger(),
	}
}

// ProjectSlug turns a project id into a CircleCI project slug. "org/repo" is a GitHub
// project; a full "vcs/org/repo" slug is kept as is.
func ProjectSlug(projectID string) (string, error) {
	parts := strings.Split(projectID, "/")
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("invalid CircleCI project %q: expected org/repo or vcs/org/repo", projectID)
		}
	}
	switch len(parts) {
	case 2:
		return defaultVCS + "/" + projectID, nil
	case 3:
		return projectID, nil
	default:
		return "", fmt.Errorf("invalid CircleCI project %q: expected org/repo or vcs/org/repo", projectID)
	}
}

// FetchExecutionRecords returns one record per stored test result of every job in the
// pipelines created at or after since
func (l *Loader) FetchExecutionRecords(ctx context.Context, projectID string, since time.Time) ([]flaky.ExecutionRecord, error) {
	slug, err := ProjectSlug(projectID)
	if err != nil {
		return nil, err
	}

	pipelines, err := l.client.FetchPipelines(ctx, slug, since)
	if err != nil {
		return nil, err
	}
	l.log.Debug().Str("project", projectID).Int("pipelines", len(pipelines)).Msg("fetched pipelines")

	perPipeline := make([][]flaky.ExecutionRecord, len(pipelines))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for i, pipeline := range pipelines {
		g.Go(func() error {
			records, err := l.pipelineRecords(ctx, slug, pipeline)
			if err != nil {
				return err
			}
			perPipeline[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := []flaky.ExecutionRecord{}
	for _, r := range perPipeline {
		records = append(records, r...)
	}
	return records, nil
}

func (l *Loader) pipelineRecords(ctx context.Context, slug string, pipeline Pipeline) ([]flaky.ExecutionRecord, error) {
	workflows, err := l.client.FetchWorkflows(ctx, pipeline.ID)
	if err != nil {
		return nil, err
	}

	var records []flaky.ExecutionRecord
	for _, workflow := range workflows {
		jobs, err := l.client.FetchJobs(ctx, workflow.ID)
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			// approval jobs and jobs that never ran store no results
			if job.JobNumber == nil || job.StartedAt == nil {
				continue
			}
			tests, err := l.client.FetchTestMetadata(ctx, slug, *job.JobNumber)
			if err != nil {
				return nil, err
			}
			createdAt := jobTime(job, pipeline)
			for _, test := range tests {
				if record, ok := TestRecord(test, createdAt); ok {
					records = append(records, record)
				}
			}
		}
	}
	return records, nil
}

func jobTime(job Job, pipeline Pipeline) time.Time {
	switch {
	case job.StoppedAt != nil:
		return *job.StoppedAt
	case job.StartedAt != nil:
		return *job.StartedAt
	default:
		return pipeline.CreatedAt
	}
}

// TestRecord converts a stored test result into an execution record. It reports false for
// results that are not a test outcome.
func TestRecord(test TestMetadata, createdAt time.Time) (flaky.ExecutionRecord, bool) {
	status, ok := resultStatus[test.Result]
	if !ok || test.Name == "" {
		return flaky.ExecutionRecord{}, false
	}

	id := test.Name
	if test.ClassName != "" {
		id = test.ClassName + "." + test.Name
	}

	record := flaky.ExecutionRecord{
		TestID:    id,
		TestName:  test.Name,
		TestType:  TestType,
		Status:    status,
		CreatedAt: createdAt,
	}
	if test.RunTime >= 0 {
		durationMs := test.RunTime * 1000
		record.DurationMs = &durationMs
	}
	if status == flaky.StatusFailed && test.Message != "" {
		message := test.Message
		record.ErrorMessage = &message
	}
	return record, true
}
