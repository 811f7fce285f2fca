// Package github loads test execution history from GitHub Actions. Every completed job of a
// workflow run counts as one execution of the test "<workflow>/<job>".
package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v39/github"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

const defaultParallelism = 4

// Loader implements flaky.HistoryLoader over GitHub Actions
type Loader struct {
	client       GitHubClientInterface
	defaultOwner string
	parallelism  int
	log          zerolog.Logger
}

// NewLoader creates a loader. Project ids are "owner/repo"; a bare "repo" uses defaultOwner.
func NewLoader(client GitHubClientInterface, defaultOwner string, log zerolog.Logger) *Loader {
	return &Loader{
		client:       client,
		defaultOwner: defaultOwner,
		parallelism:  defaultParallelism,
		log:          log.With().Str("component", "github_loader").Logger(),
	}
}

// FetchExecutionRecords returns one record per completed job of every workflow run created
// at or after since
func (l *Loader) FetchExecutionRecords(ctx context.Context, projectID string, since time.Time) ([]flaky.ExecutionRecord, error) {
	owner, repo, err := l.splitProject(projectID)
	if err != nil {
		return nil, err
	}

	runs, err := l.client.FetchWorkflowRuns(ctx, owner, repo, since)
	if err != nil {
		return nil, err
	}
	l.log.Debug().Str("project", projectID).Int("runs", len(runs)).Msg("fetched workflow runs")

	perRun := make([][]flaky.ExecutionRecord, len(runs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for i, run := range runs {
		g.Go(func() error {
			records, err := l.runRecords(ctx, owner, repo, run)
			if err != nil {
				return err
			}
			perRun[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := []flaky.ExecutionRecord{}
	for _, r := range perRun {
		records = append(records, r...)
	}
	return records, nil
}

func (l *Loader) runRecords(ctx context.Context, owner, repo string, run *github.WorkflowRun) ([]flaky.ExecutionRecord, error) {
	jobs, err := l.client.FetchWorkflowJobs(ctx, owner, repo, run.GetID())
	if err != nil {
		return nil, err
	}

	var records []flaky.ExecutionRecord
	for _, job := range jobs {
		record, ok := JobRecord(run, job)
		if !ok {
			continue
		}
		if record.Status == flaky.StatusFailed {
			message := l.failureMessage(ctx, owner, repo, job.GetID())
			if message != "" {
				record.ErrorMessage = &message
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// failureMessage joins the failure annotations of a job. Annotation errors only cost the
// message, so they are logged and not returned.
func (l *Loader) failureMessage(ctx context.Context, owner, repo string, jobID int64) string {
	annotations, err := l.client.FetchCheckRunAnnotations(ctx, owner, repo, jobID)
	if err != nil {
		l.log.Warn().Err(err).Int64("job", jobID).Msg("failed to fetch annotations")
		return ""
	}

	var messages []string
	for _, annotation := range annotations {
		if annotation.GetAnnotationLevel() == annotationFailure && annotation.GetMessage() != "" {
			messages = append(messages, annotation.GetMessage())
		}
	}
	return strings.Join(messages, "\n")
}

// JobRecord converts a workflow job into an execution record. It reports false for jobs
// that have not completed or whose conclusion is not a test outcome.
func JobRecord(run *github.WorkflowRun, job *github.WorkflowJob) (flaky.ExecutionRecord, bool) {
	if job.GetStatus() != "completed" {
		return flaky.ExecutionRecord{}, false
	}
	status, ok := conclusionStatus[job.GetConclusion()]
	if !ok {
		return flaky.ExecutionRecord{}, false
	}

	record := flaky.ExecutionRecord{
		TestID:    run.GetName() + "/" + job.GetName(),
		TestName:  run.GetName() + " / " + job.GetName(),
		TestType:  TestType,
		Status:    status,
		CreatedAt: run.GetCreatedAt().Time,
	}

	started, completed := job.GetStartedAt().Time, job.GetCompletedAt().Time
	if !started.IsZero() {
		record.CreatedAt = started
		if !completed.IsZero() && !completed.Before(started) {
			durationMs := float64(completed.Sub(started).Milliseconds())
			record.DurationMs = &durationMs
		}
	}
	return record, true
}

func (l *Loader) splitProject(projectID string) (string, string, error) {
	owner, repo, found := strings.Cut(projectID, "/")
	if !found {
		owner, repo = l.defaultOwner, projectID
	}
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid GitHub project %q: expected owner/repo", projectID)
	}
	return owner, repo, nil
}
