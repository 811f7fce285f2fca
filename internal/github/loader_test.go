package github

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v39/github"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// MockGitHubClient implements GitHubClientInterface for testing
type MockGitHubClient struct {
	mu             sync.Mutex
	runs           []*github.WorkflowRun
	jobs           map[int64][]*github.WorkflowJob
	annotations    map[int64][]*github.CheckRunAnnotation
	err            error
	annotationErr  error
	owner, repo    string
	annotationHits int
}

func (m *MockGitHubClient) FetchWorkflowRuns(ctx context.Context, owner, repo string, since time.Time) ([]*github.WorkflowRun, error) {
	m.owner, m.repo = owner, repo
	return m.runs, m.err
}

func (m *MockGitHubClient) FetchWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]*github.WorkflowJob, error) {
	return m.jobs[runID], nil
}

func (m *MockGitHubClient) FetchCheckRunAnnotations(ctx context.Context, owner, repo string, checkRunID int64) ([]*github.CheckRunAnnotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotationHits++
	return m.annotations[checkRunID], m.annotationErr
}

func workflowRun(id int64, name string, created time.Time) *github.WorkflowRun {
	return &github.WorkflowRun{ID: github.Int64(id), Name: github.String(name), CreatedAt: &github.Timestamp{Time: created}}
}

func workflowJob(id int64, name, status, conclusion string, started time.Time, took time.Duration) *github.WorkflowJob {
	job := &github.WorkflowJob{
		ID:     github.Int64(id),
		Name:   github.String(name),
		Status: github.String(status),
	}
	if conclusion != "" {
		job.Conclusion = github.String(conclusion)
	}
	if !started.IsZero() {
		job.StartedAt = &github.Timestamp{Time: started}
		job.CompletedAt = &github.Timestamp{Time: started.Add(took)}
	}
	return job
}

func TestJobRecord(t *testing.T) {
	run := workflowRun(1, "CI", baseTime)

	tests := []struct {
		name       string
		job        *github.WorkflowJob
		wantOK     bool
		wantStatus flaky.Status
	}{
		{"success", workflowJob(1, "unit", "completed", "success", baseTime, time.Minute), true, flaky.StatusPassed},
		{"failure", workflowJob(1, "unit", "completed", "failure", baseTime, time.Minute), true, flaky.StatusFailed},
		{"timed out", workflowJob(1, "unit", "completed", "timed_out", baseTime, time.Minute), true, flaky.StatusFailed},
		{"cancelled", workflowJob(1, "unit", "completed", "cancelled", baseTime, time.Minute), true, flaky.StatusFailed},
		{"skipped", workflowJob(1, "unit", "completed", "skipped", baseTime, 0), true, flaky.StatusSkipped},
		{"neutral", workflowJob(1, "unit", "completed", "neutral", baseTime, 0), true, flaky.StatusSkipped},
		{"action required", workflowJob(1, "unit", "completed", "action_required", baseTime, 0), false, ""},
		{"in progress", workflowJob(1, "unit", "in_progress", "", baseTime, 0), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, ok := JobRecord(run, tt.job)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantStatus, record.Status)
				assert.Equal(t, "CI/unit", record.TestID)
				assert.Equal(t, TestType, record.TestType)
			}
		})
	}
}

func TestJobRecord_TimingFields(t *testing.T) {
	run := workflowRun(1, "CI", baseTime)

	record, ok := JobRecord(run, workflowJob(1, "unit", "completed", "success", baseTime.Add(time.Minute), 90*time.Second))
	require.True(t, ok)
	assert.Equal(t, baseTime.Add(time.Minute), record.CreatedAt)
	require.NotNil(t, record.DurationMs)
	assert.Equal(t, 90000.0, *record.DurationMs)

	record, ok = JobRecord(run, workflowJob(1, "unit", "completed", "skipped", time.Time{}, 0))
	require.True(t, ok)
	assert.Equal(t, baseTime, record.CreatedAt)
	assert.Nil(t, record.DurationMs)
}

func TestLoader_FetchExecutionRecords(t *testing.T) {
	client := &MockGitHubClient{
		runs: []*github.WorkflowRun{
			workflowRun(2, "CI", baseTime.Add(time.Hour)),
			workflowRun(1, "CI", baseTime),
		},
		jobs: map[int64][]*github.WorkflowJob{
			1: {
				workflowJob(10, "unit", "completed", "success", baseTime, time.Minute),
				workflowJob(11, "e2e", "completed", "failure", baseTime, 2*time.Minute),
			},
			2: {
				workflowJob(20, "unit", "completed", "success", baseTime.Add(time.Hour), time.Minute),
				workflowJob(21, "e2e", "queued", "", time.Time{}, 0),
			},
		},
		annotations: map[int64][]*github.CheckRunAnnotation{
			11: {
				{AnnotationLevel: github.String("warning"), Message: github.String("Node 16 is deprecated")},
				{AnnotationLevel: github.String("failure"), Message: github.String("connect ETIMEDOUT 10.0.0.7:443")},
				{AnnotationLevel: github.String("failure"), Message: github.String("Process completed with exit code 1.")},
			},
		},
	}
	loader := NewLoader(client, "", zerolog.Nop())

	records, err := loader.FetchExecutionRecords(context.Background(), "acme/web", baseTime)
	require.NoError(t, err)
	assert.Equal(t, "acme", client.owner)
	assert.Equal(t, "web", client.repo)
	require.Len(t, records, 3)

	var failed []flaky.ExecutionRecord
	for _, record := range records {
		if record.Status == flaky.StatusFailed {
			failed = append(failed, record)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "CI/e2e", failed[0].TestID)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Equal(t, "connect ETIMEDOUT 10.0.0.7:443\nProcess completed with exit code 1.", *failed[0].ErrorMessage)
	assert.Equal(t, 1, client.annotationHits, "annotations are only fetched for failed jobs")
}

func TestLoader_AnnotationErrorsAreNotFatal(t *testing.T) {
	client := &MockGitHubClient{
		runs: []*github.WorkflowRun{workflowRun(1, "CI", baseTime)},
		jobs: map[int64][]*github.WorkflowJob{
			1: {workflowJob(10, "unit", "completed", "failure", baseTime, time.Minute)},
		},
		annotationErr: errors.New("rate limited"),
	}
	loader := NewLoader(client, "", zerolog.Nop())

	records, err := loader.FetchExecutionRecords(context.Background(), "acme/web", baseTime)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].ErrorMessage)
}

func TestLoader_RunErrorIsReturned(t *testing.T) {
	runErr := errors.New("failed to fetch workflow runs: boom")
	loader := NewLoader(&MockGitHubClient{err: runErr}, "", zerolog.Nop())

	_, err := loader.FetchExecutionRecords(context.Background(), "acme/web", baseTime)
	assert.ErrorIs(t, err, runErr)
}

func TestLoader_ProjectIDs(t *testing.T) {
	client := &MockGitHubClient{}
	loader := NewLoader(client, "acme", zerolog.Nop())

	records, err := loader.FetchExecutionRecords(context.Background(), "web", baseTime)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "acme", client.owner)

	for _, projectID := range []string{"", "a/b/c", "/web", "acme/"} {
		_, err := loader.FetchExecutionRecords(context.Background(), projectID, baseTime)
		assert.Error(t, err, projectID)
	}

	_, err = NewLoader(client, "", zerolog.Nop()).FetchExecutionRecords(context.Background(), "web", baseTime)
	assert.Error(t, err)
}

func TestLoader_FeedsAnalyzer(t *testing.T) {
	var runs []*github.WorkflowRun
	jobs := make(map[int64][]*github.WorkflowJob)
	for i := int64(0); i < 8; i++ {
		created := baseTime.Add(time.Duration(i) * time.Hour)
		conclusion := "success"
		if i%2 == 1 {
			conclusion = "failure"
		}
		runs = append(runs, workflowRun(i, "CI", created))
		jobs[i] = []*github.WorkflowJob{workflowJob(100+i, "e2e", "completed", conclusion, created, time.Minute)}
	}
	opts := flaky.DefaultOptions()
	opts.TimeRangeDays = 36500
	analyzer := flaky.NewAnalyzer(NewLoader(&MockGitHubClient{runs: runs, jobs: jobs}, "", zerolog.Nop()), zerolog.Nop())

	report, err := analyzer.AnalyzeProject(context.Background(), "acme/web", opts)
	require.NoError(t, err)
	require.Len(t, report.FlakyTests, 1)
	assert.Equal(t, "CI/e2e", report.FlakyTests[0].TestID)
	assert.Equal(t, 70, report.FlakyTests[0].FlakinessScore)
}
