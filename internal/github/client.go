package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v39/github"
	"golang.org/x/oauth2"
)

// GitHubClientInterface defines the GitHub Actions operations the loader needs
type GitHubClientInterface interface {
	FetchWorkflowRuns(ctx context.Context, owner, repo string, since time.Time) ([]*github.WorkflowRun, error)
	FetchWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]*github.WorkflowJob, error)
	FetchCheckRunAnnotations(ctx context.Context, owner, repo string, checkRunID int64) ([]*github.CheckRunAnnotation, error)
}

type GitHubClient struct {
	client *github.Client
}

// NewGitHubClient creates a client authenticated with token. An empty token makes
// unauthenticated requests, which GitHub rate limits heavily.
func NewGitHubClient(token string) *GitHubClient {
	if token == "" {
		return &GitHubClient{client: github.NewClient(nil)}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHubClient{
		client: github.NewClient(tc),
	}
}

// NewGitHubClientWithBaseURL creates a client talking to baseURL, e.g. a GitHub Enterprise
// API root or a test server
func NewGitHubClientWithBaseURL(token, baseURL string) (*GitHubClient, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL %q: %w", baseURL, err)
	}

	c := NewGitHubClient(token)
	c.client.BaseURL = u
	return c, nil
}

// FetchWorkflowRuns returns the repository's workflow runs created at or after since, newest first
func (c *GitHubClient) FetchWorkflowRuns(ctx context.Context, owner, repo string, since time.Time) ([]*github.WorkflowRun, error) {
	var allRuns []*github.WorkflowRun
	opts := &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		runs, resp, err := c.client.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch workflow runs: %w", err)
		}

		for _, run := range runs.WorkflowRuns {
			if !run.GetCreatedAt().Before(since) {
				allRuns = append(allRuns, run)
			}
		}

		if resp.NextPage == 0 || len(runs.WorkflowRuns) == 0 {
			break
		}

		// Runs are listed newest first, so once a page ends before since the rest are older
		lastRun := runs.WorkflowRuns[len(runs.WorkflowRuns)-1]
		if lastRun.GetCreatedAt().Before(since) {
			break
		}
		opts.Page = resp.NextPage
	}

	return allRuns, nil
}

// FetchWorkflowJobs returns every job of the latest attempt of a workflow run
func (c *GitHubClient) FetchWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]*github.WorkflowJob, error) {
	var allJobs []*github.WorkflowJob
	opts := &github.ListWorkflowJobsOptions{
		Filter:      "latest",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		jobs, resp, err := c.client.Actions.ListWorkflowJobs(ctx, owner, repo, runID, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch jobs for run %d: %w", runID, err)
		}

		allJobs = append(allJobs, jobs.Jobs...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allJobs, nil
}

// FetchCheckRunAnnotations returns the annotations of a check run. A job's check run shares its id.
func (c *GitHubClient) FetchCheckRunAnnotations(ctx context.Context, owner, repo string, checkRunID int64) ([]*github.CheckRunAnnotation, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	annotations, _, err := c.client.Checks.ListCheckRunAnnotations(ctx, owner, repo, checkRunID, &github.ListOptions{PerPage: 50})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch annotations for check run %d: %w", checkRunID, err)
	}

	return annotations, nil
}
