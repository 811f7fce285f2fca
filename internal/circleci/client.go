package circleci

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	circleAPIBaseURL = "https://circleci.com/api/v2"
	defaultTimeout   = 30 * time.Second
)

// CircleCIClient handles CircleCI API operations
type CircleCIClient struct {
	httpClient *http.Client
	token      string
	baseURL    string
}

// NewCircleCIClient creates a new CircleCI client
func NewCircleCIClient(token string) *CircleCIClient {
	return NewCircleCIClientWithBaseURL(token, circleAPIBaseURL)
}

// NewCircleCIClientWithBaseURL creates a client for a CircleCI server installation or a test server
func NewCircleCIClientWithBaseURL(token, baseURL string) *CircleCIClient {
	return &CircleCIClient{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// VerifyProjectAccess checks that the token can read the project
func (c *CircleCIClient) VerifyProjectAccess(ctx context.Context, projectSlug string) error {
	var project struct {
		Slug string `json:"slug"`
	}
	if err := c.get(ctx, "/project/"+projectSlug, nil, &project); err != nil {
		return fmt.Errorf("project %s not accessible: %w", projectSlug, err)
	}
	return nil
}

// FetchPipelines returns the project's pipelines created at or after since, newest first
func (c *CircleCIClient) FetchPipelines(ctx context.Context, projectSlug string, since time.Time) ([]Pipeline, error) {
	var allPipelines []Pipeline
	pageToken := ""

	for {
		var page Page[Pipeline]
		if err := c.get(ctx, "/project/"+projectSlug+"/pipeline", pageQuery(pageToken), &page); err != nil {
			return nil, fmt.Errorf("failed to fetch pipelines for project %s: %w", projectSlug, err)
		}

		for _, pipeline := range page.Items {
			if !pipeline.CreatedAt.Before(since) {
				allPipelines = append(allPipelines, pipeline)
			}
		}

		if page.NextPageToken == "" || len(page.Items) == 0 {
			break
		}
		// Pipelines are listed newest first
		if page.Items[len(page.Items)-1].CreatedAt.Before(since) {
			break
		}
		pageToken = page.NextPageToken
	}

	return allPipelines, nil
}

// FetchWorkflows returns the workflows of a pipeline
func (c *CircleCIClient) FetchWorkflows(ctx context.Context, pipelineID string) ([]Workflow, error) {
	workflows, err := fetchAll[Workflow](ctx, c, "/pipeline/"+pipelineID+"/workflow")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflows for pipeline %s: %w", pipelineID, err)
	}
	return workflows, nil
}

// FetchJobs returns the jobs of a workflow
func (c *CircleCIClient) FetchJobs(ctx context.Context, workflowID string) ([]Job, error) {
	jobs, err := fetchAll[Job](ctx, c, "/workflow/"+workflowID+"/job")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs for workflow %s: %w", workflowID, err)
	}
	return jobs, nil
}

// FetchTestMetadata returns the test results stored by a job
func (c *CircleCIClient) FetchTestMetadata(ctx context.Context, projectSlug string, jobNumber int) ([]TestMetadata, error) {
	tests, err := fetchAll[TestMetadata](ctx, c, fmt.Sprintf("/project/%s/%d/tests", projectSlug, jobNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tests for job %d: %w", jobNumber, err)
	}
	return tests, nil
}

// Close cleans up the client (no-op for HTTP client)
func (c *CircleCIClient) Close() error {
	return nil
}

func fetchAll[T any](ctx context.Context, c *CircleCIClient, path string) ([]T, error) {
	var all []T
	pageToken := ""

	for {
		var page Page[T]
		if err := c.get(ctx, path, pageQuery(pageToken), &page); err != nil {
			return nil, err
		}

		all = append(all, page.Items...)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return all, nil
}

func pageQuery(pageToken string) url.Values {
	if pageToken == "" {
		return nil
	}
	return url.Values{"page-token": []string{pageToken}}
}

func (c *CircleCIClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Circle-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d for URL %s: %s", resp.StatusCode, endpoint, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
