package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *GitHubClient {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewGitHubClientWithBaseURL("test-token", server.URL)
	require.NoError(t, err)
	return client
}

func TestFetchWorkflowRuns_StopsAtOlderPage(t *testing.T) {
	var requestedPages []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		page := r.URL.Query().Get("page")
		requestedPages = append(requestedPages, page)

		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/web/actions/runs?page=2>; rel="next"`, r.Host))
			fmt.Fprint(w, `{"total_count":4,"workflow_runs":[
				{"id":4,"name":"CI","created_at":"2026-10-10T12:00:00Z"},
				{"id":3,"name":"CI","created_at":"2026-10-05T12:00:00Z"}]}`)
		case "2":
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/web/actions/runs?page=3>; rel="next"`, r.Host))
			fmt.Fprint(w, `{"total_count":4,"workflow_runs":[
				{"id":2,"name":"CI","created_at":"2026-10-02T12:00:00Z"},
				{"id":1,"name":"CI","created_at":"2026-09-20T12:00:00Z"}]}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	})
	client := newTestClient(t, mux)

	runs, err := client.FetchWorkflowRuns(context.Background(), "acme", "web", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, int64(4), runs[0].GetID())
	assert.Equal(t, int64(2), runs[2].GetID())
	assert.Equal(t, []string{"", "2"}, requestedPages)
}

func TestFetchWorkflowJobs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/actions/runs/42/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "latest", r.URL.Query().Get("filter"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total_count":2,"jobs":[
			{"id":100,"run_id":42,"name":"unit","status":"completed","conclusion":"success",
			 "started_at":"2026-10-10T12:00:00Z","completed_at":"2026-10-10T12:01:30Z"},
			{"id":101,"run_id":42,"name":"e2e","status":"in_progress"}]}`)
	})
	client := newTestClient(t, mux)

	jobs, err := client.FetchWorkflowJobs(context.Background(), "acme", "web", 42)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "unit", jobs[0].GetName())
	assert.Equal(t, "success", jobs[0].GetConclusion())
}

func TestFetchCheckRunAnnotations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/check-runs/100/annotations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"annotation_level":"failure","message":"Process completed with exit code 1."}]`)
	})
	client := newTestClient(t, mux)

	annotations, err := client.FetchCheckRunAnnotations(context.Background(), "acme", "web", 100)
	require.NoError(t, err)
	require.Len(t, annotations, 1)
	assert.Equal(t, "Process completed with exit code 1.", annotations[0].GetMessage())
}

func TestFetchWorkflowRuns_Error(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	})
	client := newTestClient(t, mux)

	_, err := client.FetchWorkflowRuns(context.Background(), "acme", "web", time.Time{})
	assert.ErrorContains(t, err, "failed to fetch workflow runs")
}
