package github

import "github.com/reillywatson/flakewatch/internal/flaky"

// TestType marks records produced from GitHub Actions jobs
const TestType = "github-actions"

// annotationFailure is the annotation level GitHub uses for error output
const annotationFailure = "failure"

// conclusionStatus maps a completed job's conclusion to a record status.
// Conclusions missing from the map (action_required, stale) are not test outcomes.
var conclusionStatus = map[string]flaky.Status{
	"success":   flaky.StatusPassed,
	"failure":   flaky.StatusFailed,
	"timed_out": flaky.StatusFailed,
	"cancelled": flaky.StatusFailed,
	"skipped":   flaky.StatusSkipped,
	"neutral":   flaky.StatusSkipped,
}
