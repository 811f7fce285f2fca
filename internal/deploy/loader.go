// Package deploy loads verify job history from Google Cloud Deploy. Each delivery pipeline
// is a project and each pipeline target's verify job is one test.
package deploy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

// VerifyRunSource lists verify runs and looks up their logs
type VerifyRunSource interface {
	ListVerifyRuns(ctx context.Context, pipeline string, since time.Time) ([]VerifyRun, error)
	FirstErrorLog(ctx context.Context, run VerifyRun) (string, error)
}

// Loader implements flaky.HistoryLoader over Cloud Deploy verify jobs
type Loader struct {
	source VerifyRunSource
	log    zerolog.Logger
}

// NewLoader creates a loader reading from source
func NewLoader(source VerifyRunSource, log zerolog.Logger) *Loader {
	return &Loader{
		source: source,
		log:    log.With().Str("component", "deploy_loader").Logger(),
	}
}

// FetchExecutionRecords returns one record per finished verify run of the pipeline projectID
func (l *Loader) FetchExecutionRecords(ctx context.Context, projectID string, since time.Time) ([]flaky.ExecutionRecord, error) {
	runs, err := l.source.ListVerifyRuns(ctx, projectID, since)
	if err != nil {
		return nil, err
	}

	records := []flaky.ExecutionRecord{}
	for _, run := range runs {
		record, ok := RunRecord(run)
		if !ok {
			continue
		}

		if record.Status == flaky.StatusFailed && record.ErrorMessage == nil {
			message, err := l.source.FirstErrorLog(ctx, run)
			if err != nil {
				l.log.Warn().Err(err).Str("job_run", run.JobRunName).Msg("failed to look up verify logs")
			} else if message != "" {
				record.ErrorMessage = &message
			}
		}
		records = append(records, record)
	}

	l.log.Debug().Str("pipeline", projectID).Int("runs", len(runs)).Int("records", len(records)).Msg("loaded verify runs")
	return records, nil
}

// RunRecord converts a verify run into an execution record. It reports false for runs that
// have not finished.
func RunRecord(run VerifyRun) (flaky.ExecutionRecord, bool) {
	status, ok := stateStatus[run.State]
	if !ok {
		return flaky.ExecutionRecord{}, false
	}

	record := flaky.ExecutionRecord{
		TestID:    run.TestID(),
		TestName:  "verify " + run.Target,
		TestType:  TestType,
		Status:    status,
		CreatedAt: run.CreateTime,
	}
	if !run.StartTime.IsZero() && !run.EndTime.IsZero() && !run.EndTime.Before(run.StartTime) {
		durationMs := float64(run.EndTime.Sub(run.StartTime).Milliseconds())
		record.DurationMs = &durationMs
	}
	if run.FailureMessage != "" {
		message := run.FailureMessage
		record.ErrorMessage = &message
	}
	return record, true
}
