package flaky

import (
	"time"
)

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func record(testID string, status Status, minute int) ExecutionRecord {
	return ExecutionRecord{
		TestID:    testID,
		TestName:  "Test " + testID,
		TestType:  "e2e",
		Status:    status,
		CreatedAt: baseTime.Add(time.Duration(minute) * time.Minute),
	}
}

func withError(r ExecutionRecord, message string) ExecutionRecord {
	r.ErrorMessage = &message
	return r
}

func withDuration(r ExecutionRecord, ms float64) ExecutionRecord {
	r.DurationMs = &ms
	return r
}

// sequence builds one record per status, a minute apart
func sequence(testID string, statuses ...Status) []ExecutionRecord {
	records := make([]ExecutionRecord, 0, len(statuses))
	for i, status := range statuses {
		records = append(records, record(testID, status, i))
	}
	return records
}

func repeat(status Status, n int) []Status {
	statuses := make([]Status, n)
	for i := range statuses {
		statuses[i] = status
	}
	return statuses
}

func alternatingStatuses(n int) []Status {
	statuses := make([]Status, n)
	for i := range statuses {
		if i%2 == 0 {
			statuses[i] = StatusPassed
		} else {
			statuses[i] = StatusFailed
		}
	}
	return statuses
}
