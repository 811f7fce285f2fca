package flaky

import (
	"sort"
	"time"
)

// TestRuns holds every execution of one test, oldest first
type TestRuns struct {
	TestID   string
	TestName string
	TestType string
	Records  []ExecutionRecord
}

// GroupByTest groups records by test ID and drops tests with fewer than minRuns executions.
// Groups are returned in the order their test first appears in records.
func GroupByTest(records []ExecutionRecord, minRuns int) []TestRuns {
	index := make(map[string]int)
	var groups []TestRuns

	for _, record := range records {
		i, ok := index[record.TestID]
		if !ok {
			i = len(groups)
			index[record.TestID] = i
			groups = append(groups, TestRuns{TestID: record.TestID})
		}
		groups[i].Records = append(groups[i].Records, record)
	}

	var results []TestRuns
	for _, group := range groups {
		if len(group.Records) < minRuns {
			continue
		}

		sort.SliceStable(group.Records, func(i, j int) bool {
			return group.Records[i].CreatedAt.Before(group.Records[j].CreatedAt)
		})

		// Names and types can change over time; report the most recent ones
		latest := group.Records[len(group.Records)-1]
		group.TestName = latest.TestName
		group.TestType = latest.TestType

		results = append(results, group)
	}

	return results
}

// LastFlake returns the time of the most recent failed -> passed transition, if any
func (r TestRuns) LastFlake() *time.Time {
	for i := len(r.Records) - 1; i > 0; i-- {
		if r.Records[i-1].Status == StatusFailed && r.Records[i].Status == StatusPassed {
			t := r.Records[i].CreatedAt
			return &t
		}
	}
	return nil
}
