package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/reillywatson/flakewatch/internal/flaky"
	"github.com/reillywatson/flakewatch/internal/quarantine"
)

// printReport outputs a project's flakiness report in a readable format
func printReport(w io.Writer, report *flaky.ProjectFlakinessReport) {
	fmt.Fprintf(w, "Project: %s\n", report.ProjectID)
	fmt.Fprintf(w, "Analyzed At: %s\n", report.AnalyzedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Overall Health: %s (%d flaky of %d analyzed tests)\n", report.OverallHealth, len(report.FlakyTests), report.TotalTests)

	printResults(w, report.FlakyTests)

	if len(report.Recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations:")
		for _, recommendation := range report.Recommendations {
			fmt.Fprintf(w, "  - %s\n", recommendation)
		}
	}
	fmt.Fprintln(w)
}

// printResults outputs the flaky tests, most flaky first
func printResults(w io.Writer, results []flaky.FlakyTestResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No flaky tests found")
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w, "\nFlaky Tests (sorted by score):")
	fmt.Fprintln(w, "==============================")

	for _, result := range results {
		fmt.Fprintf(w, "Test: %s\n", result.TestName)
		if result.TestID != result.TestName {
			fmt.Fprintf(w, "  ID: %s\n", result.TestID)
		}
		fmt.Fprintf(w, "  Score: %d\n", result.FlakinessScore)
		fmt.Fprintf(w, "  Pass Rate: %.1f%% over %d runs\n", result.PassRate, result.TotalRuns)
		fmt.Fprintf(w, "  Category: %s\n", result.Category)
		if len(result.Criteria) > 0 {
			fmt.Fprintf(w, "  Criteria: %s\n", strings.Join(result.Criteria, ", "))
		}
		if result.LastFlake != nil {
			fmt.Fprintf(w, "  Last Flake: %s\n", result.LastFlake.Format("2006-01-02 15:04:05 MST"))
		}
		if result.ShouldQuarantine {
			fmt.Fprintln(w, "  Quarantine: recommended")
		}
		fmt.Fprintln(w)
	}

	printSummaryStatistics(w, results)
}

// printSummaryStatistics displays summary statistics of the flaky test scores
func printSummaryStatistics(w io.Writer, results []flaky.FlakyTestResult) {
	if len(results) == 0 {
		return
	}

	summary := flaky.SummarizeScores(results)

	fmt.Fprintln(w, "Summary Statistics:")
	fmt.Fprintln(w, "------------------")
	fmt.Fprintf(w, "Total Flaky Tests: %d\n", summary.Count)
	fmt.Fprintf(w, "Average Score: %.1f\n", summary.Mean)
	fmt.Fprintf(w, "Median Score: %.1f\n", summary.Median)
	fmt.Fprintf(w, "Most Flaky Test: %d\n", summary.Max)
	fmt.Fprintf(w, "Least Flaky Test: %d\n", summary.Min)
	fmt.Fprintln(w)
}

func printQuarantined(w io.Writer, projectID string, tests []flaky.TestIdentity) {
	count := 0
	for i := range tests {
		test := &tests[i]
		if !quarantine.IsQuarantined(test) {
			continue
		}
		count++
		fmt.Fprintf(w, "%s", test.ID)
		if at, ok := quarantine.QuarantinedAt(test); ok {
			fmt.Fprintf(w, "\tquarantined %s", at.Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Fprintln(w)
	}
	if count == 0 {
		fmt.Fprintf(w, "No quarantined tests in %s\n", projectID)
	}
}
