package flaky

import (
	"github.com/montanaflynn/stats"
)

// ScoreSummary describes the distribution of flakiness scores in a report
type ScoreSummary struct {
	Count  int
	Mean   float64
	Median float64
	Max    int
	Min    int
}

// SummarizeScores calculates summary statistics over the scores of results
func SummarizeScores(results []FlakyTestResult) ScoreSummary {
	if len(results) == 0 {
		return ScoreSummary{}
	}

	scores := make(stats.Float64Data, 0, len(results))
	for _, result := range results {
		scores = append(scores, float64(result.FlakinessScore))
	}

	// Errors are only returned for empty input
	mean, _ := scores.Mean()
	median, _ := scores.Median()
	max, _ := scores.Max()
	min, _ := scores.Min()

	return ScoreSummary{
		Count:  len(results),
		Mean:   mean,
		Median: median,
		Max:    int(max),
		Min:    int(min),
	}
}
