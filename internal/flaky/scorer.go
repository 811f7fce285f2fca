package flaky

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Criteria labels attached to a test when a heuristic matches
const (
	CriterionAlternation        = "High pass/fail alternation"
	CriterionInconsistentRate   = "Inconsistent pass rate"
	CriterionDurationVariance   = "High duration variance"
	CriterionInconsistentErrors = "Inconsistent error messages"
)

const (
	MaxScore             = 100
	QuarantineScoreFloor = 50 // Scores strictly above this recommend quarantine
)

// Score is the outcome of scoring one test's executions
type Score struct {
	Raw      float64  // Sum of all contributions, before clamping
	Value    int      // Raw clamped to [0, 100] and rounded
	PassRate float64  // Percentage of PASSED executions, unrounded
	Criteria []string // Labels of the heuristics that matched, in evaluation order
}

// heuristic is one independent detection rule. evaluate reports whether the rule matched
// and how much it adds to the score.
type heuristic struct {
	label    string
	evaluate func(records []ExecutionRecord) (float64, bool)
}

// heuristics are all evaluated for every test; there is no early exit
var heuristics = []heuristic{
	{CriterionAlternation, alternation},
	{CriterionInconsistentRate, passRateCentrality},
	{CriterionDurationVariance, durationVariance},
	{CriterionInconsistentErrors, inconsistentErrors},
}

// ScoreRuns computes the flakiness score of a test's executions, which must be sorted oldest first
func ScoreRuns(records []ExecutionRecord) Score {
	score := Score{
		PassRate: passRate(records),
		Criteria: []string{},
	}

	for _, h := range heuristics {
		contribution, matched := h.evaluate(records)
		if !matched {
			continue
		}
		score.Raw += contribution
		score.Criteria = append(score.Criteria, h.label)
	}

	score.Value = int(math.Round(math.Max(0, math.Min(MaxScore, score.Raw))))
	return score
}

// ShouldQuarantine reports whether a score is high enough to recommend quarantine
func ShouldQuarantine(score int) bool {
	return score > QuarantineScoreFloor
}

func passRate(records []ExecutionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	passed := 0
	for _, record := range records {
		if record.Status == StatusPassed {
			passed++
		}
	}
	return float64(passed) / float64(len(records)) * 100
}

func alternation(records []ExecutionRecord) (float64, bool) {
	if len(records) < 2 {
		return 0, false
	}
	transitions := 0
	for i := 1; i < len(records); i++ {
		if records[i].Status != records[i-1].Status {
			transitions++
		}
	}
	rate := float64(transitions) / float64(len(records)-1)
	if rate > 0.3 {
		return rate * 40, true
	}
	return 0, false
}

// passRateCentrality peaks at 30 for a 50% pass rate. The constants are tuned, keep them literal.
func passRateCentrality(records []ExecutionRecord) (float64, bool) {
	rate := passRate(records)
	if rate > 5 && rate < 95 {
		return 30 - math.Abs(rate-50)*0.4, true
	}
	return 0, false
}

func durationVariance(records []ExecutionRecord) (float64, bool) {
	var durations []float64
	for _, record := range records {
		if record.DurationMs != nil {
			durations = append(durations, *record.DurationMs)
		}
	}
	if len(durations) <= 2 {
		return 0, false
	}

	mean, err := stats.Mean(durations)
	if err != nil || mean == 0 {
		return 0, false
	}
	stddev, err := stats.StandardDeviationPopulation(durations)
	if err != nil {
		return 0, false
	}

	cv := stddev / mean
	if cv > 0.5 {
		return cv * 20, true
	}
	return 0, false
}

func inconsistentErrors(records []ExecutionRecord) (float64, bool) {
	messages := errorMessages(records)
	unique := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		unique[message] = struct{}{}
	}
	if len(unique) > 1 && float64(len(unique)) < float64(len(messages))*0.5 {
		return 15, true
	}
	return 0, false
}

// errorMessages returns the non-empty error messages of records, oldest first
func errorMessages(records []ExecutionRecord) []string {
	var messages []string
	for _, record := range records {
		if record.ErrorMessage != nil && *record.ErrorMessage != "" {
			messages = append(messages, *record.ErrorMessage)
		}
	}
	return messages
}
