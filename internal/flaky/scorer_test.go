package flaky

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestScoreRuns(t *testing.T) {
	var varying []ExecutionRecord
	for i, ms := range []float64{100, 100, 100, 1000} {
		varying = append(varying, withDuration(record("t", StatusPassed, i), ms))
	}

	var mixedErrors []ExecutionRecord
	for i, message := range []string{"boom", "boom", "boom", "bang", "bang", "bang"} {
		mixedErrors = append(mixedErrors, withError(record("t", StatusFailed, i), message))
	}

	tests := []struct {
		name     string
		records  []ExecutionRecord
		score    int
		criteria []string
	}{
		{
			name:     "all passed",
			records:  sequence("t", repeat(StatusPassed, 10)...),
			score:    0,
			criteria: []string{},
		},
		{
			name:     "all failed",
			records:  sequence("t", repeat(StatusFailed, 10)...),
			score:    0,
			criteria: []string{},
		},
		{
			name:     "strict alternation",
			records:  sequence("t", alternatingStatuses(8)...),
			score:    70, // 40 alternation + 30 centrality at 50%
			criteria: []string{CriterionAlternation, CriterionInconsistentRate},
		},
		{
			name:     "single flip at 40% pass rate",
			records:  sequence("t", StatusFailed, StatusFailed, StatusFailed, StatusPassed, StatusPassed),
			score:    26, // alternation 0.25 stays below 0.3
			criteria: []string{CriterionInconsistentRate},
		},
		{
			name:     "duration variance",
			records:  varying,
			score:    24, // cv = 389.71 / 325
			criteria: []string{CriterionDurationVariance},
		},
		{
			name:     "inconsistent errors",
			records:  mixedErrors,
			score:    15,
			criteria: []string{CriterionInconsistentErrors},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := ScoreRuns(tt.records)
			assert.Equal(t, tt.score, score.Value)
			assert.Equal(t, tt.criteria, score.Criteria)
		})
	}
}

func TestScoreRuns_AlternationContribution(t *testing.T) {
	// 50% pass rate for every even length so centrality is a constant 30
	for _, n := range []int{6, 8, 10, 20} {
		score := ScoreRuns(sequence("t", alternatingStatuses(n)...))
		assert.InDelta(t, 70.0, score.Raw, 1e-9, "n=%d", n)
		assert.Contains(t, score.Criteria, CriterionAlternation)
	}
}

func TestScoreRuns_DurationGuards(t *testing.T) {
	t.Run("two durations are not enough", func(t *testing.T) {
		records := []ExecutionRecord{
			withDuration(record("t", StatusPassed, 0), 1),
			withDuration(record("t", StatusPassed, 1), 1000),
			record("t", StatusPassed, 2),
		}
		assert.NotContains(t, ScoreRuns(records).Criteria, CriterionDurationVariance)
	})

	t.Run("zero mean", func(t *testing.T) {
		var records []ExecutionRecord
		for i := 0; i < 5; i++ {
			records = append(records, withDuration(record("t", StatusPassed, i), 0))
		}
		score := ScoreRuns(records)
		assert.Equal(t, 0, score.Value)
		assert.Empty(t, score.Criteria)
	})
}

func TestScoreRuns_ErrorsNeedRepetition(t *testing.T) {
	// Two distinct messages out of three is too diverse to count as inconsistent
	records := []ExecutionRecord{
		withError(record("t", StatusFailed, 0), "boom"),
		withError(record("t", StatusFailed, 1), "boom"),
		withError(record("t", StatusFailed, 2), "bang"),
	}
	assert.NotContains(t, ScoreRuns(records).Criteria, CriterionInconsistentErrors)
}

func TestShouldQuarantine(t *testing.T) {
	assert.False(t, ShouldQuarantine(0))
	assert.False(t, ShouldQuarantine(50))
	assert.True(t, ShouldQuarantine(51))
	assert.True(t, ShouldQuarantine(100))
}

func TestScoreRuns_Bounded(t *testing.T) {
	statuses := []Status{StatusPassed, StatusFailed, StatusSkipped, Status("ERROR")}
	messages := []string{"timeout", "connection refused", "expected 1 got 2", ""}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "n")
		records := make([]ExecutionRecord, 0, n)
		for i := 0; i < n; i++ {
			r := record("t", rapid.SampledFrom(statuses).Draw(t, "status"), i)
			if rapid.Bool().Draw(t, "hasDuration") {
				r = withDuration(r, rapid.Float64Range(0, 1e6).Draw(t, "duration"))
			}
			if rapid.Bool().Draw(t, "hasError") {
				r = withError(r, rapid.SampledFrom(messages).Draw(t, "error"))
			}
			records = append(records, r)
		}

		score := ScoreRuns(records)
		if score.Value < 0 || score.Value > MaxScore {
			t.Fatalf("score %d out of bounds (raw %f)", score.Value, score.Raw)
		}
		if len(score.Criteria) > len(heuristics) {
			t.Fatalf("more criteria than heuristics: %v", score.Criteria)
		}
	})
}
