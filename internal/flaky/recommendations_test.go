package flaky

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendations(t *testing.T) {
	categories := []Category{
		CategoryTiming, CategoryNetwork, CategoryState,
		CategoryExternal, CategoryRaceCondition, CategoryUnknown,
	}
	for _, category := range categories {
		t.Run(string(category), func(t *testing.T) {
			recommendations := Recommendations(category, nil)
			assert.Len(t, recommendations, 3)
			assert.NotContains(t, recommendations, quarantineAdvice)
		})
	}
}

func TestRecommendations_AlternationAddsQuarantineAdvice(t *testing.T) {
	recommendations := Recommendations(CategoryNetwork, []string{CriterionAlternation})
	require.Len(t, recommendations, 4)
	assert.Equal(t, quarantineAdvice, recommendations[3])

	// The shared table must not be modified by the append
	assert.Len(t, Recommendations(CategoryNetwork, nil), 3)
}

func TestProjectRecommendations(t *testing.T) {
	flakyTests := []FlakyTestResult{
		{TestID: "a", FlakinessScore: 80, Category: CategoryTiming},
		{TestID: "b", FlakinessScore: 60, Category: CategoryNetwork},
		{TestID: "c", FlakinessScore: 40, Category: CategoryNetwork},
	}

	recommendations := ProjectRecommendations(flakyTests, HealthDegraded)
	require.Len(t, recommendations, 1+2+2)
	assert.Equal(t, "Most flaky tests (2 of 3) are categorized as NETWORK: focus on network issues first", recommendations[0])
	assert.Equal(t, generalRecommendations, recommendations[len(recommendations)-2:])
}

func TestProjectRecommendations_TieGoesToHighestScoringCategory(t *testing.T) {
	flakyTests := []FlakyTestResult{
		{TestID: "a", FlakinessScore: 80, Category: CategoryRaceCondition},
		{TestID: "b", FlakinessScore: 60, Category: CategoryNetwork},
	}

	recommendations := ProjectRecommendations(flakyTests, HealthCritical)
	require.Len(t, recommendations, 1+3+2)
	assert.Contains(t, recommendations[0], "RACE_CONDITION")
	assert.Contains(t, recommendations[0], "race condition issues")
}

func TestProjectRecommendations_NoFlakyTests(t *testing.T) {
	assert.Equal(t, generalRecommendations, ProjectRecommendations(nil, HealthHealthy))
}
