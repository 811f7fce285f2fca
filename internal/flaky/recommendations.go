package flaky

import (
	"fmt"
	"slices"
	"strings"
)

const quarantineAdvice = "Consider test quarantine until fixed"

var categoryRecommendations = map[Category][]string{
	CategoryTiming: {
		"Increase timeouts for slow operations",
		"Add explicit waits for asynchronous operations",
		"Prefer polling for a condition over fixed delays",
	},
	CategoryNetwork: {
		"Add retry logic for network calls",
		"Mock external network dependencies",
		"Add a circuit breaker around unreliable endpoints",
	},
	CategoryState: {
		"Ensure tests are isolated from each other",
		"Reset state before each test",
		"Avoid shared mutable state between tests",
	},
	CategoryExternal: {
		"Mock external service calls",
		"Use service virtualization for third-party dependencies",
		"Provide fallback test data when external services are unavailable",
	},
	CategoryRaceCondition: {
		"Add synchronization primitives around shared resources",
		"Use atomic operations for shared counters and flags",
		"Review concurrent code paths for ordering assumptions",
	},
	CategoryUnknown: {
		"Review the test for sources of non-determinism",
		"Add more specific assertions to narrow down failures",
		"Increase logging to capture failure context",
	},
}

// Recommendations returns remediation guidance for a test
func Recommendations(category Category, criteria []string) []string {
	recommendations, ok := categoryRecommendations[category]
	if !ok {
		recommendations = categoryRecommendations[CategoryUnknown]
	}
	recommendations = slices.Clone(recommendations)

	if slices.Contains(criteria, CriterionAlternation) {
		recommendations = append(recommendations, quarantineAdvice)
	}
	return recommendations
}

var healthRecommendations = map[Health][]string{
	HealthDegraded: {
		"Flakiness is rising: schedule time to stabilize the highest scoring tests",
		"Track flaky test counts over time to catch regressions early",
	},
	HealthCritical: {
		"Flakiness is critical: prioritize stabilizing flaky tests before new feature work",
		"Quarantine the highest scoring tests to restore trust in the pipeline",
		"Assign owners to each flaky test and review progress regularly",
	},
}

var generalRecommendations = []string{
	"Enable automatic retries for known flaky tests",
	"Run tests in parallel with proper isolation to surface hidden dependencies",
}

// ProjectRecommendations returns project level guidance. flakyTests must be sorted by score, highest first.
func ProjectRecommendations(flakyTests []FlakyTestResult, health Health) []string {
	var recommendations []string

	if category, count := dominantCategory(flakyTests); count > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"Most flaky tests (%d of %d) are categorized as %s: focus on %s issues first",
			count, len(flakyTests), category, categoryDescription(category)))
	}

	recommendations = append(recommendations, healthRecommendations[health]...)
	recommendations = append(recommendations, generalRecommendations...)
	return recommendations
}

// dominantCategory returns the most frequent category. Ties go to the category seen first.
func dominantCategory(results []FlakyTestResult) (Category, int) {
	counts := make(map[Category]int)
	var order []Category
	for _, result := range results {
		if counts[result.Category] == 0 {
			order = append(order, result.Category)
		}
		counts[result.Category]++
	}

	var best Category
	bestCount := 0
	for _, category := range order {
		if counts[category] > bestCount {
			best = category
			bestCount = counts[category]
		}
	}
	return best, bestCount
}

func categoryDescription(category Category) string {
	return strings.ReplaceAll(strings.ToLower(string(category)), "_", " ")
}
