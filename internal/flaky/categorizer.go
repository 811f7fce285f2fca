package flaky

import (
	"slices"
	"strings"
)

// categoryRule maps evidence to a category. Rules are checked in order and the first match wins,
// since error text often matches more than one category.
type categoryRule struct {
	category Category
	keywords []string // Any keyword in the lower-cased error text matches
	criteria []string // Any of these criteria matches
}

var categoryRules = []categoryRule{
	{CategoryTiming, []string{"timeout", "timed out"}, []string{CriterionDurationVariance}},
	{CategoryNetwork, []string{"network", "connection", "econnrefused", "socket"}, nil},
	{CategoryState, []string{"state", "expected", "not found"}, nil},
	{CategoryExternal, []string{"external", "api", "service"}, nil},
	{CategoryRaceCondition, []string{"race", "concurrent"}, []string{CriterionAlternation}},
}

// Categorize infers the root cause category of a test from its error messages and matched criteria
func Categorize(errorMessages []string, criteria []string) Category {
	text := strings.ToLower(strings.Join(errorMessages, " "))

	for _, rule := range categoryRules {
		if rule.matches(text, criteria) {
			return rule.category
		}
	}
	return CategoryUnknown
}

func (r categoryRule) matches(text string, criteria []string) bool {
	for _, keyword := range r.keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	for _, criterion := range r.criteria {
		if slices.Contains(criteria, criterion) {
			return true
		}
	}
	return false
}
