package flaky

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for flakiness analysis and quarantine actions.
type Metrics struct {
	AnalysesTotal         *prometheus.CounterVec // Analyses by result (success, error)
	AnalysisDuration      prometheus.Histogram   // Wall time of AnalyzeProject, loader included
	TestsAnalyzed         prometheus.Counter     // Tests that met the minimum run count
	FlakyTests            *prometheus.GaugeVec   // Flaky tests in the latest report, per project
	QuarantineTransitions *prometheus.CounterVec // Quarantine state changes by action
}

// NewMetrics creates and registers the metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flakewatch_analyses_total",
			Help: "Total number of project flakiness analyses",
		}, []string{"result"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flakewatch_analysis_duration_seconds",
			Help:    "Duration of project flakiness analyses",
			Buckets: prometheus.DefBuckets,
		}),
		TestsAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flakewatch_tests_analyzed_total",
			Help: "Total number of tests with enough executions to be scored",
		}),
		FlakyTests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flakewatch_flaky_tests",
			Help: "Number of flaky tests found by the latest analysis of a project",
		}, []string{"project"}),
		QuarantineTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flakewatch_quarantine_transitions_total",
			Help: "Total number of quarantine and unquarantine actions",
		}, []string{"action"}),
	}

	reg.MustRegister(m.AnalysesTotal)
	reg.MustRegister(m.AnalysisDuration)
	reg.MustRegister(m.TestsAnalyzed)
	reg.MustRegister(m.FlakyTests)
	reg.MustRegister(m.QuarantineTransitions)

	return m
}
