package commands

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

type analyzeFlags struct {
	source    string
	minRuns   int
	days      int
	threshold int
	json      bool
}

func newAnalyzeCommand(a *app) *cobra.Command {
	flags := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze <project>...",
		Short: "Score the tests of one or more projects for flakiness",
		Long: `Analyze loads each project's recent execution history, scores every test with enough
runs and reports the flaky ones with a probable root cause and recommendations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.source, "source", "", "History source: store, github, circleci, deploy or influx (default from config)")
	cmd.Flags().IntVar(&flags.minRuns, "min-runs", 0, "Minimum executions for a test to be analysed (default from config)")
	cmd.Flags().IntVar(&flags.days, "days", 0, "Days of history to analyse (default from config)")
	cmd.Flags().IntVar(&flags.threshold, "threshold", 0, "Minimum score reported as flaky (default from config)")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Output reports as JSON")

	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, projectIDs []string, flags *analyzeFlags) error {
	source := a.cfg.Source
	if flags.source != "" {
		source = flags.source
	}

	opts := a.cfg.AnalysisOptions()
	if cmd.Flags().Changed("min-runs") {
		opts.MinRuns = flags.minRuns
	}
	if cmd.Flags().Changed("days") {
		opts.TimeRangeDays = flags.days
	}
	if cmd.Flags().Changed("threshold") {
		opts.FlakinessThreshold = flags.threshold
	}

	if opts.MinRuns < 0 || opts.TimeRangeDays < 0 || opts.FlakinessThreshold < 0 {
		return errors.New("--min-runs, --days and --threshold must not be negative")
	}

	h, err := a.openHistory(cmd.Context(), source)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close history source")
		}
	}()

	analyzer := flaky.NewAnalyzer(h.loader, a.log, flaky.WithMetrics(a.metrics))
	reports, err := analyzer.AnalyzeProjects(cmd.Context(), projectIDs, opts, a.cfg.Analysis.Parallelism)
	if err != nil {
		return err
	}

	if flags.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	for _, report := range reports {
		printReport(a.out, report)
	}
	return nil
}
