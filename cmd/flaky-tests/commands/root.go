// Package commands implements the flaky-tests command line.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reillywatson/flakewatch/internal/config"
	"github.com/reillywatson/flakewatch/internal/flaky"
	"github.com/reillywatson/flakewatch/internal/logging"
	"github.com/reillywatson/flakewatch/internal/store"
)

const Version = "0.1.0"

// app holds the state shared by every subcommand of one invocation
type app struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *flaky.Metrics

	out    io.Writer
	errOut io.Writer
	in     io.Reader
}

// Execute runs the flaky-tests command against the process's standard streams
func Execute() error {
	return NewRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute()
}

// NewRootCommand builds the command tree. Logs go to errOut, results to out.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut, in: in}

	rootCmd := &cobra.Command{
		Use:   "flaky-tests",
		Short: "Detect, score and quarantine flaky tests",
		Long: `flaky-tests analyses the execution history of a project's tests, scores how flaky
each test is, guesses the root cause and lets you quarantine the worst offenders.

History can come from the local store, GitHub Actions, Cloud Deploy verify jobs or InfluxDB.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.writeMetrics()
		},
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); overrides log_level")

	rootCmd.AddCommand(newAnalyzeCommand(a))
	rootCmd.AddCommand(newQuarantineCommand(a))
	rootCmd.AddCommand(newUnquarantineCommand(a))
	rootCmd.AddCommand(newIngestCommand(a))

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, a.errOut)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.registry = prometheus.NewRegistry()
	a.metrics = flaky.NewMetrics(a.registry)
	return nil
}

// writeMetrics dumps the invocation's metrics for the node-exporter textfile collector
func (a *app) writeMetrics() error {
	if a.cfg == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", a.cfg.Metrics.Textfile, err)
	}
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	cfg := store.DefaultConfig(a.cfg.Store.Path)
	if a.cfg.Store.InMemory {
		cfg = store.InMemoryConfig()
	}
	return store.Open(cfg, a.log)
}
