package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reillywatson/flakewatch/internal/config"
	"github.com/reillywatson/flakewatch/internal/gotest"
	"github.com/reillywatson/flakewatch/internal/influx"
)

func newIngestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Record test executions",
	}

	var sink string
	gotestCmd := &cobra.Command{
		Use:   "gotest <project> [file]",
		Short: "Record the results of `go test -json` output",
		Long: `Reads go test -json output from file, or stdin when no file is given, and records one
execution per finished test under project.`,
		Example: "  go test -json -count=5 ./... | flaky-tests ingest gotest my-service",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = a.in
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[1], err)
				}
				defer f.Close()
				r = f
			}
			return a.runIngestGoTest(cmd, args[0], r, sink)
		},
	}
	gotestCmd.Flags().StringVar(&sink, "sink", config.SourceStore, "Where to record executions: store or influx")

	cmd.AddCommand(gotestCmd)
	return cmd
}

func (a *app) runIngestGoTest(cmd *cobra.Command, projectID string, r io.Reader, sink string) error {
	records, err := gotest.Parse(r, time.Now())
	if err != nil {
		return err
	}

	switch sink {
	case config.SourceStore:
		s, err := a.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.AppendRecords(cmd.Context(), projectID, records); err != nil {
			return err
		}

	case config.SourceInflux:
		loader, err := influx.NewLoader(a.cfg.InfluxClientConfig(), a.log)
		if err != nil {
			return err
		}
		defer loader.Close()
		if err := loader.WriteRecords(cmd.Context(), projectID, records); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown sink %q", sink)
	}

	cmd.Printf("Recorded %d executions for %s\n", len(records), projectID)
	return nil
}
