package commands

import (
	"github.com/spf13/cobra"

	"github.com/reillywatson/flakewatch/internal/quarantine"
	"github.com/reillywatson/flakewatch/internal/store"
)

func newQuarantineCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Quarantine tests and list quarantined tests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <test-id>",
		Short: "Disable a test and mark it quarantined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuarantineManager(func(m *quarantine.Manager, _ *store.Store) error {
				if err := m.QuarantineTest(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Printf("Quarantined %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <project>",
		Short: "List the quarantined tests of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuarantineManager(func(_ *quarantine.Manager, s *store.Store) error {
				tests, err := s.ListTests(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printQuarantined(a.out, args[0], tests)
				return nil
			})
		},
	})

	return cmd
}

func newUnquarantineCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unquarantine <test-id>",
		Short: "Re-enable a quarantined test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuarantineManager(func(m *quarantine.Manager, _ *store.Store) error {
				if err := m.UnquarantineTest(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Printf("Unquarantined %s\n", args[0])
				return nil
			})
		},
	}
}

// withQuarantineManager runs fn with a manager over the local store
func (a *app) withQuarantineManager(fn func(*quarantine.Manager, *store.Store) error) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(quarantine.NewManager(s, a.log, quarantine.WithMetrics(a.metrics)), s)
}
