package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/nostrcache/internal/persistence"
	"github.com/roach88/nostrcache/internal/store"
)

// OpenResult is the JSON payload of the open command.
type OpenResult struct {
	Path          string                    `json:"path"`
	InMemory      bool                      `json:"in_memory"`
	SchemaVersion int                       `json:"schema_version"`
	Entities      []persistence.EntityCount `json:"entities"`
}

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open the store, migrating it if its schema is out of date",
		Long: `Open the store through the schema version gate.

A store whose version marker is older than the current schema is destroyed
and recreated empty. Opening an up to date store changes nothing.

Example:
  nostrcache open --db ./cache.sqlite
  NOSTRCACHE_DB=./cache.sqlite nostrcache open --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(rootOpts, cmd)
		},
	}
	return cmd
}

func runOpen(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	counts, err := s.ctrl.Statistics(cmd.Context())
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeFailed, "statistics failed", err)
	}

	st := s.ctrl.Store()
	version, err := store.CurrentVersion(st.Marker())
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeFailed, "failed to read schema version", err)
	}

	result := OpenResult{
		Path:          st.Path(),
		InMemory:      st.InMemory(),
		SchemaVersion: version,
		Entities:      counts,
	}
	return s.out.Success(result, func(w io.Writer) {
		successf(w, "Opened %s (schema version %d)", describeStore(s.cfg), result.SchemaVersion)
		for _, ec := range persistence.NonEmpty(counts) {
			fmt.Fprintf(w, "  %-16s %d\n", ec.Entity, ec.Count)
		}
	})
}
