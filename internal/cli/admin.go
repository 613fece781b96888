package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// AdminResult is the JSON payload of the destroy and reset commands.
type AdminResult struct {
	Path      string `json:"path"`
	Destroyed bool   `json:"destroyed"`
	Recreated bool   `json:"recreated"`
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the store file and its journal",
		Long: `Delete the SQLite file together with its -wal and -shm files.

The schema version marker is kept, so the next open creates an empty store.

Example:
  nostrcache destroy --db ./cache.sqlite --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			if !yes {
				return out.Fail(ExitCommandError, ErrCodeConfig, "refusing to destroy the store without --yes", nil)
			}
			return runDestroy(rootOpts, cmd, false)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	return cmd
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Destroy the store and recreate it empty",
		Long: `Destroy the store and immediately reopen it empty.

Example:
  nostrcache reset --db ./cache.sqlite`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDestroy(rootOpts, cmd, true)
		},
	}
	return cmd
}

func runDestroy(opts *RootOptions, cmd *cobra.Command, recreate bool) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	path := s.ctrl.Store().Path()
	if recreate {
		err = s.ctrl.ResetForTesting(cmd.Context())
	} else {
		err = s.ctrl.Destroy(cmd.Context())
	}
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeFailed, "failed to destroy store", err)
	}

	result := AdminResult{Path: path, Destroyed: true, Recreated: recreate}
	return s.out.Success(result, func(w io.Writer) {
		if recreate {
			successf(w, "Recreated %s", describeStore(s.cfg))
			return
		}
		successf(w, "Destroyed %s", describeStore(s.cfg))
	})
}
