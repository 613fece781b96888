package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"
)

// CleanupOptions holds flags for the cleanup command.
type CleanupOptions struct {
	*RootOptions
	Anchor string
}

// CleanupResult is the JSON payload of the cleanup command.
type CleanupResult struct {
	Anchor         string         `json:"anchor"`
	Skipped        bool           `json:"skipped,omitempty"`
	KeptAuthors    int            `json:"kept_authors"`
	KeptEvents     int            `json:"kept_events"`
	DeletedEvents  int            `json:"deleted_events"`
	DeletedAuthors int            `json:"deleted_authors"`
	Deleted        map[string]int `json:"deleted,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete authors and events not relevant to the current user",
		Long: `Run a retention sweep around an anchor public key.

The anchor, the authors it follows, their events and the events those
reference are kept; everything else is deleted in a single commit. The
anchor defaults to --current-user. Without an anchor nothing is deleted.

Example:
  nostrcache cleanup --db ./cache.sqlite --current-user <hex key>
  nostrcache cleanup --anchor <hex key> --follow-depth 2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Anchor, "anchor", "", "public key to keep data around (default: --current-user)")

	return cmd
}

func runCleanup(opts *CleanupOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	anchor := opts.Anchor
	if anchor == "" {
		anchor = s.cfg.CurrentUser
	}
	if anchor == "" {
		return s.out.Success(CleanupResult{Skipped: true}, func(w io.Writer) {
			warningf(w, "No anchor given, nothing deleted")
		})
	}

	s.out.VerboseLog("Sweeping around %s (follow depth %d, reference depth %d)",
		anchor, s.cfg.FollowDepth, s.cfg.ReferenceDepth)
	report, err := s.ctrl.Sweep(cmd.Context(), anchor)
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeFailed, "cleanup failed", err)
	}

	result := CleanupResult{
		Anchor:         anchor,
		KeptAuthors:    report.Plan.KeptAuthors,
		KeptEvents:     report.Plan.KeptEvents,
		DeletedEvents:  len(report.Plan.DeleteEvents),
		DeletedAuthors: len(report.Plan.DeleteAuthors),
		Deleted:        report.Deleted,
		DurationMS:     report.Duration.Milliseconds(),
	}
	return s.out.Success(result, func(w io.Writer) {
		successf(w, "Deleted %d events and %d authors, kept %d events and %d authors (%s)",
			result.DeletedEvents, result.DeletedAuthors, result.KeptEvents, result.KeptAuthors,
			report.Duration.Round(time.Millisecond))
	})
}
