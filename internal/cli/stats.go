package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/persistence"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	NonEmpty bool
	Metrics  bool
}

// StatsResult is the JSON payload of the stats command.
type StatsResult struct {
	Entities []persistence.EntityCount `json:"entities"`
	Metrics  map[string]float64        `json:"metrics,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count stored rows per entity",
		Long: `Count the stored rows of every entity, sorted by entity name.

Example:
  nostrcache stats --db ./cache.sqlite
  nostrcache stats --non-empty --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NonEmpty, "non-empty", false, "omit entities without rows")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "include process counters")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	counts, err := s.ctrl.Statistics(cmd.Context())
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeFailed, "statistics failed", err)
	}
	if opts.NonEmpty {
		counts = persistence.NonEmpty(counts)
	}

	result := StatsResult{Entities: counts}
	if opts.Metrics {
		values, err := diag.CounterValues()
		if err != nil {
			return s.out.Fail(ExitFailure, ErrCodeFailed, "failed to gather metrics", err)
		}
		result.Metrics = values
	}

	return s.out.Success(result, func(w io.Writer) {
		header(w, "ENTITY           COUNT")
		for _, ec := range result.Entities {
			fmt.Fprintf(w, "%-16s %d\n", ec.Entity, ec.Count)
		}
		if len(result.Metrics) == 0 {
			return
		}
		names := make([]string, 0, len(result.Metrics))
		for name := range result.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w)
		header(w, "METRICS")
		for _, name := range names {
			fmt.Fprintf(w, "%s %g\n", name, result.Metrics[name])
		}
	})
}
