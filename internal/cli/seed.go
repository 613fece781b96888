package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/nostrcache/internal/fixture"
	"github.com/roach88/nostrcache/internal/persistence"
)

// SeedResult is the JSON payload of the seed command.
type SeedResult struct {
	Fixture     string                    `json:"fixture"`
	CurrentUser string                    `json:"current_user,omitempty"`
	Entities    []persistence.EntityCount `json:"entities"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [fixture-file]",
		Short: "Replace stored events with fixture data",
		Long: `Delete every stored event and load a fixture in its place.

Without a file the built-in sample is loaded. The current user (from
--current-user, or else the fixture's current_user) is made to follow
every author of the fixture.

Example:
  nostrcache seed --db ./cache.sqlite
  nostrcache seed ./testdata/thread.yaml --current-user <hex key>`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runSeed(opts *RootOptions, cmd *cobra.Command, args []string) error {
	out := opts.formatter(cmd)
	fx, err := loadFixture(args)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeFixture, "failed to load fixture", err)
	}

	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	currentUser := s.cfg.CurrentUser
	if currentUser == "" {
		currentUser = fx.CurrentUser
	}

	s.out.VerboseLog("Loading fixture %s (%d events, %d authors)", fx.Name, len(fx.Events), len(fx.Authors))
	if err := s.ctrl.LoadSampleData(cmd.Context(), s.ctrl.ParseContext(), fx, currentUser); err != nil {
		return s.out.Fail(ExitFailure, ErrCodeFailed, "failed to load fixture", err)
	}

	counts, err := s.ctrl.Statistics(cmd.Context())
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeFailed, "statistics failed", err)
	}

	result := SeedResult{Fixture: fx.Name, CurrentUser: currentUser, Entities: counts}
	return s.out.Success(result, func(w io.Writer) {
		successf(w, "Loaded fixture %s", fx.Name)
		for _, ec := range persistence.NonEmpty(counts) {
			_, _ = dim.Fprintf(w, "  %-16s %d\n", ec.Entity, ec.Count)
		}
	})
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "ingest <fixture-file>",
		Short: "Upsert the events and authors of a fixture file",
		Long: `Ingest the events and authors of a fixture file as one batch.

Events already stored are counted as duplicates. Metadata events update
profiles, contact lists replace follows. Existing data is kept.

Example:
  nostrcache ingest --db ./cache.sqlite ./events.yaml
  nostrcache ingest ./events.json --source wss://relay.example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, cmd, args[0], source)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "relay URL recorded on new events (default: the fixture's source)")

	return cmd
}

func runIngest(opts *RootOptions, cmd *cobra.Command, path, source string) error {
	out := opts.formatter(cmd)
	fx, err := fixture.Load(path)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeFixture, "failed to load fixture", err)
	}
	if source == "" {
		source = fx.Source
	}

	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.ctrl.Ingest(cmd.Context(), persistence.Batch{
		Source:  source,
		Events:  fx.Events,
		Authors: fx.Authors,
	})
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeFailed, "ingest failed", err)
	}

	return s.out.Success(res, func(w io.Writer) {
		successf(w, "Ingested %s: %d new, %d duplicates, %d profiles, %d follows",
			fx.Name, res.Inserted, res.Duplicates, res.Profiles, res.Follows)
	})
}

func loadFixture(args []string) (*fixture.Fixture, error) {
	if len(args) == 0 {
		return fixture.Sample(), nil
	}
	return fixture.Load(args[0])
}
