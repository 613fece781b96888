package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/nostrcache/internal/config"
	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/persistence"
)

// session is an open controller plus what a command needs around it.
type session struct {
	cfg    config.Config
	ctrl   *persistence.Controller
	out    *OutputFormatter
	logger *slog.Logger
}

// openSession loads the configuration and opens the store. Failures are
// written through the formatter and returned as ExitErrors.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := opts.formatter(cmd)
	logger := opts.logger(cmd)

	cfg, err := config.Load(opts.Viper)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	retentionPolicy := cfg.Retention()
	threadPolicy := cfg.Thread()
	storeOpts := cfg.StoreOptions()

	out.VerboseLog("Opening store %s", describeStore(cfg))
	ctrl, err := persistence.Open(persistence.Options{
		Store:     storeOpts,
		Retention: &retentionPolicy,
		Thread:    &threadPolicy,
		Logger:    logger,
		Reporter:  diag.LogReporter{Logger: logger},
	})
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeOpen, "failed to open store", err)
	}

	return &session{cfg: cfg, ctrl: ctrl, out: out, logger: logger}, nil
}

func (s *session) close() {
	if err := s.ctrl.Close(); err != nil {
		s.logger.Error("error closing store", "error", err)
	}
}

func describeStore(cfg config.Config) string {
	if cfg.InMemory {
		return ":memory:"
	}
	return cfg.DB
}
