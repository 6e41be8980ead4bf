package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"code.cloudfoundry.org/clock"
	"github.com/spf13/cobra"

	"github.com/roach88/gauntlet/internal/driver"
	"github.com/roach88/gauntlet/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigOptions
	Update   bool
	Database string

	// IDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs store.IDGenerator

	// Clock allows overriding the clock (for testing).
	Clock clock.Clock
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Compile and run tests",
		Long: `Discover tests under the given paths (default: the search path), compile
each program, run it and compare what it prints with the expected outputs.

Exit codes:
  0 - Every test passed or was skipped
  N - N tests failed or were invalid (1 when no tests were found or the
      run was interrupted; capped at 255)
  2 - Command error (bad flags, unreadable configuration, etc.)

Examples:
  gauntlet run tests/
  gauntlet run --release --exclude 'gc/*' tests/
  gauntlet run --update tests/strings.cfg
  gauntlet run --db history.db --format json tests/`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	opts.ConfigOptions.register(cmd)
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite expected outputs that do not match")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record results in this SQLite database")

	return cmd
}

func runTests(opts *RunOptions, args []string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := opts.loadConfig(cmd, args)
	if err != nil {
		return out.fail(CodeConfig, "failed to load configuration", err)
	}
	if cmd.Flags().Changed("update") {
		cfg.Update = opts.Update
	}
	if cmd.Flags().Changed("db") {
		cfg.Database = opts.Database
	}

	var st *store.Store
	if cfg.Database != "" {
		logger.Debug("opening database", "path", cfg.Database)
		st, err = store.Open(cfg.Database)
		if err != nil {
			return out.fail(CodeStore, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	text := &textReporter{w: cmd.OutOrStdout(), verbose: opts.Verbose}
	dopts := driver.Options{
		Config: cfg,
		Logger: logger,
		Clock:  opts.Clock,
		Store:  st,
		IDs:    opts.IDs,
	}
	if !out.JSON() {
		dopts.Progress = text.Report
	}
	d := driver.New(dopts)

	paths, err := d.Discover(args...)
	if err != nil {
		return out.fail(CodeDiscover, "failed to discover tests", err)
	}
	logger.Debug("discovered tests", "count", len(paths), "search_path", cfg.SearchPath)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	sum, err := d.Run(ctx, paths)
	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return WrapExitError(ExitFailure, "run failed", err)
	}

	resp := "ok"
	if interrupted || sum.ExitCode() != ExitSuccess {
		resp = "fail"
	}
	if err := out.Result(resp, sum, func(io.Writer) { text.Summary(sum) }); err != nil {
		return err
	}
	if interrupted {
		return WrapExitError(ExitFailure, "run interrupted", err)
	}
	if code := sum.ExitCode(); code != ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
