// Package driver takes test files through their lifecycle.
//
//	load -> (INVALID | SKIPPED) or compile -> execute -> cleanup
//
// RunFile handles one file; Run discovers files, runs them one after another,
// records the results and totals them.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/roach88/gauntlet/internal/config"
	"github.com/roach88/gauntlet/internal/spec"
	"github.com/roach88/gauntlet/internal/stage"
	"github.com/roach88/gauntlet/internal/status"
	"github.com/roach88/gauntlet/internal/store"
)

// Skip reasons reported for SKIPPED tests that did not run.
const (
	ReasonSkipFlag = "skip"
	ReasonOS       = "os"
	ReasonExcluded = "excluded"
	ReasonRewrite  = "rewritten"
)

// Report is the outcome of one test file.
type Report struct {
	Name     string              `json:"name"`
	Path     string              `json:"path"`
	Status   status.Status       `json:"status"`
	Reason   string              `json:"reason,omitempty"`
	Failures []*status.Failure   `json:"failures,omitempty"`
	Duration time.Duration       `json:"duration"`
	Identity string              `json:"identity,omitempty"`
	Stages   []stage.StageReport `json:"stages,omitempty"`
}

// Options configures a Driver.
type Options struct {
	Config *config.Config

	// Logger receives diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// Clock measures durations. Nil uses the wall clock.
	Clock clock.Clock

	// Store, when set, records every run.
	Store *store.Store

	// IDs generates run IDs. Nil uses UUIDv7.
	IDs store.IDGenerator

	// GOOS is the platform matched against a spec's os list. Empty means
	// runtime.GOOS.
	GOOS string

	// Progress, when set, is called by Run after each test.
	Progress func(Report)
}

// Driver runs tests sequentially.
type Driver struct {
	cfg      *config.Config
	logger   *slog.Logger
	clock    clock.Clock
	store    *store.Store
	ids      store.IDGenerator
	goos     string
	progress func(Report)
	compiler *stage.Compiler
	executor *stage.Executor
}

// New creates a Driver.
func New(opts Options) *Driver {
	d := &Driver{
		cfg:      opts.Config,
		logger:   opts.Logger,
		clock:    opts.Clock,
		store:    opts.Store,
		ids:      opts.IDs,
		goos:     opts.GOOS,
		progress: opts.Progress,
	}
	if d.cfg == nil {
		d.cfg = config.Defaults()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.clock == nil {
		d.clock = clock.NewClock()
	}
	if d.ids == nil {
		d.ids = store.UUIDv7Generator{}
	}
	if d.goos == "" {
		d.goos = runtime.GOOS
	}
	d.compiler = stage.NewCompiler(d.cfg, d.logger)
	d.executor = stage.NewExecutor(d.cfg.Update, d.logger)
	return d
}

// RunFile runs the test defined by the file at path.
func (d *Driver) RunFile(ctx context.Context, path string) Report {
	start := d.clock.Now()
	s := spec.Load(path, d.cfg.SearchPath, d.cfg, d.logger)
	rep := d.runSpec(ctx, s)
	rep.Duration = d.clock.Since(start)

	d.logger.Info("test finished",
		"test", rep.Name,
		"status", rep.Status,
		"duration", rep.Duration,
	)
	return rep
}

func (d *Driver) runSpec(ctx context.Context, s *spec.Spec) Report {
	rep := Report{Name: s.Name, Path: s.Path}
	log := d.logger.With("test", s.Name)

	if !s.Valid() {
		log.Warn("test has no program")
		rep.Status = status.Invalid
		return rep
	}

	if reason := d.skipReason(s); reason != "" {
		log.Debug("skipping test", "reason", reason)
		rep.Status = status.Skipped
		rep.Reason = reason
		return rep
	}

	if err := s.Prepare(d.cfg); err != nil {
		log.Warn("cannot compute test identity", "error", err)
		rep.Status = status.Invalid
		return rep
	}
	rep.Identity = s.Identity

	defer d.removeBinary(log, s.BinaryPath())

	_, compiled := d.compiler.Compile(ctx, s)
	if compiled.Status != status.OK {
		rep.Status, rep.Failures = compiled.Status, compiled.Failures
		return rep
	}
	if s.CompileError != "" {
		// The expected diagnostic matched; there is nothing to run.
		rep.Status = status.OK
		return rep
	}

	res := d.executor.Execute(ctx, s)
	rep.Status, rep.Failures, rep.Stages = res.Status, res.Failures, res.Stages
	if rep.Status == status.Skipped {
		rep.Reason = ReasonRewrite
	}
	return rep
}

func (d *Driver) skipReason(s *spec.Spec) string {
	switch {
	case s.Skip:
		return ReasonSkipFlag
	case !s.AppliesTo(d.goos):
		return ReasonOS
	case d.cfg.Excluded(s.Name):
		return ReasonExcluded
	}
	return ""
}

func (d *Driver) removeBinary(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("cannot remove binary", "binary", path, "error", err)
	}
}
