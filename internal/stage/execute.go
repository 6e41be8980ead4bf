package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kballard/go-shellquote"

	"github.com/roach88/gauntlet/internal/compare"
	"github.com/roach88/gauntlet/internal/spec"
	"github.com/roach88/gauntlet/internal/status"
)

// StageReport is the outcome of one output stage.
type StageReport struct {
	Name     string            `json:"name"`
	Section  string            `json:"section"`
	Status   status.Status     `json:"status"`
	Failures []*status.Failure `json:"failures,omitempty"`

	// Rewritten is set when update mode corrected the stage's
	// expectations.
	Rewritten bool `json:"rewritten,omitempty"`
}

// ExecResult is the outcome of running every stage of a spec.
type ExecResult struct {
	status.Outcome

	// Stages lists the stages that ran, in order. Stages after the first
	// failing one are absent.
	Stages []StageReport
}

// Executor runs compiled test binaries.
type Executor struct {
	// Update enables rewriting expectations that do not match.
	Update bool

	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(update bool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Update: update, logger: logger}
}

// Execute runs the stages of s in order against its compiled binary. The
// walk stops at the first stage whose status is neither OK nor SKIPPED and
// returns that stage's outcome. Otherwise the result is SKIPPED when some
// stage was corrected by a rewrite, and OK when all matched.
func (e *Executor) Execute(ctx context.Context, s *spec.Spec) ExecResult {
	log := e.logger.With("test", s.Name)
	res := ExecResult{Outcome: status.Pass()}

	bin, err := filepath.Abs(s.BinaryPath())
	if err != nil {
		bin = s.BinaryPath()
	}

	for _, st := range s.Stages {
		rep := e.runStage(ctx, log.With("stage", st.Section), s, st, bin)
		res.Stages = append(res.Stages, rep)
		switch rep.Status {
		case status.OK:
		case status.Skipped:
			res.Status = status.Skipped
		default:
			res.Outcome = status.Outcome{Status: rep.Status, Failures: rep.Failures}
			return res
		}
	}
	return res
}

func (e *Executor) runStage(ctx context.Context, log *slog.Logger, s *spec.Spec, st *spec.Stage, bin string) StageReport {
	rep := StageReport{Name: st.Name, Section: st.Section}
	fail := func(f *status.Failure) StageReport {
		rep.Status = status.Failed
		rep.Failures = append(rep.Failures, f)
		return rep
	}

	if _, err := os.Stat(bin); err != nil {
		log.Warn("binary not found", "kind", status.KindExeFileNotFound, "binary", bin)
		return fail(status.NewFailure(status.KindExeFileNotFound,
			fmt.Sprintf("binary %s not found", bin), "binary", bin))
	}

	dir := filepath.Dir(bin)
	cmdline := shellquote.Join(append([]string{bin}, st.Args...)...)
	log.Debug("running", "cmd", cmdline)

	var proc processResult
	err := InDir(dir, func() error {
		var err error
		proc, err = runProcess(ctx, bin, st.Args)
		return err
	})
	if err != nil {
		log.Warn("cannot run binary", "kind", status.KindRuntimeError, "cmd", cmdline, "error", err)
		return fail(status.NewFailure(status.KindRuntimeError,
			fmt.Sprintf("cannot run binary: %v", err), "cmd", cmdline))
	}
	if proc.ExitCode != 0 {
		log.Warn("binary failed", "kind", status.KindRuntimeError, "cmd", cmdline,
			"exit_code", proc.ExitCode, "output", proc.Output)
		return fail(status.NewFailure(status.KindRuntimeError,
			fmt.Sprintf("exit code %d", proc.ExitCode),
			"cmd", cmdline, "exit_code", strconv.Itoa(proc.ExitCode)))
	}

	actual := collectOutputs(log, dir, st.Outputs, proc.Output)

	pattern, err := s.Pattern()
	if err != nil {
		log.Warn("timestamp pattern disabled", "error", err)
	}
	cmp := compare.Compare(st.Outputs, actual, compare.Options{
		Pattern: pattern,
		Check:   s.Check,
		Logger:  log,
	})
	rep.Status, rep.Failures = cmp.Status, cmp.Failures
	if cmp.Status != status.Failed || !e.Update {
		return rep
	}

	if err := s.Rewrite(st, actual); err != nil {
		if errors.Is(err, spec.ErrNotRewritable) {
			log.Info("expectations not rewritable", "shim", s.Shim)
		} else {
			log.Warn("rewrite failed", "error", err)
		}
		return rep
	}
	log.Info("rewrote expected outputs", "file", s.Path)
	rep.Status = status.Skipped
	rep.Rewritten = true
	return rep
}

// collectOutputs builds the actual outputs of a run: stdout from the
// captured output and every other expected channel from the file of that
// name in dir. Files that exist are deleted after reading; missing ones are
// left for the comparator to report.
func collectOutputs(log *slog.Logger, dir string, expected compare.Outputs, stdout string) compare.Outputs {
	actual := compare.Outputs{compare.Stdout: stdout}
	for _, channel := range expected.Channels() {
		if channel == compare.Stdout {
			continue
		}
		path := filepath.Join(dir, channel)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Debug("output file not readable", "channel", channel, "error", err)
			continue
		}
		actual[channel] = string(data)
		if err := os.Remove(path); err != nil {
			log.Warn("cannot remove output file", "channel", channel, "error", err)
		}
	}
	return actual
}
