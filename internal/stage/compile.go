// Package stage runs the two subprocess steps of a test: building the
// program with the compiler and running the binary once per output stage.
// Both steps classify what happened into a status.Outcome; neither returns
// an error for test-level failures.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"

	"github.com/roach88/gauntlet/internal/config"
	"github.com/roach88/gauntlet/internal/spec"
	"github.com/roach88/gauntlet/internal/status"
)

// CompileResult is the structured form of the compiler's output.
type CompileResult struct {
	ExitCode int

	// Msg is the reported diagnostic, or the last output line when the
	// output holds no recognizable diagnostic.
	Msg string

	// FullMsg is the complete combined output.
	FullMsg string

	// File, Line and Column locate the diagnostic when one was reported.
	File   string
	Line   int
	Column int
}

var diagnosticPattern = regexp.MustCompile(`(?m)^(.+)\((\d+), (\d+)\) (?:Error|Fatal): (.*)$`)

// ParseCompileOutput extracts the last diagnostic from compiler output.
func ParseCompileOutput(exitCode int, output string) CompileResult {
	output = strings.ReplaceAll(output, "\r\n", "\n")
	res := CompileResult{ExitCode: exitCode, FullMsg: output}

	matches := diagnosticPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		res.Msg = lastLine(output)
		return res
	}
	m := matches[len(matches)-1]
	res.File = m[1]
	res.Line, _ = strconv.Atoi(m[2])
	res.Column, _ = strconv.Atoi(m[3])
	res.Msg = strings.TrimSpace(m[4])
	return res
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// Compiler builds test programs.
type Compiler struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewCompiler creates a Compiler using cfg's compiler and baseline options.
func NewCompiler(cfg *config.Config, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{cfg: cfg, logger: logger}
}

// Command returns the compiler invocation for s. The spec must have been
// prepared so that its binary path is final.
func (c *Compiler) Command(s *spec.Spec) ([]string, error) {
	src := s.SourcePath(c.cfg.SourceExt)
	out := s.BinaryPath()

	if s.ShimCmd == "" {
		argv := []string{c.cfg.Compiler, "c", "--out:" + out}
		argv = append(argv, c.cfg.BaselineOptions...)
		argv = append(argv, s.Flags...)
		return append(argv, src), nil
	}

	options := append(append([]string{}, c.cfg.BaselineOptions...), s.Flags...)
	expanded := strings.NewReplacer(
		"$compiler", shellquote.Join(c.cfg.Compiler),
		"$options", shellquote.Join(options...),
		"$out", shellquote.Join(out),
		"$file", shellquote.Join(src),
	).Replace(s.ShimCmd)
	argv, err := shellquote.Split(expanded)
	if err != nil {
		return nil, fmt.Errorf("invalid command template %q: %w", s.ShimCmd, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command template")
	}
	return argv, nil
}

// Compile builds s and classifies the result.
func (c *Compiler) Compile(ctx context.Context, s *spec.Spec) (CompileResult, status.Outcome) {
	log := c.logger.With("test", s.Name)

	src := s.SourcePath(c.cfg.SourceExt)
	if _, err := os.Stat(src); err != nil {
		log.Warn("source file not found", "kind", status.KindSourceFileNotFound, "source", src)
		return CompileResult{}, status.Fail(status.NewFailure(status.KindSourceFileNotFound,
			fmt.Sprintf("source %s not found", src), "source", src))
	}

	argv, err := c.Command(s)
	if err != nil {
		log.Warn("cannot build compiler command", "kind", status.KindCompileError, "error", err)
		return CompileResult{}, status.Fail(status.NewFailure(status.KindCompileError, err.Error()))
	}
	cmdline := shellquote.Join(argv...)
	log.Debug("compiling", "cmd", cmdline)

	proc, err := runProcess(ctx, argv[0], argv[1:])
	if err != nil {
		log.Warn("cannot run compiler", "kind", status.KindCompileError, "cmd", cmdline, "error", err)
		return CompileResult{}, status.Fail(status.NewFailure(status.KindCompileError,
			fmt.Sprintf("cannot run compiler: %v", err), "cmd", cmdline))
	}

	res := ParseCompileOutput(proc.ExitCode, proc.Output)
	return res, c.classify(log, s, res, cmdline)
}

func (c *Compiler) classify(log *slog.Logger, s *spec.Spec, res CompileResult, cmdline string) status.Outcome {
	switch {
	case res.ExitCode == 0 && s.CompileError == "":
		return CheckSize(log, s.BinaryPath(), s.MaxSize)

	case res.ExitCode == 0:
		log.Warn("compile succeeded but an error was expected",
			"kind", status.KindUnexpectedCompileSuccess, "cmd", cmdline, "expected", s.CompileError)
		return status.Fail(status.NewFailure(status.KindUnexpectedCompileSuccess,
			"compile succeeded but an error was expected", "expected", s.CompileError))

	case s.CompileError == "":
		log.Warn("compile failed", "kind", status.KindCompileError, "cmd", cmdline,
			"exit_code", res.ExitCode, "output", res.FullMsg)
		return status.Fail(status.NewFailure(status.KindCompileError, res.Msg,
			"cmd", cmdline, "exit_code", strconv.Itoa(res.ExitCode)))

	default:
		if diffs := diagnosticDiffs(s, res); len(diffs) > 0 {
			args := []any{"kind", status.KindCompileErrorDiffers, "cmd", cmdline}
			for _, d := range diffs {
				args = append(args, d.field, fmt.Sprintf("expected %q, got %q", d.expected, d.actual))
			}
			log.Warn("compile error differs", args...)

			kv := make([]string, 0, 4*len(diffs))
			for _, d := range diffs {
				kv = append(kv, "expected_"+d.field, d.expected, "actual_"+d.field, d.actual)
			}
			return status.Fail(status.NewFailure(status.KindCompileErrorDiffers,
				fmt.Sprintf("expected compile error %q, got %q", s.CompileError, res.Msg), kv...))
		}
		log.Debug("compile error matched", "msg", res.Msg)
		return status.Pass()
	}
}

type fieldDiff struct {
	field            string
	expected, actual string
}

// diagnosticDiffs compares the reported diagnostic against every expected
// field that the spec specifies.
func diagnosticDiffs(s *spec.Spec, res CompileResult) []fieldDiff {
	var diffs []fieldDiff
	if res.Msg != s.CompileError {
		diffs = append(diffs, fieldDiff{"msg", s.CompileError, res.Msg})
	}
	if s.ErrorFile != "" && res.File != s.ErrorFile {
		diffs = append(diffs, fieldDiff{"file", s.ErrorFile, res.File})
	}
	if s.ErrorLine != 0 && res.Line != s.ErrorLine {
		diffs = append(diffs, fieldDiff{"line", strconv.Itoa(s.ErrorLine), strconv.Itoa(res.Line)})
	}
	if s.ErrorColumn != 0 && res.Column != s.ErrorColumn {
		diffs = append(diffs, fieldDiff{"column", strconv.Itoa(s.ErrorColumn), strconv.Itoa(res.Column)})
	}
	return diffs
}

// CheckSize fails when the binary at path is larger than maxSize bytes. A
// zero maxSize disables the check; a binary of exactly maxSize bytes passes.
func CheckSize(log *slog.Logger, path string, maxSize int64) status.Outcome {
	if maxSize <= 0 {
		return status.Pass()
	}
	info, err := os.Stat(path)
	if err != nil {
		log.Warn("cannot check binary size", "kind", status.KindExeFileNotFound, "binary", path, "error", err)
		return status.Fail(status.NewFailure(status.KindExeFileNotFound,
			fmt.Sprintf("cannot stat %s: %v", path, err), "binary", path))
	}

	size := info.Size()
	if size <= maxSize {
		return status.Pass()
	}
	log.Warn("binary too large",
		"kind", status.KindFileSizeTooLarge,
		"size", humanize.IBytes(uint64(size)),
		"max_size", humanize.IBytes(uint64(maxSize)),
	)
	return status.Fail(status.NewFailure(status.KindFileSizeTooLarge,
		fmt.Sprintf("binary is %s, limit is %s", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxSize))),
		"size", strconv.FormatInt(size, 10),
		"max_size", strconv.FormatInt(maxSize, 10),
	))
}
