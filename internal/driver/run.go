package driver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/gauntlet/internal/config"
	"github.com/roach88/gauntlet/internal/spec"
	"github.com/roach88/gauntlet/internal/status"
	"github.com/roach88/gauntlet/internal/store"
)

// Summary totals the reports of one run.
type Summary struct {
	RunID   string   `json:"run_id,omitempty"`
	Total   int      `json:"total"`
	OK      int      `json:"ok"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Invalid int      `json:"invalid"`
	Reports []Report `json:"reports"`
}

func (s *Summary) add(rep Report) {
	s.Total++
	switch rep.Status {
	case status.OK:
		s.OK++
	case status.Failed:
		s.Failed++
	case status.Skipped:
		s.Skipped++
	case status.Invalid:
		s.Invalid++
	}
	s.Reports = append(s.Reports, rep)
}

// MaxExitCode caps ExitCode. Exit statuses keep only their low 8 bits, so
// an unbounded count could wrap around to 0.
const MaxExitCode = 255

// ExitCode is the process exit status for the run: 1 when nothing ran,
// otherwise the number of FAILED and INVALID tests, capped at MaxExitCode.
func (s Summary) ExitCode() int {
	if s.Total == 0 {
		return 1
	}
	return min(s.Failed+s.Invalid, MaxExitCode)
}

// Discover returns the test files under roots, sorted and deduplicated. A
// root may be a directory, walked recursively, or a single file, taken as
// given. With no roots the configured search path is walked.
//
// Within directories, files with the native extension are tests, and files
// with the source extension are tests when they begin with a shim header.
// Hidden directories are not entered.
func (d *Driver) Discover(roots ...string) ([]string, error) {
	if len(roots) == 0 {
		roots = []string{d.cfg.SearchPath}
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				if path != root && strings.HasPrefix(entry.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.isTestFile(path, entry) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

func (d *Driver) isTestFile(path string, entry fs.DirEntry) bool {
	if !entry.Type().IsRegular() || entry.Name() == config.FileName {
		return false
	}
	switch filepath.Ext(path) {
	case d.cfg.NativeExt:
		return true
	case d.cfg.SourceExt:
		return startsWithShimHeader(path)
	}
	return false
}

func startsWithShimHeader(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return spec.HasShimHeader(f)
}

// Run runs the tests at paths in order and records them when a store is
// configured. History failures are logged and do not affect the summary.
// Run stops early, returning the partial summary and ctx's error, when ctx
// is cancelled.
func (d *Driver) Run(ctx context.Context, paths []string) (Summary, error) {
	var sum Summary
	runID := d.beginRun(ctx)
	sum.RunID = runID

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		rep := d.RunFile(ctx, path)
		sum.add(rep)
		d.record(ctx, runID, int64(i), rep)
		if d.progress != nil {
			d.progress(rep)
		}
	}

	d.logger.Info("run finished",
		"total", sum.Total,
		"ok", sum.OK,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"invalid", sum.Invalid,
	)
	return sum, nil
}

func (d *Driver) beginRun(ctx context.Context) string {
	if d.store == nil {
		return ""
	}
	hash, err := d.cfg.Identity()
	if err != nil {
		d.logger.Warn("cannot hash configuration", "error", err)
	}
	run := store.Run{
		ID:         d.ids.Generate(),
		StartedAt:  d.clock.Now(),
		ConfigHash: hash,
	}
	if err := d.store.WriteRun(ctx, run); err != nil {
		d.logger.Warn("cannot record run", "error", err)
		return ""
	}
	return run.ID
}

func (d *Driver) record(ctx context.Context, runID string, seq int64, rep Report) {
	if d.store == nil || runID == "" {
		return
	}
	err := d.store.WriteResult(ctx, store.Result{
		RunID:    runID,
		Name:     rep.Name,
		Identity: rep.Identity,
		Status:   rep.Status,
		Failures: rep.Failures,
		Duration: rep.Duration,
		Seq:      seq,
	})
	if err != nil {
		d.logger.Warn("cannot record result", "test", rep.Name, "error", err)
	}
}
