package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gauntlet/internal/driver"
	"github.com/roach88/gauntlet/internal/status"
	"github.com/roach88/gauntlet/internal/testutil"
)

func TestRun_AllPass(t *testing.T) {
	s := newSuite(t)
	s.passing()

	out, err := execute(t, "run", s.dir)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "1 tests: 1 ok, 0 failed, 0 skipped, 0 invalid")
}

func TestRun_FailureExitCode(t *testing.T) {
	s := newSuite(t)
	s.passing()
	s.failing()

	out, err := execute(t, "run", s.dir)
	require.Error(t, err)
	assert.Equal(t, 1, GetExitCode(err))
	assert.Empty(t, err.Error(), "a failing run prints nothing extra")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "OutputsDiffer")
	assert.Contains(t, out, "-Bye")
	assert.Contains(t, out, "+Hello")
}

func TestRun_JSON(t *testing.T) {
	s := newSuite(t)
	s.passing()
	s.failing()

	out, err := execute(t, "--format", "json", "run", s.dir)
	require.Error(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   driver.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "fail", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Reports, 2)
	assert.Equal(t, "bad", resp.Data.Reports[0].Name)
	assert.Equal(t, status.Failed, resp.Data.Reports[0].Status)
}

func TestRun_InterruptedFails(t *testing.T) {
	s := newSuite(t)
	s.passing()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--no-color", "--format", "json", "run", s.dir})
	err := cmd.ExecuteContext(ctx)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "run interrupted")

	var resp struct {
		Status string         `json:"status"`
		Data   driver.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	assert.Equal(t, "fail", resp.Status)
	assert.Zero(t, resp.Data.Total)
}

func TestRun_NoTests(t *testing.T) {
	s := newSuite(t)

	out, err := execute(t, "run", s.dir)
	require.Error(t, err)
	assert.Equal(t, 1, GetExitCode(err))
	assert.Contains(t, out, "no tests found")
}

func TestRun_Update(t *testing.T) {
	s := newSuite(t)
	bad := s.failing()

	out, err := execute(t, "run", "--update", s.dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "SKIPPED")

	data, err := os.ReadFile(bad)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hello")

	_, err = execute(t, "run", s.dir)
	assert.NoError(t, err)
}

func TestRun_Exclude(t *testing.T) {
	s := newSuite(t)
	s.passing()
	s.failing()

	out, err := execute(t, "run", "--exclude", "bad", s.dir)
	require.NoError(t, err)
	assert.Contains(t, out, "(excluded)")
}

func TestRun_CompilerFlagOverridesConfig(t *testing.T) {
	s := newSuite(t)
	s.passing()

	_, err := execute(t, "run", "--compiler", filepath.Join(s.dir, "missing-compiler"), s.dir)
	require.Error(t, err)
	assert.Equal(t, 1, GetExitCode(err))
}

func TestRun_CommandErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *suite) []string
	}{
		{"bad config", func(s *suite) []string {
			s.write("gauntlet.cue", "compilr: \"nim\"\n")
			return []string{"run", s.dir}
		}},
		{"conflicting modes", func(s *suite) []string {
			return []string{"run", "--release", "--debug", s.dir}
		}},
		{"missing path", func(s *suite) []string {
			return []string{"run", filepath.Join(s.dir, "nope.cfg")}
		}},
		{"missing config file", func(s *suite) []string {
			return []string{"run", "--config", filepath.Join(s.dir, "nope.cue"), s.dir}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSuite(t)
			s.passing()
			_, err := execute(t, tt.setup(s)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	s := newSuite(t)
	s.passing()
	s.failing()
	db := filepath.Join(t.TempDir(), "history.db")

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", LogFormat: "text"},
		IDs:         testutil.NewFixedIDs("run-0001"),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--db", db, s.dir})
	require.Error(t, cmd.Execute())

	out, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "run-0001")
	assert.Contains(t, out, "1 ok")
	assert.Contains(t, out, "1 failed")

	out, err = execute(t, "history", "--db", db, "--test", "bad")
	require.NoError(t, err)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "OutputsDiffer")

	out, err = execute(t, "list", "--db", db, s.dir)
	require.NoError(t, err)
	assert.Contains(t, out, "last OK")
}

func TestHistory_MissingDatabase(t *testing.T) {
	_, err := execute(t, "history", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistory_RequiresDB(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewHistoryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestList(t *testing.T) {
	s := newSuite(t)
	s.passing()
	s.write("skipped.cfg", "program = hello\nskip = yes\n")
	s.write("broken.cfg", "[Output]\nstdout = x\n")

	out, err := execute(t, "list", s.dir)
	require.NoError(t, err)
	assert.Contains(t, out, "+ ok ")
	assert.Contains(t, out, "[Output]")
	assert.Contains(t, out, "- skipped (skip)")
	assert.Contains(t, out, "- broken")
	assert.Empty(t, s.fc.Calls())
}

func TestList_JSON(t *testing.T) {
	s := newSuite(t)
	s.passing()

	out, err := execute(t, "--format", "json", "list", s.dir)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []ListedTest `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "ok", resp.Data[0].Name)
	assert.Len(t, resp.Data[0].Identity, 64)
}
