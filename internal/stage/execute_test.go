package stage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gauntlet/internal/compare"
	"github.com/roach88/gauntlet/internal/spec"
	"github.com/roach88/gauntlet/internal/status"
	"github.com/roach88/gauntlet/internal/testutil"
)

func execute(s *spec.Spec, update bool) ExecResult {
	return NewExecutor(update, testutil.QuietLogger()).Execute(context.Background(), s)
}

func TestExecute_OK(t *testing.T) {
	f := newFixture(t)
	s := f.load("hello.cfg", "program = hello\n[Output]\nstdout = \"Hello\\n\"\n", "echo Hello\n")
	f.build(s)

	res := execute(s, false)
	assert.Equal(t, status.OK, res.Status, "%v", res.Err())
	require.Len(t, res.Stages, 1)
	assert.Equal(t, status.OK, res.Stages[0].Status)
}

func TestExecute_NoStages(t *testing.T) {
	f := newFixture(t)
	s := f.load("hello.cfg", "program = hello\n", "echo Hello\n")
	res := execute(s, false)
	assert.Equal(t, status.OK, res.Status)
	assert.Empty(t, res.Stages)
}

func TestExecute_ArgsAndWorkingDirectory(t *testing.T) {
	f := newFixture(t)
	s := f.load("args.cfg", `program = args
[Output]
args = "one 'two three'"
stdout = """
one|two three
"""
where.txt = "ok"
`, "printf '%s|%s\\n' \"$1\" \"$2\"\nprintf ok > where.txt\n")
	f.build(s)

	res := execute(s, false)
	assert.Equal(t, status.OK, res.Status, "%v", res.Err())
	assert.NoFileExists(t, f.path("where.txt"), "output files are removed after reading")
}

func TestExecute_TimestampElision(t *testing.T) {
	f := newFixture(t)
	s := f.load("ts.cfg", "program = ts\n[Output]\nstdout = \"built 2020-01-01 00:00:00\\n\"\n",
		"echo \"built $(date '+%Y-%m-%d %H:%M:%S')\"\n")
	f.build(s)
	assert.Equal(t, status.OK, execute(s, false).Status)
}

func TestExecute_RuntimeError(t *testing.T) {
	f := newFixture(t)
	s := f.load("crash.cfg", "program = crash\n[Output]\nstdout = \"\"\n", "echo dying\nexit 3\n")
	f.build(s)

	res := execute(s, true)
	assert.Equal(t, status.Failed, res.Status)
	assert.True(t, res.Has(status.KindRuntimeError))
	assert.Equal(t, "3", res.Failures[0].Details["exit_code"])
}

func TestExecute_ExeFileNotFound(t *testing.T) {
	f := newFixture(t)
	s := f.load("hello.cfg", "program = hello\n[Output]\nstdout = x\n", "echo Hello\n")

	res := execute(s, false)
	assert.Equal(t, status.Failed, res.Status)
	assert.True(t, res.Has(status.KindExeFileNotFound))
}

func TestExecute_MissingOutputFile(t *testing.T) {
	f := newFixture(t)
	s := f.load("files.cfg", "program = files\n[Output]\nstdout = \"\"\nmissing.txt = x\n", "true\n")
	f.build(s)

	res := execute(s, false)
	assert.Equal(t, status.Failed, res.Status)
	assert.True(t, res.Has(status.KindOutputFileNotFound))
	assert.False(t, res.Has(status.KindOutputsDiffer))
}

const chainSource = `echo run >> runs.log
case "$1" in
first) echo A ;;
*) echo B ;;
esac
`

func TestExecute_ChainShortCircuit(t *testing.T) {
	f := newFixture(t)
	s := f.load("chain.cfg", `program = chain
[Output]
args = first
stdout = "X\n"

[Output_second]
stdout = "B\n"
`, chainSource)
	f.build(s)

	res := execute(s, false)
	assert.Equal(t, status.Failed, res.Status)
	assert.True(t, res.Has(status.KindOutputsDiffer))
	require.Len(t, res.Stages, 1, "the second stage must not run")
	assert.Equal(t, res.Stages[0].Status, res.Status)

	runs, err := os.ReadFile(filepath.Join(f.dir, "runs.log"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(runs), "run"))
}

func TestExecute_ChainRunsInOrder(t *testing.T) {
	f := newFixture(t)
	s := f.load("chain.cfg", `program = chain
[Output]
args = first
stdout = "A\n"

[Output_second]
stdout = "B\n"
`, chainSource)
	f.build(s)

	res := execute(s, false)
	assert.Equal(t, status.OK, res.Status, "%v", res.Err())
	require.Len(t, res.Stages, 2)
	assert.Equal(t, "Output", res.Stages[0].Section)
	assert.Equal(t, "second", res.Stages[1].Name)
}

func TestExecute_UpdateRewritesAndContinues(t *testing.T) {
	f := newFixture(t)
	s := f.load("chain.cfg", `program = chain
[Output]
args = first
stdout = "stale\n"

[Output_second]
stdout = "B\n"
`, chainSource)
	f.build(s)

	res := execute(s, true)
	assert.Equal(t, status.Skipped, res.Status)
	require.Len(t, res.Stages, 2, "a corrected stage lets the next one run")
	assert.True(t, res.Stages[0].Rewritten)
	assert.Equal(t, status.Skipped, res.Stages[0].Status)
	assert.Equal(t, status.OK, res.Stages[1].Status)

	data, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stdout = \"\"\"\nA\n\"\"\"")
	assert.Equal(t, compare.Outputs{compare.Stdout: "A\n"}, s.Stages[0].Outputs)
}

func TestExecute_ShimNeverRewritten(t *testing.T) {
	f := newFixture(t)
	src := "discard \"\"\"\noutput: \"expected\\n\"\n\"\"\"\necho actual\n"
	path := testutil.WriteFile(t, f.dir, "shim.nim", src)
	s := spec.Load(path, f.dir, f.cfg, testutil.QuietLogger())
	require.True(t, s.Shim)
	require.NoError(t, s.Prepare(f.cfg))
	f.build(s)

	res := execute(s, true)
	assert.Equal(t, status.Failed, res.Status)
	assert.True(t, res.Has(status.KindOutputsDiffer))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, src, string(data))
}

func TestExecute_ShimSortedOutput(t *testing.T) {
	f := newFixture(t)
	src := "discard \"\"\"\noutput: \"a\\nb\\nc\\n\"\nsortoutput: true\n\"\"\"\nprintf 'c\\na\\nb\\n'\n"
	path := testutil.WriteFile(t, f.dir, "sorted.nim", src)
	s := spec.Load(path, f.dir, f.cfg, testutil.QuietLogger())
	require.NoError(t, s.Prepare(f.cfg))
	f.build(s)

	assert.Equal(t, status.OK, execute(s, false).Status)
}
