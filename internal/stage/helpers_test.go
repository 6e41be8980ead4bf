package stage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gauntlet/internal/config"
	"github.com/roach88/gauntlet/internal/spec"
	"github.com/roach88/gauntlet/internal/status"
	"github.com/roach88/gauntlet/internal/testutil"
)

type fixture struct {
	t   *testing.T
	dir string
	cfg *config.Config
	fc  *testutil.FakeCompiler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := testutil.NewFakeCompiler(t)
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Compiler = fc.Path
	cfg.SearchPath = dir
	return &fixture{t: t, dir: dir, cfg: cfg, fc: fc}
}

// load writes the test file and program source and returns the prepared spec.
func (f *fixture) load(file, content, source string) *spec.Spec {
	f.t.Helper()
	path := testutil.WriteFile(f.t, f.dir, file, content)
	s := spec.Load(path, f.dir, f.cfg, testutil.QuietLogger())
	require.True(f.t, s.Valid())
	if source != "" {
		testutil.WriteFile(f.t, f.dir, s.Program+f.cfg.SourceExt, source)
	}
	require.NoError(f.t, s.Prepare(f.cfg))
	return s
}

func (f *fixture) compile(s *spec.Spec) (CompileResult, status.Outcome) {
	f.t.Helper()
	return NewCompiler(f.cfg, testutil.QuietLogger()).Compile(context.Background(), s)
}

// build compiles s and requires success.
func (f *fixture) build(s *spec.Spec) {
	f.t.Helper()
	_, out := f.compile(s)
	require.Equal(f.t, status.OK, out.Status, "%v", out.Err())
	require.FileExists(f.t, s.BinaryPath())
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}
