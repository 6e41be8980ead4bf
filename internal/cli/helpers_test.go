package cli

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/roach88/gauntlet/internal/testutil"
)

// suite is a test directory whose configuration points at the fake
// compiler.
type suite struct {
	t   *testing.T
	dir string
	fc  *testutil.FakeCompiler
}

func newSuite(t *testing.T) *suite {
	t.Helper()
	fc := testutil.NewFakeCompiler(t)
	s := &suite{t: t, dir: t.TempDir(), fc: fc}
	s.write("gauntlet.cue", fmt.Sprintf("compiler: %q\n", fc.Path))
	s.write("hello.nim", "echo Hello\n")
	return s
}

func (s *suite) write(name, content string) string {
	s.t.Helper()
	return testutil.WriteFile(s.t, s.dir, name, content)
}

func (s *suite) passing() string {
	return s.write("ok.cfg", "program = hello\n[Output]\nstdout = \"Hello\\n\"\n")
}

func (s *suite) failing() string {
	return s.write("bad.cfg", "program = hello\n[Output]\nstdout = \"Bye\\n\"\n")
}

// execute runs the root command with colors off and logs discarded.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}
