// Package testutil provides fixtures shared by package tests: a stand-in
// compiler, deterministic run IDs and quiet loggers.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// FakeCompiler is a /bin/sh script that behaves like the compiler as far as
// the runner can tell. Invoked as
//
//	<script> c --out:<binary> [options...] <source>
//
// it turns the source into a shell script at <binary>: a "#!/bin/sh" line
// followed by the source with any leading discard block removed. When the
// source contains a line "#error <msg>" it instead prints
//
//	<source>(2, 3) Error: <msg>
//
// and exits 1. Every invocation is appended to a call log.
type FakeCompiler struct {
	// Path is the script to use as the compiler executable.
	Path string

	log string
}

const fakeCompilerScript = `#!/bin/sh
out=
src=
for arg in "$@"; do
	case "$arg" in
	--out:*) out=${arg#--out:} ;;
	c|-*) ;;
	*) src=$arg ;;
	esac
done
printf '%%s\n' "$*" >> %s
msg=$(sed -n 's/^#error //p' "$src" | head -n 1)
if [ -n "$msg" ]; then
	echo "Hint: compiling $src"
	printf '%%s(2, 3) Error: %%s\n' "$src" "$msg"
	exit 1
fi
{ echo '#!/bin/sh'; sed '/^discard """/,/^"""/d' "$src"; } > "$out" || exit 1
chmod +x "$out"
`

// NewFakeCompiler writes the script into a fresh temporary directory. Tests
// using it are skipped on Windows.
func NewFakeCompiler(t testing.TB) *FakeCompiler {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler needs /bin/sh")
	}
	dir := t.TempDir()
	fc := &FakeCompiler{
		Path: filepath.Join(dir, "fakec"),
		log:  filepath.Join(dir, "calls.log"),
	}
	script := fmt.Sprintf(fakeCompilerScript, shellQuote(fc.log))
	if err := os.WriteFile(fc.Path, []byte(script), 0755); err != nil {
		t.Fatalf("write fake compiler: %v", err)
	}
	return fc
}

// Calls returns the argument lists of every invocation so far, one
// space-joined string per call.
func (fc *FakeCompiler) Calls() []string {
	data, err := os.ReadFile(fc.log)
	if err != nil {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// WriteFile creates dir/name with content, creating parent directories.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
