package spec

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gauntlet/internal/compare"
	"github.com/roach88/gauntlet/internal/config"
)

func TestParseShim(t *testing.T) {
	src := `discard """
output: "Hello\n"
args: [a, "b c"]
cmd: "$compiler c $options --out:$out $file"
"""
echo "Hello"
`
	s, err := ParseShim("tests/hello.nim", "hello", []byte(src))
	require.NoError(t, err)

	assert.True(t, s.Shim)
	assert.Equal(t, "hello", s.Program)
	assert.Equal(t, "$compiler c $options --out:$out $file", s.ShimCmd)
	assert.Equal(t, compare.CheckExact, s.Check)
	assert.False(t, s.Rewritable())
	assert.Equal(t, "tests/hello.nim", s.SourcePath(".nim"))

	require.Len(t, s.Stages, 1)
	st := s.Stages[0]
	assert.Equal(t, []string{"a", "b c"}, st.Args)
	assert.Equal(t, compare.Outputs{compare.Stdout: "Hello\n"}, st.Outputs)
}

func TestParseShim_SortOutput(t *testing.T) {
	src := "discard \"\"\"\noutput: |\n  b\n  a\nsortoutput: true\n\"\"\"\n"
	s, err := ParseShim("sorted.nim", "sorted", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, compare.CheckSorted, s.Check)
	require.Len(t, s.Stages, 1)
	assert.Equal(t, "a\nb\n", s.Stages[0].Outputs[compare.Stdout])
}

func TestParseShim_EmptyBlock(t *testing.T) {
	s, err := ParseShim("empty.nim", "empty", []byte("discard \"\"\"\n\"\"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "empty", s.Program)
	require.Len(t, s.Stages, 1)
	assert.Empty(t, s.Stages[0].Outputs)
}

func TestParseShim_NoHeader(t *testing.T) {
	s, err := ParseShim("plain.nim", "plain", []byte("echo 1\n"))
	assert.ErrorIs(t, err, ErrNoShimHeader)
	require.NotNil(t, s)
	assert.False(t, s.Valid())

	_, err = ParseShim("open.nim", "open", []byte("discard \"\"\"\noutput: x\n"))
	assert.ErrorIs(t, err, ErrNoShimHeader)
}

func TestParseShim_BadYAMLKeepsProgram(t *testing.T) {
	s, err := ParseShim("typo.nim", "typo", []byte("discard \"\"\"\noutptu: x\n\"\"\"\n"))
	assert.Error(t, err)
	assert.Equal(t, "typo", s.Program)
	assert.Empty(t, s.Stages)
}

func TestLoad_Shim(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.nim", "discard \"\"\"\noutput: \"hi\\n\"\n\"\"\"\n")

	s := Load(path, dir, config.Defaults(), quietLogger())
	assert.True(t, s.Shim)
	assert.Equal(t, "hello", s.Name)
	assert.Equal(t, "hello", s.Program)
	assert.Equal(t, filepath.Join(dir, "hello.nim"), s.SourcePath(".nim"))
}

func TestHasShimHeader(t *testing.T) {
	assert.True(t, hasShimHeader([]byte("discard \"\"\"\n\"\"\"")))
	assert.True(t, hasShimHeader([]byte("\n\n  discard \"\"\"")))
	assert.False(t, hasShimHeader([]byte("echo 1")))
	assert.False(t, hasShimHeader([]byte("  \n")))
	assert.False(t, hasShimHeader([]byte("discard \"")))
	assert.True(t, HasShimHeader(strings.NewReader("\r\n\tdiscard \"\"\"\noutput: x\n\"\"\"\n")))
}
