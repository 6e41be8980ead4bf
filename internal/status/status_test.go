package status

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPassing(t *testing.T) {
	assert.True(t, OK.Passing())
	assert.True(t, Skipped.Passing())
	assert.False(t, Failed.Passing())
	assert.False(t, Invalid.Passing())
}

func TestFailureError(t *testing.T) {
	f := NewFailure(KindFileSizeTooLarge, "binary exceeds max_size", "size", "2.0 kB", "max_size", "1.0 kB")
	assert.Equal(t, "FileSizeTooLarge: binary exceeds max_size (max_size=1.0 kB, size=2.0 kB)", f.Error())

	plain := NewFailure(KindRuntimeError, "exit status 3")
	assert.Equal(t, "RuntimeError: exit status 3", plain.Error())
	assert.Nil(t, plain.Details)
}

func TestNewFailureDropsOddKey(t *testing.T) {
	f := NewFailure(KindCompileError, "boom", "cmd", "nim c x", "dangling")
	assert.Len(t, f.Details, 1)
	assert.Equal(t, "nim c x", f.Details["cmd"])
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("stage a: %w", NewFailure(KindOutputsDiffer, "stdout differs"))
	assert.True(t, IsKind(wrapped, KindOutputsDiffer))
	assert.False(t, IsKind(wrapped, KindRuntimeError))
	assert.False(t, IsKind(fmt.Errorf("plain"), KindOutputsDiffer))
}

func TestOutcome(t *testing.T) {
	o := Pass()
	assert.NoError(t, o.Err())

	o.Add(NewFailure(KindOutputFileNotFound, "out.txt missing"))
	o.Add(NewFailure(KindOutputsDiffer, "stdout differs"))
	assert.Equal(t, Failed, o.Status)
	assert.True(t, o.Has(KindOutputsDiffer))
	assert.False(t, o.Has(KindRuntimeError))

	err := o.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out.txt missing")
	assert.Contains(t, err.Error(), "stdout differs")
	assert.True(t, IsKind(err, KindOutputFileNotFound))
}
