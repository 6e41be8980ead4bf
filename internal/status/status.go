// Package status defines the outcome vocabulary shared by every stage of a
// test: the four terminal statuses and the failure taxonomy that explains a
// FAILED result.
package status

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Status is the terminal classification of a test or a stage.
type Status string

const (
	// OK means every check passed.
	OK Status = "OK"

	// Failed means at least one check failed. The accompanying failures
	// explain why.
	Failed Status = "FAILED"

	// Skipped means the test was intentionally not run, or it drifted and
	// was corrected by rewrite mode.
	Skipped Status = "SKIPPED"

	// Invalid means the test definition was structurally unusable.
	Invalid Status = "INVALID"
)

// Passing reports whether s lets dependent stages proceed.
func (s Status) Passing() bool {
	return s == OK || s == Skipped
}

func (s Status) String() string {
	return string(s)
}

// Kind categorizes a failure.
type Kind string

const (
	KindSourceFileNotFound       Kind = "SourceFileNotFound"
	KindExeFileNotFound          Kind = "ExeFileNotFound"
	KindOutputFileNotFound       Kind = "OutputFileNotFound"
	KindCompileError             Kind = "CompileError"
	KindCompileErrorDiffers      Kind = "CompileErrorDiffers"
	KindUnexpectedCompileSuccess Kind = "UnexpectedCompileSuccess"
	KindRuntimeError             Kind = "RuntimeError"
	KindOutputsDiffer            Kind = "OutputsDiffer"
	KindFileSizeTooLarge         Kind = "FileSizeTooLarge"
)

// Failure is one diagnostic explaining a FAILED outcome.
//
// Failures are never fatal to a run; they are logged and summarized.
type Failure struct {
	// Kind identifies the failure category.
	Kind Kind `json:"kind"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Details carries contextual figures (command line, sizes, channel).
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if len(f.Details) == 0 {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	keys := make([]string, 0, len(f.Details))
	for k := range f.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f.Details[k]
	}
	return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Message, strings.Join(parts, ", "))
}

// NewFailure creates a Failure with optional key/value detail pairs.
// An odd trailing key is dropped.
func NewFailure(kind Kind, message string, kv ...string) *Failure {
	f := &Failure{Kind: kind, Message: message}
	if len(kv) >= 2 {
		f.Details = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			f.Details[kv[i]] = kv[i+1]
		}
	}
	return f
}

// IsKind reports whether err is, or wraps, a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

// Outcome is the result of running one step of a test.
type Outcome struct {
	Status   Status
	Failures []*Failure
}

// Pass returns an OK outcome.
func Pass() Outcome {
	return Outcome{Status: OK}
}

// Fail returns a FAILED outcome carrying the given failures.
func Fail(failures ...*Failure) Outcome {
	return Outcome{Status: Failed, Failures: failures}
}

// Skip returns a SKIPPED outcome.
func Skip() Outcome {
	return Outcome{Status: Skipped}
}

// Add records a failure and marks the outcome FAILED.
func (o *Outcome) Add(f *Failure) {
	o.Failures = append(o.Failures, f)
	o.Status = Failed
}

// Has reports whether the outcome carries a failure of the given kind.
func (o Outcome) Has(kind Kind) bool {
	for _, f := range o.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Err joins the outcome's failures into one error, or returns nil.
func (o Outcome) Err() error {
	if len(o.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(o.Failures))
	for i, f := range o.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
