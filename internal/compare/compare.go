// Package compare checks captured output channels against expectations.
//
// A channel is a named text blob: "stdout" for the captured process output,
// or the path of an output file the program wrote. Before comparison both
// sides may have volatile substrings (timestamps) replaced with a fixed
// placeholder, so that runs at different times compare equal.
package compare

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/gauntlet/internal/status"
)

// Stdout is the channel name of the captured process standard output.
const Stdout = "stdout"

// Placeholder replaces every volatile substring during normalization.
const Placeholder = "<timestamp>"

// DefaultTimestampPattern matches ISO-8601-like date/time stamps and bare
// clock times.
const DefaultTimestampPattern = `\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?` +
	`|\b\d{2}:\d{2}:\d{2}(?:\.\d+)?\b`

var defaultTimestamp = regexp.MustCompile(DefaultTimestampPattern)

// DefaultPattern returns the compiled built-in timestamp pattern.
func DefaultPattern() *regexp.Regexp {
	return defaultTimestamp
}

// Outputs maps a channel name to its text content.
type Outputs map[string]string

// Channels returns the channel names in sorted order.
func (o Outputs) Channels() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of o. A nil map clones to an empty one.
func (o Outputs) Clone() Outputs {
	c := make(Outputs, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// CheckMode selects how normalized channel texts are compared.
type CheckMode string

const (
	// CheckExact requires character equality.
	CheckExact CheckMode = "exact"

	// CheckSorted sorts both sides line-wise before requiring equality.
	CheckSorted CheckMode = "sorted"
)

// Options configures a comparison.
type Options struct {
	// Pattern matches volatile substrings. Nil disables elision.
	Pattern *regexp.Regexp

	// Check is the comparison mode. Empty means CheckExact.
	Check CheckMode

	// Logger receives mismatch diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Normalize prepares text for comparison: line endings are unified, volatile
// substrings are replaced with Placeholder, and lines are sorted in
// CheckSorted mode.
func Normalize(s string, opts Options) string {
	if strings.Contains(s, "\r\n") {
		s = strings.ReplaceAll(s, "\r\n", "\n")
	}
	if opts.Pattern != nil {
		s = opts.Pattern.ReplaceAllLiteralString(s, Placeholder)
	}
	if opts.Check == CheckSorted {
		s = SortLines(s)
	}
	return s
}

// SortLines sorts the lines of s, keeping a trailing newline if present.
func SortLines(s string) string {
	trailing := strings.HasSuffix(s, "\n")
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	sort.Strings(lines)
	out := strings.Join(lines, "\n")
	if trailing {
		out += "\n"
	}
	return out
}

// Mismatch describes one channel whose content differed.
type Mismatch struct {
	Channel  string
	Expected string
	Actual   string
	Diff     string
}

// Result is the outcome of comparing all expected channels.
type Result struct {
	status.Outcome

	// Missing lists expected channels absent from the actual outputs.
	Missing []string

	// Mismatches lists channels whose normalized content differed.
	Mismatches []Mismatch
}

// Compare checks every expected channel against actual.
//
// All channels are evaluated even after a failure so the report is complete.
// The result is OK iff every expected channel is present and its normalized
// form equals the normalized actual text.
func Compare(expected, actual Outputs, opts Options) Result {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := Result{Outcome: status.Pass()}
	for _, channel := range expected.Channels() {
		want := expected[channel]
		got, ok := actual[channel]
		if !ok {
			logger.Warn("expected output not produced", "channel", channel)
			res.Missing = append(res.Missing, channel)
			res.Add(status.NewFailure(status.KindOutputFileNotFound,
				fmt.Sprintf("output %q was not produced", channel), "channel", channel))
			continue
		}

		nwant, ngot := Normalize(want, opts), Normalize(got, opts)
		if nwant == ngot {
			continue
		}

		diff := Diff(nwant, ngot)
		logger.Warn("outputs differ",
			"channel", channel,
			"expected", want,
			"actual", got,
			"diff", diff,
		)
		res.Mismatches = append(res.Mismatches, Mismatch{
			Channel:  channel,
			Expected: want,
			Actual:   got,
			Diff:     diff,
		})
		res.Add(status.NewFailure(status.KindOutputsDiffer,
			fmt.Sprintf("output %q differs", channel), "channel", channel, "diff", diff))
	}
	return res
}

// Diff renders a unified diff from expected to actual for human diagnostics.
func Diff(expected, actual string) string {
	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return fmt.Sprintf("diff unavailable: %v", err)
	}
	return s
}
