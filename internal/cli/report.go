package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/TwiN/go-color"

	"github.com/roach88/gauntlet/internal/driver"
	"github.com/roach88/gauntlet/internal/status"
)

func statusColor(s status.Status) string {
	switch s {
	case status.OK:
		return color.Green
	case status.Failed:
		return color.Red
	case status.Skipped:
		return color.Yellow
	case status.Invalid:
		return color.Purple
	}
	return ""
}

// colorStatus pads the status to a fixed width so names line up.
func colorStatus(s status.Status) string {
	label := fmt.Sprintf("%-8s", s)
	if c := statusColor(s); c != "" {
		return color.Ize(c, label)
	}
	return label
}

// textReporter renders test reports for people.
type textReporter struct {
	w       io.Writer
	verbose bool
}

// Report prints one line per test, followed by its failures.
func (r *textReporter) Report(rep driver.Report) {
	line := colorStatus(rep.Status) + " " + rep.Name
	if rep.Reason != "" {
		line += color.Ize(color.Gray, " ("+rep.Reason+")")
	}
	if rep.Duration > 0 {
		line += color.Ize(color.Gray, " "+rep.Duration.Round(time.Millisecond).String())
	}
	fmt.Fprintln(r.w, line)

	for _, f := range rep.Failures {
		fmt.Fprintf(r.w, "    %s: %s\n", f.Kind, f.Message)
		if diff := f.Details["diff"]; diff != "" {
			for _, l := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
				fmt.Fprintln(r.w, "      "+colorDiffLine(l))
			}
		}
		if r.verbose {
			r.details(f.Details)
		}
	}
}

func (r *textReporter) details(details map[string]string) {
	keys := make([]string, 0, len(details))
	for k := range details {
		if k != "diff" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(r.w, "      %s=%s\n", k, details[k])
	}
}

func colorDiffLine(l string) string {
	switch {
	case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
		return l
	case strings.HasPrefix(l, "+"):
		return color.Ize(color.Green, l)
	case strings.HasPrefix(l, "-"):
		return color.Ize(color.Red, l)
	case strings.HasPrefix(l, "@@"):
		return color.Ize(color.Cyan, l)
	}
	return l
}

// Summary prints the totals line.
func (r *textReporter) Summary(sum driver.Summary) {
	if sum.Total == 0 {
		fmt.Fprintln(r.w, color.Ize(color.Yellow, "no tests found"))
		return
	}
	fmt.Fprintf(r.w, "\n%d tests: %s, %s, %s, %s\n",
		sum.Total,
		color.Ize(color.Green, fmt.Sprintf("%d ok", sum.OK)),
		color.Ize(color.Red, fmt.Sprintf("%d failed", sum.Failed)),
		color.Ize(color.Yellow, fmt.Sprintf("%d skipped", sum.Skipped)),
		color.Ize(color.Purple, fmt.Sprintf("%d invalid", sum.Invalid)),
	)
}
