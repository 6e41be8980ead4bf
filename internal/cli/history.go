package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/TwiN/go-color"
	"github.com/spf13/cobra"

	"github.com/roach88/gauntlet/internal/identity"
	"github.com/roach88/gauntlet/internal/status"
	"github.com/roach88/gauntlet/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Test     string
	Limit    int
}

// RunSummary is a recorded run with its totals.
type RunSummary struct {
	store.Run
	Counts map[status.Status]int `json:"counts"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history --db <path>",
		Short: "Show recorded results",
		Long: `Show runs recorded with "run --db", newest first. With --test, show the
recorded results of one test instead.

Examples:
  gauntlet history --db history.db
  gauntlet history --db history.db --test strings/split --limit 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Test, "test", "", "show results of this test")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of entries")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func showHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if _, err := os.Stat(opts.Database); errors.Is(err, os.ErrNotExist) {
		return out.fail(CodeStore, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return out.fail(CodeStore, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Test != "" {
		results, err := st.TestHistory(ctx, opts.Test, opts.Limit)
		if err != nil {
			return out.fail(CodeStore, "failed to read history", err)
		}
		return out.Success(results, func(w io.Writer) { writeResults(w, opts.Test, results) })
	}

	runs, err := st.Runs(ctx, opts.Limit)
	if err != nil {
		return out.fail(CodeStore, "failed to read history", err)
	}
	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		_, results, err := st.ReadRun(ctx, run.ID)
		if err != nil {
			return out.fail(CodeStore, "failed to read run", err)
		}
		rs := RunSummary{Run: run, Counts: make(map[status.Status]int)}
		for _, r := range results {
			rs.Counts[r.Status]++
		}
		summaries = append(summaries, rs)
	}
	return out.Success(summaries, func(w io.Writer) { writeRuns(w, summaries) })
}

func writeRuns(w io.Writer, runs []RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %s %s %s %s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			color.Ize(color.Green, fmt.Sprintf("%d ok", r.Counts[status.OK])),
			color.Ize(color.Red, fmt.Sprintf("%d failed", r.Counts[status.Failed])),
			color.Ize(color.Yellow, fmt.Sprintf("%d skipped", r.Counts[status.Skipped])),
			color.Ize(color.Purple, fmt.Sprintf("%d invalid", r.Counts[status.Invalid])),
		)
	}
}

func writeResults(w io.Writer, name string, results []store.Result) {
	if len(results) == 0 {
		fmt.Fprintf(w, "No results recorded for %s.\n", name)
		return
	}
	for _, r := range results {
		line := fmt.Sprintf("%s  %s %s  %s",
			r.RunID,
			colorStatus(r.Status),
			color.Ize(color.Cyan, identity.Short(r.Identity)),
			r.Duration.Round(time.Millisecond),
		)
		if k := r.Kind(); k != "" {
			line += "  " + string(k)
		}
		fmt.Fprintln(w, line)
	}
}
