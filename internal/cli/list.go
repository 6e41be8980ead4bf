package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TwiN/go-color"
	"github.com/spf13/cobra"

	"github.com/roach88/gauntlet/internal/driver"
	"github.com/roach88/gauntlet/internal/identity"
	"github.com/roach88/gauntlet/internal/status"
	"github.com/roach88/gauntlet/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	ConfigOptions
	Database string
}

// ListedTest is a discovered test with its last recorded status, when a
// database was given and holds one for the same identity.
type ListedTest struct {
	driver.Entry
	LastStatus status.Status `json:"last_status,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list [paths...]",
		Short: "List discovered tests",
		Long: `List the tests that run would execute, with their stages and the identity
that names their binaries. Nothing is compiled.

Examples:
  gauntlet list tests/
  gauntlet list --release --format json tests/`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTests(opts, args, cmd)
		},
	}

	opts.ConfigOptions.register(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "show the last recorded status from this SQLite database")
	return cmd
}

func listTests(opts *ListOptions, args []string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := opts.loadConfig(cmd, args)
	if err != nil {
		return out.fail(CodeConfig, "failed to load configuration", err)
	}

	d := driver.New(driver.Options{Config: cfg, Logger: logger})
	paths, err := d.Discover(args...)
	if err != nil {
		return out.fail(CodeDiscover, "failed to discover tests", err)
	}
	entries := make([]ListedTest, 0, len(paths))
	for _, e := range d.List(paths) {
		entries = append(entries, ListedTest{Entry: e})
	}

	if opts.Database != "" {
		if err := fillLastStatus(cmd.Context(), opts.Database, entries); err != nil {
			return out.fail(CodeStore, "failed to read history", err)
		}
	}

	return out.Success(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No tests found.")
			return
		}
		for _, e := range entries {
			writeEntry(w, e)
		}
	})
}

func fillLastStatus(ctx context.Context, path string, entries []ListedTest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	for i := range entries {
		e := &entries[i]
		if e.Identity == "" {
			continue
		}
		last, ok, err := st.LastStatus(ctx, e.Name, e.Identity)
		if err != nil {
			return err
		}
		if ok {
			e.LastStatus = last
		}
	}
	return nil
}

func writeEntry(w io.Writer, e ListedTest) {
	switch {
	case !e.Valid:
		fmt.Fprintf(w, "%s %s\n", color.Ize(color.Purple, "-"), e.Name)
		return
	case e.Skip != "":
		fmt.Fprintf(w, "%s %s %s\n", color.Ize(color.Yellow, "-"), e.Name, color.Ize(color.Gray, "("+e.Skip+")"))
		return
	}

	stages := strings.Join(e.Stages, ", ")
	if e.Shim {
		stages = "shim"
	}
	line := fmt.Sprintf("%s %s %s %s",
		color.Ize(color.Green, "+"),
		e.Name,
		color.Ize(color.Cyan, identity.Short(e.Identity)),
		color.Ize(color.Gray, "["+stages+"]"),
	)
	if e.LastStatus != "" {
		line += " last " + colorStatus(e.LastStatus)
	}
	fmt.Fprintln(w, strings.TrimRight(line, " "))
}
