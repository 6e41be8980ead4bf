// Command gauntlet runs compiler regression tests.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/gauntlet/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		os.Exit(cli.ExitSuccess)
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(os.Stderr, "Error:", msg)
	}

	// Errors cobra raises itself (unknown flags, bad arguments) are usage
	// errors.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(exitErr.Code)
}
