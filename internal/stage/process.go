package stage

import (
	"context"
	"errors"
	"os/exec"
)

// processResult is the captured output and exit status of a subprocess.
type processResult struct {
	Output   string
	ExitCode int
}

// runProcess runs name with args, capturing stdout and stderr together. A
// non-zero exit is reported in the result; the error is non-nil only when
// the process could not be run at all.
func runProcess(ctx context.Context, name string, args []string) (processResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	res := processResult{Output: string(out)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			// Killed by a signal.
			res.ExitCode = 128
		}
		return res, nil
	default:
		return res, err
	}
}
