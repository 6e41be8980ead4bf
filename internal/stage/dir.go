package stage

import (
	"fmt"
	"os"
)

// InDir runs f with the working directory set to dir. The previous working
// directory is restored on every return path; a failure to restore is
// reported unless f already failed.
func InDir(dir string, f func() error) (err error) {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	defer func() {
		if err2 := os.Chdir(cwd); err2 != nil && err == nil {
			err = fmt.Errorf("failed to restore working directory: %w", err2)
		}
	}()

	if err = os.Chdir(dir); err != nil {
		return fmt.Errorf("failed to enter %s: %w", dir, err)
	}
	return f()
}
