// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/i11/cosh/internal/lock"
)

// Process exit codes. A container's own exit code is passed through as is.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
	// ExitBusy is EX_TEMPFAIL: another invocation holds the execution lock.
	ExitBusy = 75
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
// A nil Err means there is nothing left to report.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps a command failure to the process exit code.
func exitCodeFor(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, lock.ErrBusy):
		return ExitBusy
	default:
		return ExitFailure
	}
}
