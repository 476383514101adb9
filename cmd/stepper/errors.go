package main

import (
	"errors"
	"fmt"
)

// ExitError ends the process with Code. The failure has already been
// reported to the user, so main prints nothing further.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an ExitError with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError extracts the exit code from an ExitError anywhere in err's chain.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
