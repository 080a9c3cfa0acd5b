package cli

import (
	"errors"
	"fmt"
)

// UsageError marks a mistake in how the command was invoked. main exits
// with status 2 for these instead of 1.
type UsageError struct{ msg string }

func (e *UsageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}

// ArgsError reports a wrong positional argument count for cmd.
func ArgsError(usage string, want, got int) error {
	return usagef("expected %d argument(s), got %d\n\nUsage:\n  %s", want, got, usage)
}

// ExitCode maps an Execute error onto a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}
