// Package process runs external tools and reports failures as typed errors.
package process

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrCommandFailed is matched by every CommandError.
	ErrCommandFailed = errors.New("command failed")

	// ErrTimeout is returned when a command exceeds its time bound.
	ErrTimeout = errors.New("command timed out")

	// ErrSpawnFailed is returned when the process could not be started.
	ErrSpawnFailed = errors.New("command could not be started")

	// ErrNonZeroExit is returned when the process exited with a non-zero status.
	ErrNonZeroExit = errors.New("command exited with non-zero status")
)

// CommandError describes a failed invocation. The message always carries the
// logical name, the executable and the captured stderr.
type CommandError struct {
	Name     string // Logical step name (e.g., "pull_image")
	Command  string
	Args     []string
	ExitCode int // -1 when the process never exited normally
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %s %s: %v", e.Name, e.Command, strings.Join(e.Args, " "), e.Err)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCommandFailed) true for any CommandError.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}
