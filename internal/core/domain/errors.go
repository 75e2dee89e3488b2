package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrConfiguration is returned when required settings are missing or invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotDeployed is returned by operations that need a successful deploy first.
	ErrNotDeployed = errors.New("rollup not deployed")

	// ErrArtifactMissing is returned when a tool reported success but an
	// expected generated file is absent.
	ErrArtifactMissing = errors.New("generated artifact missing")

	// ErrFileSystem is returned on directory or file I/O failure.
	ErrFileSystem = errors.New("file system error")

	// ErrTargetExists is returned when a clone target directory already exists.
	ErrTargetExists = errors.New("target directory already exists")

	// ErrDeployInProgress is returned when Deploy is called while another
	// Deploy is running against the same context.
	ErrDeployInProgress = errors.New("deployment already in progress")

	// ErrInvalidArgument is returned when a job argument fails validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransition is returned on a disallowed state change.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Error wraps errors with the operation and, for pipeline failures, the stage.
type Error struct {
	Op      string // Operation that failed (e.g., "Deploy", "Restart")
	Stage   string // Pipeline stage, empty outside Deploy
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(op, stage, message string, err error) *Error {
	return &Error{
		Op:      op,
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}
