package process

import (
	"errors"
	"fmt"
)

// Sentinel errors for the process package.
var (
	// ErrEmptyProgram is returned when a Command has no program name.
	ErrEmptyProgram = errors.New("program name is empty")

	// ErrNoElevator is returned when an elevated command is spawned by a
	// runner that has no elevation wrapper configured.
	ErrNoElevator = errors.New("no elevation wrapper configured")

	// ErrElevationDenied is returned when the elevation wrapper refuses to
	// authorize the operating user.
	ErrElevationDenied = errors.New("elevation declined")

	// ErrNoProcess is returned when a cancellation targets a handle whose
	// process has already terminated.
	ErrNoProcess = errors.New("no live process for handle")
)

// SpawnError reports that a command never reached the running state.
// No termination event follows a SpawnError.
type SpawnError struct {
	Command Command
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// CancelError reports that a cancellation request was rejected. The
// process state is left untouched.
type CancelError struct {
	HandleID string
	PID      string
	Err      error
}

func (e *CancelError) Error() string {
	if e.PID == "" {
		return fmt.Sprintf("cancel %s: %v", e.HandleID, e.Err)
	}
	return fmt.Sprintf("cancel %s (pid %s): %v", e.HandleID, e.PID, e.Err)
}

func (e *CancelError) Unwrap() error {
	return e.Err
}
