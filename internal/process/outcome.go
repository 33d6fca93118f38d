package process

import (
	"fmt"
	"strconv"
	"syscall"
)

// SIGTERM is the signal number used for cancellation. An exit by this
// signal is classified as a user cancellation.
const SIGTERM = int(syscall.SIGTERM)

// Classification is the three-way termination outcome.
type Classification int

const (
	// Failed covers non-zero exits, other signals and unknown status.
	Failed Classification = iota

	// Success means the process exited with code 0.
	Success

	// UserCancelled means the process was terminated by SIGTERM.
	UserCancelled
)

// String returns a human-readable name for the classification.
func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case UserCancelled:
		return "user_cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one process termination.
// ExitCode and Signal are nil when the OS did not report them.
type Outcome struct {
	ExitCode       *int
	Signal         *int
	Classification Classification

	// ElevationDenied is set when an elevated run failed because the
	// elevation wrapper refused authorization.
	ElevationDenied bool
}

// Classify applies the termination decision table in priority order:
// exit code 0 is Success, SIGTERM with a non-zero or absent exit code is
// UserCancelled, anything else is Failed.
func Classify(exitCode, signal *int) Outcome {
	o := Outcome{
		ExitCode:       exitCode,
		Signal:         signal,
		Classification: Failed,
	}
	switch {
	case exitCode != nil && *exitCode == 0:
		o.Classification = Success
	case signal != nil && *signal == SIGTERM:
		o.Classification = UserCancelled
	}
	return o
}

// Message returns the final line appended to a run's output.
func (o Outcome) Message() string {
	switch o.Classification {
	case Success:
		return "Process completed successfully."
	case UserCancelled:
		return "Process was manually terminated."
	}
	if o.ElevationDenied {
		return fmt.Sprintf("Elevation was declined (exit code: %s).", formatStatus(o.ExitCode, "unknown"))
	}
	return fmt.Sprintf("Process terminated with exit code: %s and signal code: %s",
		formatStatus(o.ExitCode, "unknown"),
		formatStatus(o.Signal, "none"),
	)
}

// Unknown reports whether the OS gave neither an exit code nor a signal.
func (o Outcome) Unknown() bool {
	return o.ExitCode == nil && o.Signal == nil
}

func formatStatus(v *int, missing string) string {
	if v == nil {
		return missing
	}
	return strconv.Itoa(*v)
}
