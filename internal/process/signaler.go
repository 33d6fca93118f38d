package process

import (
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"time"
)

// signaler turns the single OS exit event of a handle into the caller's
// termination callback. It fires at most once.
type signaler struct {
	handle      *Handle
	onData      func(string)
	onTerminate func(Outcome)
	logger      *slog.Logger
	observer    Observer

	fired atomic.Bool
}

// fire classifies the exit, clears the pid, appends the outcome line and
// invokes onTerminate. A second call is logged and dropped.
func (s *signaler) fire(exitCode, signal *int) bool {
	if !s.fired.CompareAndSwap(false, true) {
		s.logger.Warn("duplicate_termination",
			"run_id", s.handle.ID(),
			"command", s.handle.Command().Program(),
		)
		return false
	}

	o := Classify(exitCode, signal)
	if e := s.handle.elevator; e != nil && o.Classification == Failed && exitCode != nil && e.Denied(*exitCode) {
		o.ElevationDenied = true
	}

	pid := s.handle.PID()
	s.handle.clearPID()

	line := o.Message()
	s.handle.output.Append(line)
	s.handle.output.Close()
	if s.onData != nil {
		s.onData(line)
	}

	runtime := time.Since(s.handle.StartedAt())
	s.logger.Info("process_terminated",
		"run_id", s.handle.ID(),
		"pid", pid,
		"command", s.handle.Command().Program(),
		"classification", o.Classification.String(),
		"exit_code", formatStatus(o.ExitCode, "unknown"),
		"signal", formatStatus(o.Signal, "none"),
		"elevation_denied", o.ElevationDenied,
		"runtime", runtime.String(),
	)
	s.observer.ProcessTerminated(s.handle, o, runtime)

	if s.onTerminate != nil {
		s.onTerminate(o)
	}
	s.handle.finish(o)
	return true
}

// exitStatus extracts the raw exit code and signal from a reaped process.
// Both are nil when the state is missing or unrecognized.
func exitStatus(ps *os.ProcessState) (exitCode, signal *int) {
	if ps == nil {
		return nil, nil
	}

	if status, ok := ps.Sys().(syscall.WaitStatus); ok {
		switch {
		case status.Exited():
			code := status.ExitStatus()
			return &code, nil
		case status.Signaled():
			sig := int(status.Signal())
			return nil, &sig
		}
		return nil, nil
	}

	code := ps.ExitCode()
	if code < 0 {
		return nil, nil
	}
	return &code, nil
}
