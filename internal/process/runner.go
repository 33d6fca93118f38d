// Package process launches external commands, streams their output and
// reports exactly one classified termination per spawned process.
package process

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-toolrun/internal/stream"
)

// Config holds configuration for creating a new Runner.
type Config struct {
	// Elevator launches elevated commands. Nil disables elevation.
	Elevator Elevator

	// Sender delivers signals for non-elevated cancellation.
	// Defaults to process-group SIGTERM via x/sys/unix.
	Sender SignalSender

	Logger   *slog.Logger
	Observer Observer

	// WaitDelay bounds how long output copying may continue after the
	// process exits (an orphaned grandchild can hold the pipes open).
	WaitDelay time.Duration

	// BufferSize is the chunk queue length per run.
	BufferSize int

	// Dir and Env are applied to every spawned command when set.
	Dir string
	Env []string
}

// Runner spawns commands and wires their output and exit to callbacks.
// Runners share no mutable state and may be used concurrently.
type Runner struct {
	elevator   Elevator
	logger     *slog.Logger
	observer   Observer
	waitDelay  time.Duration
	bufferSize int
	dir        string
	env        []string
	canceller  *Canceller
}

// NewRunner creates a Runner with the given configuration.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	waitDelay := cfg.WaitDelay
	if waitDelay <= 0 {
		waitDelay = 2 * time.Second
	}

	return &Runner{
		elevator:   cfg.Elevator,
		logger:     logger,
		observer:   observer,
		waitDelay:  waitDelay,
		bufferSize: cfg.BufferSize,
		dir:        cfg.Dir,
		env:        cfg.Env,
		canceller:  NewCanceller(cfg.Sender, logger, observer),
	}
}

// Canceller returns the canceller bound to this runner's logger and
// observer.
func (r *Runner) Canceller() *Canceller {
	return r.canceller
}

// Spawn starts command and returns as soon as the OS has accepted it.
//
// onData receives each output chunk in arrival order, followed by the
// outcome line. onTerminate is called exactly once, after the last
// onData. Both run on a goroutine owned by the runner, never on the
// caller's, and either may be nil. The returned string is the output
// aggregated at return time.
//
// ctx bounds the spawn step only (including elevation authorization);
// use a Canceller to end the process.
func (r *Runner) Spawn(ctx context.Context, command Command, onData func(string), onTerminate func(Outcome)) (*Handle, string, error) {
	if command.Program() == "" {
		return nil, "", r.spawnFailed(command, ErrEmptyProgram)
	}

	path, err := exec.LookPath(command.Program())
	if err != nil {
		return nil, "", r.spawnFailed(command, err)
	}

	program, args := path, command.Args()
	var elevator Elevator
	if command.Elevated() {
		if r.elevator == nil {
			return nil, "", r.spawnFailed(command, ErrNoElevator)
		}
		if err := r.elevator.Authorize(ctx); err != nil {
			return nil, "", r.spawnFailed(command, err)
		}
		elevator = r.elevator
		program, args = elevator.Wrap(path, args)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", r.spawnFailed(command, err)
	}

	pipeline := stream.NewPipeline(r.bufferSize)
	stdout := stream.NewChunkWriter("stdout", pipeline)
	stderr := stream.NewChunkWriter("stderr", pipeline)

	cmd := exec.Command(program, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = r.env
	}
	cmd.WaitDelay = r.waitDelay

	// Own process group so SIGTERM reaches the whole tree
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, "", r.spawnFailed(command, err)
	}

	output := stream.NewAggregator()
	h := newHandle(command, cmd.Process.Pid, elevator, output)

	sig := &signaler{
		handle:      h,
		onData:      onData,
		onTerminate: onTerminate,
		logger:      r.logger,
		observer:    r.observer,
	}

	// Callbacks are held back until the handle has been returned.
	release := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-release
		pipeline.RunDispatcher(func(c stream.Chunk) {
			output.Append(c.Text)
			r.observer.OutputReceived(h, c.Stream, len(c.Text))
			if onData != nil {
				onData(c.Text)
			}
		})
	}()
	go r.monitor(cmd, h, pipeline, drained, sig)

	r.logger.Info("process_started",
		"run_id", h.ID(),
		"pid", h.PID(),
		"command", command.String(),
		"elevated", command.Elevated(),
	)
	r.observer.ProcessStarted(h)

	initial := output.String()
	close(release)
	return h, initial, nil
}

// Run spawns command and blocks until it terminates. If ctx is done
// first the process is cancelled and Run still waits for its exit.
// It returns the outcome and the aggregated output.
func (r *Runner) Run(ctx context.Context, command Command) (Outcome, string, error) {
	h, _, err := r.Spawn(ctx, command, nil, nil)
	if err != nil {
		return Outcome{}, "", err
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		if err := r.canceller.Cancel(context.WithoutCancel(ctx), h); err != nil && !errors.Is(err, ErrNoProcess) {
			r.logger.Warn("run_cancel_failed", "run_id", h.ID(), "error", err)
		}
		<-h.Done()
	}

	o, _ := h.Outcome()
	return o, h.Output(), nil
}

// monitor waits for the process, drains remaining output and fires the
// signaler. It is the only caller of cmd.Wait.
func (r *Runner) monitor(cmd *exec.Cmd, h *Handle, pipeline *stream.Pipeline, drained <-chan struct{}, sig *signaler) {
	waitErr := cmd.Wait()
	h.markExited()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// ErrWaitDelay or an I/O error; the exit status is still valid
		r.logger.Warn("process_wait_error",
			"run_id", h.ID(),
			"pid", h.PID(),
			"error", waitErr,
		)
	}

	pipeline.CloseChannel()
	<-drained

	chunks, bytes, _ := pipeline.Stats()
	r.logger.Debug("output_drained",
		"run_id", h.ID(),
		"chunks", chunks,
		"bytes", bytes,
	)

	exitCode, signal := exitStatus(cmd.ProcessState)
	sig.fire(exitCode, signal)
}

func (r *Runner) spawnFailed(command Command, err error) error {
	r.logger.Error("spawn_failed",
		"command", command.String(),
		"elevated", command.Elevated(),
		"error", err,
	)
	r.observer.SpawnFailed(command, err)
	return &SpawnError{Command: command, Err: err}
}
