package process

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-toolrun/internal/stream"
)

// State represents the lifecycle state of a handle.
type State int

const (
	// StateRunning indicates the OS process is live.
	StateRunning State = iota

	// StateExited indicates the OS process has been reaped but the
	// termination callback has not been delivered yet.
	StateExited

	// StateTerminated indicates the termination callback has fired.
	StateTerminated
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Handle identifies one spawned OS process. It is owned by the Runner
// that created it and is never reused for a different process.
// It is safe for concurrent use.
type Handle struct {
	id        string
	command   Command
	startedAt time.Time
	elevator  Elevator
	output    *stream.Aggregator

	// pgid equals the leader's pid: the process is started with Setpgid.
	pgid int

	mu      sync.RWMutex
	pid     string
	state   State
	outcome Outcome
	done    chan struct{}
}

func newHandle(command Command, pid int, elevator Elevator, output *stream.Aggregator) *Handle {
	return &Handle{
		id:        uuid.New().String(),
		command:   command,
		startedAt: time.Now(),
		elevator:  elevator,
		output:    output,
		pgid:      pid,
		pid:       strconv.Itoa(pid),
		state:     StateRunning,
		done:      make(chan struct{}),
	}
}

// ID returns the unique run identifier.
func (h *Handle) ID() string {
	return h.id
}

// PID returns the OS process id, or "" once the process has terminated.
func (h *Handle) PID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pid
}

// Command returns the command the handle was spawned with.
func (h *Handle) Command() Command {
	return h.command
}

// Elevated reports whether the process was started through the
// elevation wrapper.
func (h *Handle) Elevated() bool {
	return h.elevator != nil
}

// StartedAt returns the time the OS accepted the spawn.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Output returns the aggregated output received so far. After
// termination it includes the final outcome line.
func (h *Handle) Output() string {
	return h.output.String()
}

// Done returns a channel that is closed after the termination callback
// has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the termination outcome and whether the handle has
// terminated.
func (h *Handle) Outcome() (Outcome, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.outcome, h.state == StateTerminated
}

// Wait blocks until the handle terminates or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		o, _ := h.Outcome()
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// liveGroup returns the process group id recorded at spawn while the
// handle has not observed the exit.
func (h *Handle) liveGroup() (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != StateRunning || h.pid == "" || h.pgid <= 0 {
		return 0, false
	}
	return h.pgid, true
}

// markExited records that Wait has reaped the process. Cancellation is
// rejected from this point on.
func (h *Handle) markExited() {
	h.mu.Lock()
	if h.state == StateRunning {
		h.state = StateExited
	}
	h.mu.Unlock()
}

func (h *Handle) clearPID() {
	h.mu.Lock()
	h.pid = ""
	h.mu.Unlock()
}

func (h *Handle) finish(o Outcome) {
	h.mu.Lock()
	h.outcome = o
	h.state = StateTerminated
	h.mu.Unlock()
	close(h.done)
}
