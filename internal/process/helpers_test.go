package process

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(elevator Elevator, sender SignalSender) *Runner {
	return NewRunner(Config{
		Elevator:  elevator,
		Sender:    sender,
		Logger:    newTestLogger(),
		WaitDelay: 500 * time.Millisecond,
	})
}

// recorder captures callback events in delivery order.
type recorder struct {
	mu         sync.Mutex
	events     []string
	chunks     []string
	outcomes   []Outcome
	terminated chan struct{}
	once       sync.Once
}

func newRecorder() *recorder {
	return &recorder{terminated: make(chan struct{})}
}

func (r *recorder) onData(chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "data")
	r.chunks = append(r.chunks, chunk)
}

func (r *recorder) onTerminate(o Outcome) {
	r.mu.Lock()
	r.events = append(r.events, "terminate")
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	r.once.Do(func() { close(r.terminated) })
}

func (r *recorder) wait(t *testing.T, timeout time.Duration) Outcome {
	t.Helper()
	select {
	case <-r.terminated:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for termination callback")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[0]
}

func (r *recorder) snapshot() (events, chunks []string, outcomes []Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...),
		append([]string(nil), r.chunks...),
		append([]Outcome(nil), r.outcomes...)
}

func waitDone(t *testing.T, h *Handle, timeout time.Duration) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	o, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("handle did not terminate: %v", err)
	}
	return o
}

// =============================================================================
// Fake signal sender and elevator
// =============================================================================

// countingSender records signals and forwards them to the real group sender.
type countingSender struct {
	calls atomic.Int32
	pids  []int
	mu    sync.Mutex
}

func (s *countingSender) Signal(pgid int, sig unix.Signal) error {
	s.calls.Add(1)
	s.mu.Lock()
	s.pids = append(s.pids, pgid)
	s.mu.Unlock()
	return GroupSender{}.Signal(pgid, sig)
}

// fakeElevator runs the wrapped program directly as the current user
// and records terminations.
type fakeElevator struct {
	authErr    error
	wrapFn     func(path string, args []string) (string, []string)
	deniedCode int

	authCalls      atomic.Int32
	terminateCalls atomic.Int32
}

func (e *fakeElevator) Name() string { return "fake" }

func (e *fakeElevator) Authorize(context.Context) error {
	e.authCalls.Add(1)
	return e.authErr
}

func (e *fakeElevator) Wrap(path string, args []string) (string, []string) {
	if e.wrapFn != nil {
		return e.wrapFn(path, args)
	}
	return path, args
}

func (e *fakeElevator) Terminate(_ context.Context, pgid int) error {
	e.terminateCalls.Add(1)
	return unix.Kill(-pgid, unix.SIGTERM)
}

func (e *fakeElevator) Denied(code int) bool {
	return e.deniedCode != 0 && code == e.deniedCode
}

var _ Elevator = (*fakeElevator)(nil)
