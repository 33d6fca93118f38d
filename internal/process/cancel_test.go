package process

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func spawnSleeper(t *testing.T, r *Runner, command Command) (*Handle, *recorder) {
	t.Helper()
	rec := newRecorder()
	h, _, err := r.Spawn(context.Background(), command, rec.onData, rec.onTerminate)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if h.PID() == "" {
		t.Fatal("long-running process should have a pid")
	}
	return h, rec
}

func TestCancel_LongRunningIsUserCancelled(t *testing.T) {
	r := newTestRunner(nil, nil)
	h, rec := spawnSleeper(t, r, NewCommand("sleep", "30"))

	if err := r.Canceller().Cancel(context.Background(), h); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	o := rec.wait(t, 5*time.Second)
	waitDone(t, h, time.Second)

	if o.Classification != UserCancelled {
		t.Errorf("Classification = %v, want user_cancelled", o.Classification)
	}
	if o.Signal == nil || *o.Signal != SIGTERM {
		t.Errorf("Signal = %v, want %d", o.Signal, SIGTERM)
	}
	if h.PID() != "" {
		t.Errorf("PID() = %q after cancellation, want empty", h.PID())
	}
	if got := h.Output(); got != "Process was manually terminated." {
		t.Errorf("Output() = %q", got)
	}
}

func TestCancel_Twice(t *testing.T) {
	sender := &countingSender{}
	r := newTestRunner(nil, sender)
	h, rec := spawnSleeper(t, r, NewCommand("sleep", "30"))

	if err := r.Canceller().Cancel(context.Background(), h); err != nil {
		t.Fatalf("first Cancel() error = %v", err)
	}
	rec.wait(t, 5*time.Second)
	waitDone(t, h, time.Second)

	err := r.Canceller().Cancel(context.Background(), h)
	if err == nil {
		t.Fatal("second Cancel() should fail")
	}
	var cancelErr *CancelError
	if !errors.As(err, &cancelErr) {
		t.Fatalf("error %T is not a *CancelError", err)
	}
	if !errors.Is(err, ErrNoProcess) {
		t.Errorf("error = %v, want ErrNoProcess", err)
	}

	if got := sender.calls.Load(); got != 1 {
		t.Errorf("signals sent = %d, want 1", got)
	}
	if _, _, outcomes := rec.snapshot(); len(outcomes) != 1 {
		t.Errorf("termination events = %d, want 1", len(outcomes))
	}
}

func TestCancel_ElevationBranching(t *testing.T) {
	tests := []struct {
		name          string
		command       Command
		wantElevator  int32
		wantPlainSend int32
	}{
		{"elevated_routes_through_elevator", NewElevatedCommand("sleep", "30"), 1, 0},
		{"plain_never_uses_elevator", NewCommand("sleep", "30"), 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elev := &fakeElevator{}
			sender := &countingSender{}
			r := newTestRunner(elev, sender)
			h, rec := spawnSleeper(t, r, tt.command)

			if err := r.Canceller().Cancel(context.Background(), h); err != nil {
				t.Fatalf("Cancel() error = %v", err)
			}
			o := rec.wait(t, 5*time.Second)

			if got := elev.terminateCalls.Load(); got != tt.wantElevator {
				t.Errorf("elevator terminations = %d, want %d", got, tt.wantElevator)
			}
			if got := sender.calls.Load(); got != tt.wantPlainSend {
				t.Errorf("plain signals = %d, want %d", got, tt.wantPlainSend)
			}
			if o.Classification != UserCancelled {
				t.Errorf("Classification = %v, want user_cancelled", o.Classification)
			}
		})
	}
}

func TestCancel_ReachesProcessGroup(t *testing.T) {
	r := NewRunner(Config{
		Logger:    newTestLogger(),
		WaitDelay: 10 * time.Second,
	})
	h, rec := spawnSleeper(t, r, NewCommand("sh", "-c", "sleep 30 & wait"))

	if err := r.Canceller().Cancel(context.Background(), h); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// The grandchild holds stdout open; only a group signal ends the
	// run before WaitDelay expires.
	o := rec.wait(t, 5*time.Second)
	if o.Classification != UserCancelled {
		t.Errorf("Classification = %v, want user_cancelled", o.Classification)
	}
}

func TestCancel_FromDataCallback(t *testing.T) {
	r := newTestRunner(nil, nil)
	rec := newRecorder()

	var h *Handle
	var once sync.Once
	ready := make(chan struct{})
	cancelled := make(chan error, 1)
	onData := func(chunk string) {
		rec.onData(chunk)
		select {
		case <-ready:
		default:
			return
		}
		once.Do(func() {
			cancelled <- r.Canceller().Cancel(context.Background(), h)
		})
	}

	var err error
	h, _, err = r.Spawn(context.Background(),
		NewCommand("sh", "-c", "while true; do echo tick; sleep 0.05; done"),
		onData, rec.onTerminate)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	close(ready)

	select {
	case err := <-cancelled:
		if err != nil {
			t.Fatalf("Cancel() from onData error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("onData never cancelled")
	}

	o := rec.wait(t, 5*time.Second)
	if o.Classification != UserCancelled {
		t.Errorf("Classification = %v, want user_cancelled", o.Classification)
	}
}

func TestCancel_OrphanedChildAfterLeaderExit(t *testing.T) {
	sender := &countingSender{}
	r := NewRunner(Config{
		Sender:    sender,
		Logger:    newTestLogger(),
		WaitDelay: 10 * time.Second,
	})
	rec := newRecorder()
	started := make(chan struct{})
	var once sync.Once
	onData := func(chunk string) {
		rec.onData(chunk)
		if strings.Contains(chunk, "started") {
			once.Do(func() { close(started) })
		}
	}

	h, _, err := r.Spawn(context.Background(),
		NewCommand("sh", "-c", "sleep 30 & echo started"), onData, rec.onTerminate)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	pid, _ := strconv.Atoi(h.PID())

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no output from shell")
	}
	// Give the shell time to exit and leave sleep behind in the group
	time.Sleep(300 * time.Millisecond)

	if err := r.Canceller().Cancel(context.Background(), h); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// sleep holds stdout open until the group signal reaches it
	rec.wait(t, 5*time.Second)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.pids) != 1 || sender.pids[0] != pid {
		t.Errorf("signalled groups = %v, want [%d]", sender.pids, pid)
	}
}

func TestCancel_RacingNaturalExit(t *testing.T) {
	r := newTestRunner(nil, nil)

	for i := 0; i < 50; i++ {
		rec := newRecorder()
		h, _, err := r.Spawn(context.Background(), NewCommand("true"), rec.onData, rec.onTerminate)
		if err != nil {
			t.Fatalf("Spawn() error = %v", err)
		}

		err = r.Canceller().Cancel(context.Background(), h)
		if err != nil && !errors.Is(err, ErrNoProcess) {
			t.Fatalf("run %d: Cancel() error = %v, want nil or ErrNoProcess", i, err)
		}

		rec.wait(t, 5*time.Second)
		if _, _, outcomes := rec.snapshot(); len(outcomes) != 1 {
			t.Fatalf("run %d: termination events = %d, want 1", i, len(outcomes))
		}
	}
}

// goneSender reports every group as already empty.
type goneSender struct{}

func (goneSender) Signal(int, unix.Signal) error { return unix.ESRCH }

func TestCancel_EmptiedGroupIsNoProcess(t *testing.T) {
	r := newTestRunner(nil, goneSender{})
	h, rec := spawnSleeper(t, r, NewCommand("sleep", "30"))

	err := r.Canceller().Cancel(context.Background(), h)
	var cancelErr *CancelError
	if !errors.As(err, &cancelErr) {
		t.Fatalf("error %T is not a *CancelError", err)
	}
	if !errors.Is(err, ErrNoProcess) {
		t.Errorf("error = %v, want ErrNoProcess", err)
	}

	if err := NewCanceller(nil, newTestLogger(), nil).Cancel(context.Background(), h); err != nil {
		t.Fatalf("cleanup Cancel() error = %v", err)
	}
	rec.wait(t, 5*time.Second)
}

func TestRunKill_NoSuchProcess(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		wantErr   bool
		wantESRCH bool
	}{
		{"signalled", "exit 0", false, false},
		{"group_gone", "echo 'kill: (4242) - No such process' >&2; exit 1", true, true},
		{"not_permitted", "echo 'kill: (4242) - Operation not permitted' >&2; exit 1", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// sh -c <script> sh kill -TERM -- -4242
			err := runKill(context.Background(), "sh", []string{"-c", tt.script, "sh"}, 4242)
			if (err != nil) != tt.wantErr {
				t.Fatalf("runKill() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, unix.ESRCH); got != tt.wantESRCH {
				t.Errorf("errors.Is(ESRCH) = %v, want %v (err = %v)", got, tt.wantESRCH, err)
			}
		})
	}
}
