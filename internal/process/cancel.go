package process

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sys/unix"
)

// SignalSender delivers a signal to a process group.
type SignalSender interface {
	Signal(pgid int, sig unix.Signal) error
}

// GroupSender signals a whole process group with kill(-pgid).
type GroupSender struct{}

// Signal sends sig to every member of process group pgid. The group
// outlives its leader while any orphaned child remains in it.
func (GroupSender) Signal(pgid int, sig unix.Signal) error {
	return unix.Kill(-pgid, sig)
}

// Canceller requests termination of live handles. It does not wait for
// the exit: the outcome is delivered through the handle's onTerminate.
type Canceller struct {
	sender   SignalSender
	logger   *slog.Logger
	observer Observer
}

// NewCanceller creates a Canceller. A nil sender uses GroupSender.
func NewCanceller(sender SignalSender, logger *slog.Logger, observer Observer) *Canceller {
	if sender == nil {
		sender = GroupSender{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Canceller{
		sender:   sender,
		logger:   logger,
		observer: observer,
	}
}

// Cancel sends SIGTERM to the handle's process group. Elevated handles
// are signalled through the elevator that started them; plain handles
// never touch an elevator. A handle without a live process, or whose
// group has already emptied, yields a CancelError wrapping ErrNoProcess.
func (c *Canceller) Cancel(ctx context.Context, h *Handle) error {
	pgid, ok := h.liveGroup()
	if !ok {
		err := &CancelError{HandleID: h.ID(), PID: h.PID(), Err: ErrNoProcess}
		c.logger.Warn("cancel_rejected",
			"run_id", h.ID(),
			"reason", "no_live_process",
		)
		c.observer.CancelRequested(h, err)
		return err
	}

	var err error
	if h.elevator != nil {
		err = h.elevator.Terminate(ctx, pgid)
	} else {
		err = c.sender.Signal(pgid, unix.SIGTERM)
	}
	if errors.Is(err, unix.ESRCH) {
		// Leader reaped and no member left; Wait has not returned yet
		err = ErrNoProcess
	}

	c.logger.Info("cancel_requested",
		"run_id", h.ID(),
		"pgid", pgid,
		"elevated", h.Elevated(),
		"error", err,
	)

	if err != nil {
		err = &CancelError{HandleID: h.ID(), PID: h.PID(), Err: err}
	}
	c.observer.CancelRequested(h, err)
	return err
}
