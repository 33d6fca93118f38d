package process

import "time"

// Observer receives lifecycle events from a Runner and Canceller.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	ProcessStarted(h *Handle)
	SpawnFailed(cmd Command, err error)
	OutputReceived(h *Handle, stream string, bytes int)
	ProcessTerminated(h *Handle, o Outcome, runtime time.Duration)
	CancelRequested(h *Handle, err error)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) ProcessStarted(*Handle)                            {}
func (NopObserver) SpawnFailed(Command, error)                        {}
func (NopObserver) OutputReceived(*Handle, string, int)               {}
func (NopObserver) ProcessTerminated(*Handle, Outcome, time.Duration) {}
func (NopObserver) CancelRequested(*Handle, error)                    {}

var _ Observer = NopObserver{}
