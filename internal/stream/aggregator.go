package stream

import (
	"errors"
	"strings"
	"sync"
)

// Separator is inserted between successive chunks.
const Separator = "\n"

// ErrClosed is returned by TryAppend after the aggregator has been closed.
var ErrClosed = errors.New("aggregator closed")

// Aggregator is an append-only text buffer for one run's output. Chunks
// are joined with Separator in arrival order; nothing is rewritten.
// Partial lines are kept as-is.
type Aggregator struct {
	mu     sync.RWMutex
	buf    strings.Builder
	chunks int
	closed bool
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Append adds chunk and returns the whole buffer. Appends after Close
// are ignored and return the frozen buffer.
func (a *Aggregator) Append(chunk string) string {
	text, _ := a.TryAppend(chunk)
	return text
}

// TryAppend is Append with an explicit ErrClosed once the run has
// terminated.
func (a *Aggregator) TryAppend(chunk string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return a.buf.String(), ErrClosed
	}
	if a.chunks > 0 {
		a.buf.WriteString(Separator)
	}
	a.buf.WriteString(chunk)
	a.chunks++
	return a.buf.String(), nil
}

// Close freezes the buffer.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

// String returns the current buffer.
func (a *Aggregator) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buf.String()
}

// Len returns the number of chunks appended.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.chunks
}

// Closed reports whether the buffer is frozen.
func (a *Aggregator) Closed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}
