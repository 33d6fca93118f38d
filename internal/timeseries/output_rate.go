// Package timeseries tracks how fast a run produces output.
//
// Chunks are counted with an atomic add; the console samples the running
// total on its refresh tick and reads rolling rates from the samples.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringSize retains two minutes at one sample per 500ms tick.
	ringSize = 240

	window1s  = 1 * time.Second
	window10s = 10 * time.Second
	window60s = 60 * time.Second
)

// Clock returns the current time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	at    time.Time
	bytes int64
}

// OutputRate tracks cumulative output bytes and rolling bytes/sec.
type OutputRate struct {
	total atomic.Int64

	mu      sync.RWMutex
	samples []sample
	next    int
	started time.Time
	clock   Clock
}

// Rates is a point-in-time view of an OutputRate.
type Rates struct {
	Total   int64
	Per1s   float64
	Per10s  float64
	Per60s  float64
	Overall float64
}

// NewOutputRate creates a tracker on the wall clock.
func NewOutputRate() *OutputRate {
	return NewOutputRateWithClock(realClock{})
}

// NewOutputRateWithClock creates a tracker on clock.
func NewOutputRateWithClock(clock Clock) *OutputRate {
	r := &OutputRate{clock: clock}
	r.reset(clock.Now())
	return r
}

// Add counts n bytes of output. Safe from any goroutine.
func (r *OutputRate) Add(n int) {
	if n > 0 {
		r.total.Add(int64(n))
	}
}

// Sample records the running total. Call it periodically.
func (r *OutputRate) Sample() {
	s := sample{at: r.clock.Now(), bytes: r.total.Load()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) < ringSize {
		r.samples = append(r.samples, s)
		return
	}
	r.samples[r.next] = s
	r.next = (r.next + 1) % ringSize
}

// Rates computes rolling rates from the retained samples.
func (r *OutputRate) Rates() Rates {
	now := r.clock.Now()
	total := r.total.Load()

	r.mu.RLock()
	defer r.mu.RUnlock()

	rates := Rates{
		Total:  total,
		Per1s:  r.over(now, total, window1s),
		Per10s: r.over(now, total, window10s),
		Per60s: r.over(now, total, window60s),
	}
	if elapsed := now.Sub(r.started).Seconds(); elapsed > 0 {
		rates.Overall = float64(total) / elapsed
	}
	return rates
}

// over picks the newest sample at or before now-window, falling back to
// the oldest retained sample. Caller holds mu.
func (r *OutputRate) over(now time.Time, total int64, window time.Duration) float64 {
	cutoff := now.Add(-window)

	var base *sample
	for i := range r.samples {
		s := &r.samples[i]
		if s.at.After(cutoff) {
			continue
		}
		if base == nil || s.at.After(base.at) {
			base = s
		}
	}
	if base == nil {
		base = r.oldest()
	}
	if base == nil {
		return 0
	}

	elapsed := now.Sub(base.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-base.bytes) / elapsed
}

func (r *OutputRate) oldest() *sample {
	if len(r.samples) == 0 {
		return nil
	}
	if len(r.samples) < ringSize {
		return &r.samples[0]
	}
	return &r.samples[r.next]
}

// Reset zeroes the tracker for a new run.
func (r *OutputRate) Reset() {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset(now)
}

func (r *OutputRate) reset(now time.Time) {
	r.total.Store(0)
	r.samples = append(r.samples[:0], sample{at: now})
	r.next = 0
	r.started = now
}

// SampleCount returns the number of retained samples.
func (r *OutputRate) SampleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}
