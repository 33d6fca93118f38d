// Package stats keeps session-wide statistics over finished runs.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-toolrun/internal/process"
)

// RunStats accumulates outcomes and runtimes across runs. Runtime
// quantiles come from a t-digest so memory stays bounded however many
// runs a console session performs.
type RunStats struct {
	mu sync.Mutex

	startTime time.Time
	total     int64
	success   int64
	cancelled int64
	failed    int64
	denied    int64
	exitCodes map[int]int64

	runtimeDigest *tdigest.TDigest
	maxRuntime    time.Duration
	outputBytes   int64
}

// Snapshot is a point-in-time copy of RunStats.
type Snapshot struct {
	Elapsed     time.Duration
	Total       int64
	Success     int64
	Cancelled   int64
	Failed      int64
	Denied      int64
	ExitCodes   map[int]int64
	RuntimeP50  time.Duration
	RuntimeP95  time.Duration
	RuntimeMax  time.Duration
	OutputBytes int64
}

// NewRunStats creates an empty collector.
func NewRunStats() *RunStats {
	return &RunStats{
		startTime:     time.Now(),
		exitCodes:     make(map[int]int64),
		runtimeDigest: tdigest.NewWithCompression(100),
	}
}

// Record adds one finished run.
func (s *RunStats) Record(o process.Outcome, runtime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	switch o.Classification {
	case process.Success:
		s.success++
	case process.UserCancelled:
		s.cancelled++
	default:
		s.failed++
	}
	if o.ElevationDenied {
		s.denied++
	}
	if o.ExitCode != nil {
		s.exitCodes[*o.ExitCode]++
	}

	s.runtimeDigest.Add(float64(runtime.Nanoseconds()), 1)
	if runtime > s.maxRuntime {
		s.maxRuntime = runtime
	}
}

// AddOutput counts output bytes.
func (s *RunStats) AddOutput(n int) {
	s.mu.Lock()
	s.outputBytes += int64(n)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current statistics.
func (s *RunStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Elapsed:     time.Since(s.startTime),
		Total:       s.total,
		Success:     s.success,
		Cancelled:   s.cancelled,
		Failed:      s.failed,
		Denied:      s.denied,
		ExitCodes:   make(map[int]int64, len(s.exitCodes)),
		RuntimeMax:  s.maxRuntime,
		OutputBytes: s.outputBytes,
	}
	for code, n := range s.exitCodes {
		snap.ExitCodes[code] = n
	}
	if s.total > 0 {
		snap.RuntimeP50 = time.Duration(s.runtimeDigest.Quantile(0.50))
		snap.RuntimeP95 = time.Duration(s.runtimeDigest.Quantile(0.95))
	}
	return snap
}

// Reset clears all statistics.
func (s *RunStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startTime = time.Now()
	s.total, s.success, s.cancelled, s.failed, s.denied = 0, 0, 0, 0, 0
	s.exitCodes = make(map[int]int64)
	s.runtimeDigest = tdigest.NewWithCompression(100)
	s.maxRuntime = 0
	s.outputBytes = 0
}
