// Package stream carries process output from the OS pipes to a consumer.
//
// Two-Layer Architecture:
//
//	Layer 1 (Writers):    exec copies stdout/stderr into ChunkWriters, which
//	                      feed one Pipeline channel in arrival order
//	Layer 2 (Dispatcher): a single goroutine drains the channel and calls the
//	                      consumer, so delivery is serialized
//
// Unlike a metrics pipeline, nothing is ever dropped: a slow consumer applies
// backpressure to the child process through the pipe.
package stream

import (
	"sync"
	"sync/atomic"
)

// Chunk is one block of output as delivered by the OS.
type Chunk struct {
	Stream string // "stdout" or "stderr"
	Text   string
}

// Pipeline is an ordered, lossless chunk queue between writers and a
// single dispatcher.
type Pipeline struct {
	chunks    chan Chunk
	closeOnce sync.Once
	closed    atomic.Bool

	// Counters (atomic for concurrent access)
	chunksFed       atomic.Int64
	bytesFed        atomic.Int64
	chunksDelivered atomic.Int64
}

// NewPipeline creates a pipeline with the given channel buffer size.
func NewPipeline(bufferSize int) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &Pipeline{
		chunks: make(chan Chunk, bufferSize),
	}
}

// Feed queues a chunk, blocking while the buffer is full.
// Returns false if the pipeline has already been closed.
//
// Feed must not race with CloseChannel: callers close only after every
// writer has returned (exec.Cmd.Wait guarantees this for Stdout/Stderr).
func (p *Pipeline) Feed(c Chunk) bool {
	if p.closed.Load() {
		return false
	}
	p.chunksFed.Add(1)
	p.bytesFed.Add(int64(len(c.Text)))
	p.chunks <- c
	return true
}

// CloseChannel signals the dispatcher that no more chunks will arrive.
// Safe to call multiple times.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.chunks)
	})
}

// RunDispatcher delivers every queued chunk to deliver, in order, until
// the channel is closed and drained. MUST run in a dedicated goroutine.
func (p *Pipeline) RunDispatcher(deliver func(Chunk)) {
	for c := range p.chunks {
		deliver(c)
		p.chunksDelivered.Add(1)
	}
}

// Stats returns (chunks fed, bytes fed, chunks delivered).
func (p *Pipeline) Stats() (chunks, bytes, delivered int64) {
	return p.chunksFed.Load(), p.bytesFed.Load(), p.chunksDelivered.Load()
}
