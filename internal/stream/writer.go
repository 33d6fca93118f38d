package stream

import (
	"io"
	"sync/atomic"
)

// ChunkWriter adapts a Pipeline to io.Writer so it can be assigned to
// exec.Cmd.Stdout or exec.Cmd.Stderr. Each Write becomes one Chunk.
type ChunkWriter struct {
	stream   string
	pipeline *Pipeline

	// Stats (atomic for thread-safety)
	bytesWritten atomic.Int64
	writes       atomic.Int64
}

// NewChunkWriter creates a writer that tags chunks with the stream name.
func NewChunkWriter(stream string, pipeline *Pipeline) *ChunkWriter {
	return &ChunkWriter{
		stream:   stream,
		pipeline: pipeline,
	}
}

// Write copies p into a new chunk. It never returns a short write while
// the pipeline is open; after close the data is reported as consumed and
// discarded so exec's copy goroutine can finish.
func (w *ChunkWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.writes.Add(1)
	w.bytesWritten.Add(int64(len(p)))
	w.pipeline.Feed(Chunk{Stream: w.stream, Text: string(p)})
	return len(p), nil
}

// Stream returns "stdout" or "stderr".
func (w *ChunkWriter) Stream() string {
	return w.stream
}

// Stats returns (bytesWritten, writes).
func (w *ChunkWriter) Stats() (bytesWritten int64, writes int64) {
	return w.bytesWritten.Load(), w.writes.Load()
}

var _ io.Writer = (*ChunkWriter)(nil)
