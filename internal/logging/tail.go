package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a stored line before truncation.
	MaxLineLength = 4096

	// MaxTailLines is the number of recent output lines kept per run.
	MaxTailLines = 100
)

// Tail keeps the most recent lines of a run's output for the failure
// summary, and logs each line at debug level.
//
// Chunks arrive as the OS delivered them, so a line may span chunks;
// Tail carries the partial line until its newline arrives.
type Tail struct {
	tool   string
	logger *slog.Logger

	mu      sync.Mutex
	buffer  []string
	bufIdx  int
	count   int
	partial strings.Builder
}

// NewTail creates a tail for one run of tool.
func NewTail(tool string, logger *slog.Logger) *Tail {
	return &Tail{
		tool:   tool,
		logger: logger,
		buffer: make([]string, MaxTailLines),
	}
}

// Write consumes a chunk. It satisfies the shape of a data callback.
func (t *Tail) Write(chunk string) {
	t.mu.Lock()
	t.partial.WriteString(chunk)
	text := t.partial.String()
	t.partial.Reset()

	lines := strings.Split(text, "\n")
	last := lines[len(lines)-1]
	t.partial.WriteString(last)
	complete := lines[:len(lines)-1]
	for _, line := range complete {
		t.store(line)
	}
	t.mu.Unlock()

	for _, line := range complete {
		t.logLine(line)
	}
}

// Flush stores any partial line left at the end of a run.
func (t *Tail) Flush() {
	t.mu.Lock()
	line := t.partial.String()
	t.partial.Reset()
	if line != "" {
		t.store(line)
	}
	t.mu.Unlock()

	if line != "" {
		t.logLine(line)
	}
}

// store must be called with mu held.
func (t *Tail) store(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	t.buffer[t.bufIdx] = line
	t.bufIdx = (t.bufIdx + 1) % MaxTailLines
	t.count++
}

func (t *Tail) logLine(line string) {
	if t.logger == nil {
		return
	}
	t.logger.Log(context.Background(), classifyLine(line), "tool_output",
		"tool", t.tool,
		"line", line,
	)
}

// classifyLine raises lines that look like failures to warn so they
// survive the default log level.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)
	for _, p := range ErrorPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return slog.LevelWarn
		}
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (t *Tail) RecentLines(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > MaxTailLines {
		n = MaxTailLines
	}
	if n > t.count {
		n = t.count
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (t.bufIdx - n + i + MaxTailLines) % MaxTailLines
		lines = append(lines, t.buffer[idx])
	}
	return lines
}

// Lines returns the total number of lines seen, including evicted ones.
func (t *Tail) Lines() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// ErrorPatterns are failure markers common to the wrapped security tools.
var ErrorPatterns = []string{
	"permission denied",
	"not found",
	"no such file",
	"connection refused",
	"timed out",
	"error",
	"failed",
}

// CountErrors counts occurrences of error patterns in the retained lines.
func (t *Tail) CountErrors() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[string]int)
	n := t.count
	if n > MaxTailLines {
		n = MaxTailLines
	}
	for i := 0; i < n; i++ {
		lower := strings.ToLower(t.buffer[i])
		for _, pattern := range ErrorPatterns {
			if strings.Contains(lower, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
