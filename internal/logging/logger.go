// Package logging builds the slog loggers used by go-toolrun and keeps
// the recent output of a run for failure summaries.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Options configures New.
type Options struct {
	// Format is "json" or "text". Anything else yields JSON.
	Format string

	// Level is the minimum level; unknown names mean info.
	Level string

	// Verbose forces debug and records source locations.
	Verbose bool
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New returns a logger writing records to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level, _ := ParseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Verbose,
	}

	if strings.EqualFold(opts.Format, "text") {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// Discard returns a logger that drops every record. The console uses it
// while it owns the terminal.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a level name to its slog.Level. The second result is
// false for unknown names, which map to info.
func ParseLevel(name string) (slog.Level, bool) {
	level, ok := levels[strings.ToLower(name)]
	if !ok {
		return slog.LevelInfo, false
	}
	return level, true
}

// ValidLevel reports whether name is a known level.
func ValidLevel(name string) bool {
	_, ok := ParseLevel(name)
	return ok
}

// SetDefault installs logger as the slog package default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
