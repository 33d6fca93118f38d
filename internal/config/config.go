// Package config provides configuration management for go-toolrun.
package config

import "time"

// Overwrite policies for saving output to an existing file.
const (
	OverwriteAsk    = "ask"
	OverwriteAlways = "always"
	OverwriteNever  = "never"
)

// Config holds all configuration options for the runner and its surfaces.
type Config struct {
	// Execution
	Elevator   string // pkexec, sudo
	WaitDelay  time.Duration
	BufferSize int
	WorkDir    string

	// Catalog
	CatalogPath   string // empty = embedded default
	SkipPreflight bool

	// Output persistence
	OutputFile string
	Overwrite  string // ask, always, never

	// Observability
	MetricsAddr string // empty = disabled
	MetricsDump string
	LogFormat   string // json, text
	LogLevel    string
	Verbose     bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Execution
		Elevator:   "pkexec",
		WaitDelay:  2 * time.Second,
		BufferSize: 64,

		// Output persistence
		Overwrite: OverwriteAsk,

		// Observability
		LogFormat: "text",
		LogLevel:  "info",
	}
}
