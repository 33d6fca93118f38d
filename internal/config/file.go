package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML layout. Durations are strings so that
// "750ms" and "2s" both read naturally.
type fileConfig struct {
	Elevator      string `toml:"elevator"`
	WaitDelay     string `toml:"wait_delay"`
	BufferSize    int    `toml:"buffer_size"`
	WorkDir       string `toml:"work_dir"`
	Catalog       string `toml:"catalog"`
	SkipPreflight bool   `toml:"skip_preflight"`
	Output        string `toml:"output"`
	Overwrite     string `toml:"overwrite"`
	MetricsAddr   string `toml:"metrics_addr"`
	MetricsDump   string `toml:"metrics_dump"`
	LogFormat     string `toml:"log_format"`
	LogLevel      string `toml:"log_level"`
	Verbose       bool   `toml:"verbose"`
}

// LoadFile overlays the keys present in a TOML file onto cfg. Keys that
// are absent keep their current value.
func LoadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("elevator") {
		cfg.Elevator = strings.TrimSpace(raw.Elevator)
	}
	if meta.IsDefined("wait_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WaitDelay))
		if err != nil {
			return fmt.Errorf("parse wait_delay: %w", err)
		}
		cfg.WaitDelay = d
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("work_dir") {
		cfg.WorkDir = strings.TrimSpace(raw.WorkDir)
	}
	if meta.IsDefined("catalog") {
		cfg.CatalogPath = strings.TrimSpace(raw.Catalog)
	}
	if meta.IsDefined("skip_preflight") {
		cfg.SkipPreflight = raw.SkipPreflight
	}
	if meta.IsDefined("output") {
		cfg.OutputFile = strings.TrimSpace(raw.Output)
	}
	if meta.IsDefined("overwrite") {
		cfg.Overwrite = strings.TrimSpace(raw.Overwrite)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("metrics_dump") {
		cfg.MetricsDump = strings.TrimSpace(raw.MetricsDump)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}
	return nil
}
