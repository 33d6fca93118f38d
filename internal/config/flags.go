package config

import (
	"github.com/spf13/pflag"
)

// ConfigFlag is the name of the flag that points at a TOML config file.
const ConfigFlag = "config"

// BindFlags registers the persistent flags on fs, writing into cfg.
// Flags win over the config file: callers load the file first and then
// re-apply only the flags the user changed (see Load).
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String(ConfigFlag, "", "Path to a TOML config file")

	// Execution
	fs.StringVar(&cfg.Elevator, "elevator", cfg.Elevator, "Privilege wrapper for elevated runs: pkexec or sudo")
	fs.DurationVar(&cfg.WaitDelay, "wait-delay", cfg.WaitDelay, "How long to wait for output pipes after the process exits")
	fs.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "Output chunk queue size")
	fs.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "Working directory for spawned processes")

	// Catalog
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Tool catalog file (.toml, .yaml); empty uses the built-in catalog")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip dependency checks before running a tool")

	// Output persistence
	fs.StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Save the final output to this file")
	fs.StringVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "When the output file exists: ask, always, never")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (e.g. 127.0.0.1:17092); empty disables")
	fs.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Write a metrics snapshot in text format to this file on exit")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or text")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging (forces debug level)")
}

// Load builds the effective config: defaults, then the config file named
// by --config (if any), then every flag the user set explicitly.
func Load(fs *pflag.FlagSet, cfg *Config) error {
	path, err := fs.GetString(ConfigFlag)
	if err != nil || path == "" {
		return err
	}

	// The file must not override explicit flags, so snapshot them first.
	changed := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := LoadFile(path, cfg); err != nil {
		return err
	}

	for name, value := range changed {
		if name == ConfigFlag {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}
