// Package cli provides the go-toolrun command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-toolrun/internal/catalog"
	"github.com/randomizedcoder/go-toolrun/internal/config"
	"github.com/randomizedcoder/go-toolrun/internal/logging"
	"github.com/randomizedcoder/go-toolrun/internal/orchestrator"
	"github.com/randomizedcoder/go-toolrun/internal/process"
)

// Version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/randomizedcoder/go-toolrun/internal/cli.Version=1.0.0" ./cmd/go-toolrun
var Version = "dev"

// exitError carries a run's exit status out of cobra without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	stdin  *os.File
	stdout io.Writer
	stderr io.Writer
}

// Commands that run without loading config.
var setupExemptCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

// Commands that own the terminal; their logs are discarded.
var quietCommands = map[string]bool{
	"console": true,
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	return execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) int {
	a := &app{
		cfg:    config.DefaultConfig(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:     "go-toolrun",
		Short:   "Run external tools with streamed output and clean cancellation",
		Version: Version,
		Long: `go-toolrun launches external tools, optionally through a privilege
wrapper, streams their output as it arrives and reports how each run ended.

Ctrl-C cancels the running tool with SIGTERM; the exit status is 0 for
success, 130 for a cancelled run and 1 for anything else.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	config.BindFlags(root.PersistentFlags(), a.cfg)

	root.AddCommand(
		newRunCmd(a),
		newToolCmd(a),
		newToolsCmd(a),
		newCheckCmd(a),
		newConsoleCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads config, validates it and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if setupExemptCommands[cmd.Name()] {
		return nil
	}
	if err := config.Load(cmd.Root().PersistentFlags(), a.cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(a.cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if quietCommands[cmd.Name()] {
		a.logger = logging.Discard()
	} else {
		a.logger = logging.New(a.stderr, logging.Options{
			Format:  a.cfg.LogFormat,
			Level:   a.cfg.LogLevel,
			Verbose: a.cfg.Verbose,
		})
	}
	logging.SetDefault(a.logger)
	return nil
}

func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	return orchestrator.New(a.cfg, a.logger, orchestrator.Options{
		Version: Version,
		Stdin:   a.stdin,
		Stdout:  a.stdout,
		Stderr:  a.stderr,
	})
}

func (a *app) catalog() (*catalog.Catalog, error) {
	return catalog.LoadOrDefault(a.cfg.CatalogPath)
}

// finish converts a run result into the command's error.
func finish(o *orchestrator.Orchestrator, outcome process.Outcome, err error) error {
	o.Finish()
	if err != nil {
		return err
	}
	if code := orchestrator.ExitCode(outcome); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
