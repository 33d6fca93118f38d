// Package orchestrator wires a single tool run to the process core and
// the ambient services around it: signals, metrics, persistence and the
// session summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-toolrun/internal/catalog"
	"github.com/randomizedcoder/go-toolrun/internal/config"
	"github.com/randomizedcoder/go-toolrun/internal/logging"
	"github.com/randomizedcoder/go-toolrun/internal/metrics"
	"github.com/randomizedcoder/go-toolrun/internal/persist"
	"github.com/randomizedcoder/go-toolrun/internal/preflight"
	"github.com/randomizedcoder/go-toolrun/internal/process"
	"github.com/randomizedcoder/go-toolrun/internal/stats"
)

// failureTailLines is how many output lines are repeated on stderr
// after a failed run.
const failureTailLines = 10

// ErrPreflightFailed is returned when a tool's checks do not pass.
var ErrPreflightFailed = errors.New("preflight checks failed (use --skip-preflight to override)")

// Options carries the process-level collaborators of an Orchestrator.
type Options struct {
	Version string

	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer

	// Elevator overrides the one named in the config. Used by tests.
	Elevator process.Elevator

	// Signals overrides the OS signal source. Used by tests.
	Signals <-chan os.Signal
}

// Orchestrator runs tools for one CLI invocation.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	opts   Options

	registry      *prometheus.Registry
	elevator      process.Elevator
	runner        *process.Runner
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	stats         *stats.RunStats
}

// New creates an Orchestrator. The config must already be validated.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	elevator := opts.Elevator
	if elevator == nil {
		e, err := process.NewElevator(cfg.Elevator)
		if err != nil {
			return nil, err
		}
		elevator = e
	}

	runStats := stats.NewRunStats()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:  opts.Version,
		Elevator: elevator.Name(),
		Stats:    runStats,
	}, registry)

	runner := process.NewRunner(process.Config{
		Elevator:   elevator,
		Logger:     logger,
		Observer:   collector,
		WaitDelay:  cfg.WaitDelay,
		BufferSize: cfg.BufferSize,
		Dir:        cfg.WorkDir,
	})

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		opts:     opts,
		registry: registry,
		elevator: elevator,
		runner:   runner,
		metrics:  collector,
		stats:    runStats,
	}
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, logger)
	}
	return o, nil
}

// Preflight runs the checks for tool and prints them to stderr.
func (o *Orchestrator) Preflight(tool catalog.Tool) (*preflight.Result, error) {
	result := preflight.RunAll(tool, o.config.Elevator)
	preflight.PrintResults(o.opts.Stderr, result)
	if !result.Passed {
		if missing := result.Missing(); len(missing) > 0 {
			return result, fmt.Errorf("%w: missing %s", ErrPreflightFailed, strings.Join(missing, ", "))
		}
		return result, ErrPreflightFailed
	}
	return result, nil
}

// RunTool runs a catalog tool with extra arguments appended. Blocking
// tools run to completion and print their output at the end; the rest
// stream as output arrives.
func (o *Orchestrator) RunTool(ctx context.Context, tool catalog.Tool, extra []string) (process.Outcome, error) {
	if !o.config.SkipPreflight {
		if _, err := o.Preflight(tool); err != nil {
			return process.Outcome{}, err
		}
	}

	command := tool.Command(extra)
	o.logger.Info("tool_starting",
		"tool", tool.Name,
		"command", command.String(),
		"elevated", command.Elevated(),
		"blocking", tool.Blocking,
	)
	if tool.Blocking {
		return o.runBlocking(ctx, command)
	}
	return o.RunCommand(ctx, command)
}

// RunCommand streams command to stdout until it terminates. SIGINT and
// SIGTERM cancel the process rather than this program.
func (o *Orchestrator) RunCommand(ctx context.Context, command process.Command) (process.Outcome, error) {
	if err := o.startServices(); err != nil {
		return process.Outcome{}, err
	}
	defer o.stopServices()

	sigCh, stop := o.signals()
	defer stop()

	tail := logging.NewTail(command.Program(), o.logger)
	out := &chunkPrinter{w: o.opts.Stdout}

	h, _, err := o.runner.Spawn(ctx, command,
		func(chunk string) {
			tail.Write(chunk)
			out.print(chunk)
		},
		nil,
	)
	if err != nil {
		return process.Outcome{}, err
	}

	outcome, err := o.await(ctx, h, sigCh)
	if err != nil {
		return outcome, err
	}
	tail.Flush()

	if outcome.Classification == process.Failed {
		o.printTail(tail)
	}
	o.saveOutput(context.WithoutCancel(ctx), command, h.Output())
	return outcome, nil
}

// runBlocking runs command to completion, then prints its output.
func (o *Orchestrator) runBlocking(ctx context.Context, command process.Command) (process.Outcome, error) {
	if err := o.startServices(); err != nil {
		return process.Outcome{}, err
	}
	defer o.stopServices()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, output, err := o.runner.Run(ctx, command)
	if err != nil {
		return outcome, err
	}
	fmt.Fprintln(o.opts.Stdout, output)

	if outcome.Classification == process.Failed {
		tail := logging.NewTail(command.Program(), o.logger)
		tail.Write(output)
		tail.Flush()
		o.printTail(tail)
	}
	o.saveOutput(context.WithoutCancel(ctx), command, output)
	return outcome, nil
}

// await blocks until h terminates, cancelling it on the first signal.
// A cancelled ctx also cancels the process.
func (o *Orchestrator) await(ctx context.Context, h *process.Handle, sigCh <-chan os.Signal) (process.Outcome, error) {
	cancelled := false
	cancel := func(reason string) {
		if cancelled {
			return
		}
		cancelled = true
		o.logger.Info("cancelling", "run_id", h.ID(), "reason", reason)
		cctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := o.runner.Canceller().Cancel(cctx, h); err != nil && !errors.Is(err, process.ErrNoProcess) {
			o.logger.Warn("cancel_failed", "run_id", h.ID(), "error", err)
		}
	}

	ctxDone := ctx.Done()
	for {
		select {
		case <-h.Done():
			outcome, _ := h.Outcome()
			return outcome, nil
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			cancel("signal")
		case <-ctxDone:
			ctxDone = nil
			cancel("context")
		}
	}
}

func (o *Orchestrator) signals() (<-chan os.Signal, func()) {
	if o.opts.Signals != nil {
		return o.opts.Signals, func() {}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

func (o *Orchestrator) startServices() error {
	if o.metricsServer == nil {
		return nil
	}
	if err := o.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

func (o *Orchestrator) stopServices() {
	if o.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

// saveOutput writes the finished run's output when --output is set.
func (o *Orchestrator) saveOutput(ctx context.Context, command process.Command, text string) {
	path := o.config.OutputFile
	if path == "" {
		return
	}
	gate, err := persist.GateFor(o.config.Overwrite, o.opts.Stdin, o.opts.Stderr)
	if err != nil {
		o.logger.Error("save_failed", "path", path, "error", err)
		return
	}
	err = persist.Save(ctx, path, text, gate)
	switch {
	case errors.Is(err, persist.ErrNotOverwritten):
		o.logger.Info("save_skipped", "path", path, "reason", "exists")
	case err != nil:
		o.logger.Error("save_failed", "path", path, "error", err)
	default:
		o.logger.Info("output_saved", "path", path, "program", command.Program(), "bytes", len(text))
	}
}

func (o *Orchestrator) printTail(tail *logging.Tail) {
	lines := tail.RecentLines(failureTailLines)
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(o.opts.Stderr, "\nLast %d output lines:\n", len(lines))
	for _, line := range lines {
		fmt.Fprintf(o.opts.Stderr, "  %s\n", line)
	}
	for pattern, n := range tail.CountErrors() {
		o.logger.Debug("output_error_pattern", "pattern", pattern, "count", n)
	}
}

// Finish dumps metrics and prints the session summary when configured.
// Call it once after the last run.
func (o *Orchestrator) Finish() {
	if path := o.config.MetricsDump; path != "" {
		if err := metrics.WriteSnapshotFile(path, o.registry); err != nil {
			o.logger.Error("metrics_dump_failed", "path", path, "error", err)
		} else {
			o.logger.Info("metrics_dumped", "path", path)
		}
	}
	if o.config.Verbose {
		fmt.Fprint(o.opts.Stderr, stats.FormatSummary(o.stats.Snapshot()))
		if o.config.MetricsAddr != "" {
			fmt.Fprintf(o.opts.Stderr, "Metrics endpoint was: http://%s/metrics\n", o.config.MetricsAddr)
		}
	}
}

// Runner returns the process runner.
func (o *Orchestrator) Runner() *process.Runner {
	return o.runner
}

// Stats returns the session statistics.
func (o *Orchestrator) Stats() *stats.RunStats {
	return o.stats
}

// Registry returns the metrics registry.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// ExitCode maps an outcome to the process exit status of this program.
func ExitCode(outcome process.Outcome) int {
	switch outcome.Classification {
	case process.Success:
		return 0
	case process.UserCancelled:
		return 130
	default:
		return 1
	}
}

// chunkPrinter writes chunks to w, ending each on a line boundary the
// way the aggregator separates them.
type chunkPrinter struct {
	w io.Writer
}

func (p *chunkPrinter) print(chunk string) {
	if chunk == "" {
		return
	}
	_, _ = io.WriteString(p.w, chunk)
	if !strings.HasSuffix(chunk, "\n") {
		_, _ = io.WriteString(p.w, "\n")
	}
}
