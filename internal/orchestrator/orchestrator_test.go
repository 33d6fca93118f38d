package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/randomizedcoder/go-toolrun/internal/catalog"
	"github.com/randomizedcoder/go-toolrun/internal/config"
	"github.com/randomizedcoder/go-toolrun/internal/logging"
	"github.com/randomizedcoder/go-toolrun/internal/metrics"
	"github.com/randomizedcoder/go-toolrun/internal/process"
)

// =============================================================================
// Test Helpers
// =============================================================================

type testEnv struct {
	orch    *Orchestrator
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	signals chan os.Signal
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.WaitDelay = 500 * time.Millisecond
	cfg.SkipPreflight = true
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
		signals: make(chan os.Signal, 1),
	}
	orch, err := New(cfg, logging.New(io.Discard, logging.Options{Format: "text", Level: "debug"}), Options{
		Version: "test",
		Stdout:  env.stdout,
		Stderr:  env.stderr,
		Signals: env.signals,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.orch = orch
	return env
}

// =============================================================================
// RunCommand
// =============================================================================

func TestRunCommand_StreamsOutput(t *testing.T) {
	env := newTestEnv(t, nil)

	o, err := env.orch.RunCommand(context.Background(), process.NewCommand("sh", "-c", "echo one; echo two"))
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if o.Classification != process.Success {
		t.Errorf("Classification = %v, want success", o.Classification)
	}

	out := env.stdout.String()
	for _, want := range []string{"one", "two", "Process completed successfully.\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q: %q", want, out)
		}
	}
	if ExitCode(o) != 0 {
		t.Errorf("ExitCode() = %d, want 0", ExitCode(o))
	}
}

func TestRunCommand_SignalCancels(t *testing.T) {
	env := newTestEnv(t, nil)

	go func() {
		time.Sleep(100 * time.Millisecond)
		env.signals <- syscall.SIGINT
	}()

	start := time.Now()
	o, err := env.orch.RunCommand(context.Background(), process.NewCommand("sleep", "30"))
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("signal should end the run promptly")
	}
	if o.Classification != process.UserCancelled {
		t.Errorf("Classification = %v, want user_cancelled", o.Classification)
	}
	if ExitCode(o) != 130 {
		t.Errorf("ExitCode() = %d, want 130", ExitCode(o))
	}
	if !strings.Contains(env.stdout.String(), "Process was manually terminated.") {
		t.Errorf("stdout = %q", env.stdout.String())
	}
}

func TestRunCommand_ContextCancels(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	o, err := env.orch.RunCommand(ctx, process.NewCommand("sleep", "30"))
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if o.Classification != process.UserCancelled {
		t.Errorf("Classification = %v, want user_cancelled", o.Classification)
	}
}

func TestRunCommand_FailurePrintsTail(t *testing.T) {
	env := newTestEnv(t, nil)

	o, err := env.orch.RunCommand(context.Background(),
		process.NewCommand("sh", "-c", "echo 'scan: connection refused' >&2; exit 3"))
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if o.Classification != process.Failed || ExitCode(o) != 1 {
		t.Errorf("outcome = %v exit %d, want failed exit 1", o.Classification, ExitCode(o))
	}
	errOut := env.stderr.String()
	if !strings.Contains(errOut, "Last") || !strings.Contains(errOut, "connection refused") {
		t.Errorf("stderr should repeat the output tail, got %q", errOut)
	}
}

func TestRunCommand_SpawnError(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.orch.RunCommand(context.Background(), process.NewCommand("definitely-not-a-real-program-xyz"))
	var spawnErr *process.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Errorf("RunCommand() error = %v, want *SpawnError", err)
	}
}

// =============================================================================
// RunTool
// =============================================================================

func TestRunTool_Blocking(t *testing.T) {
	env := newTestEnv(t, nil)
	tool := catalog.Tool{
		Name:         "hops",
		Program:      "echo",
		Args:         []string{"hop"},
		Blocking:     true,
		Dependencies: []string{"echo"},
	}

	o, err := env.orch.RunTool(context.Background(), tool, []string{"127.0.0.1"})
	if err != nil {
		t.Fatalf("RunTool() error = %v", err)
	}
	if o.Classification != process.Success {
		t.Errorf("Classification = %v, want success", o.Classification)
	}
	want := "hop 127.0.0.1\n\nProcess completed successfully.\n"
	if got := env.stdout.String(); got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestRunTool_PreflightBlocksMissingDependency(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.SkipPreflight = false })
	tool := catalog.Tool{
		Name:         "ghost",
		Program:      "echo",
		Dependencies: []string{"definitely-not-a-real-program-xyz"},
	}

	_, err := env.orch.RunTool(context.Background(), tool, nil)
	if !errors.Is(err, ErrPreflightFailed) {
		t.Fatalf("RunTool() error = %v, want ErrPreflightFailed", err)
	}
	if !strings.Contains(err.Error(), "definitely-not-a-real-program-xyz") {
		t.Errorf("error should name the missing dependency: %v", err)
	}
	if env.stdout.Len() != 0 {
		t.Error("nothing may run when preflight fails")
	}
	if !strings.Contains(env.stderr.String(), "dependency:definitely-not-a-real-program-xyz") {
		t.Errorf("stderr should list the checks, got %q", env.stderr.String())
	}
}

// =============================================================================
// Output, metrics, summary
// =============================================================================

func TestRunCommand_SavesOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "out.txt")
	env := newTestEnv(t, func(c *config.Config) {
		c.OutputFile = path
		c.Overwrite = config.OverwriteAlways
	})

	for _, word := range []string{"first", "second"} {
		if _, err := env.orch.RunCommand(context.Background(), process.NewCommand("echo", word)); err != nil {
			t.Fatalf("RunCommand() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("output file not written: %v", err)
	}
	if !strings.Contains(string(data), "second") || strings.Contains(string(data), "first") {
		t.Errorf("file should hold the latest run, got %q", data)
	}
}

func TestRunCommand_NeverOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, func(c *config.Config) {
		c.OutputFile = path
		c.Overwrite = config.OverwriteNever
	})

	if _, err := env.orch.RunCommand(context.Background(), process.NewCommand("echo", "new")); err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "keep" {
		t.Errorf("existing file replaced: %q", data)
	}
}

func TestFinish_DumpsMetricsAndSummary(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "metrics.prom")
	env := newTestEnv(t, func(c *config.Config) {
		c.MetricsDump = dump
		c.Verbose = true
	})

	if _, err := env.orch.RunCommand(context.Background(), process.NewCommand("echo", "x")); err != nil {
		t.Fatal(err)
	}
	if _, err := env.orch.RunCommand(context.Background(), process.NewCommand("sh", "-c", "exit 2")); err != nil {
		t.Fatal(err)
	}
	env.orch.Finish()

	f, err := os.Open(dump)
	if err != nil {
		t.Fatalf("metrics dump missing: %v", err)
	}
	defer f.Close()
	families, err := metrics.ReadSnapshot(f)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	totals := metrics.Summarize(families)
	if totals.Started != 2 || totals.Terminations["success"] != 1 || totals.Terminations["failed"] != 1 {
		t.Errorf("totals = %+v", totals)
	}

	if !strings.Contains(env.stderr.String(), "Session Summary") {
		t.Error("verbose Finish() should print the session summary")
	}
	if got := env.orch.Stats().Snapshot().Total; got != 2 {
		t.Errorf("Stats().Total = %d, want 2", got)
	}
}

func TestRunCommand_MetricsServer(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MetricsAddr = "127.0.0.1:0" })
	if _, err := env.orch.RunCommand(context.Background(), process.NewCommand("true")); err != nil {
		t.Fatalf("RunCommand() with metrics server error = %v", err)
	}
}

func TestNew_UnknownElevator(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Elevator = "doas"
	if _, err := New(cfg, logging.Discard(), Options{}); err == nil {
		t.Error("New() should reject an unknown elevator")
	}
}

func TestExitCode(t *testing.T) {
	code := func(v int) *int { return &v }
	tests := []struct {
		name    string
		outcome process.Outcome
		want    int
	}{
		{"success", process.Classify(code(0), nil), 0},
		{"cancelled", process.Classify(nil, code(process.SIGTERM)), 130},
		{"failed", process.Classify(code(2), nil), 1},
		{"unknown", process.Classify(nil, nil), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.outcome); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDefaultOutputName(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		title string
		want  string
	}{
		{"dirb", "dirb-20260304-050607.txt"},
		{"", "output-20260304-050607.txt"},
		{"../escape", "escape-20260304-050607.txt"},
	}
	for _, tt := range tests {
		if got := defaultOutputName(tt.title, at); got != tt.want {
			t.Errorf("defaultOutputName(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
