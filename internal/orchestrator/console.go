package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/randomizedcoder/go-toolrun/internal/config"
	"github.com/randomizedcoder/go-toolrun/internal/persist"
	"github.com/randomizedcoder/go-toolrun/internal/process"
	"github.com/randomizedcoder/go-toolrun/internal/tui"
)

// ErrNotTerminal is returned when the console is opened without a tty.
var ErrNotTerminal = errors.New("console requires an interactive terminal")

// Console opens the interactive console for command and blocks until
// the user quits. A run still in progress at quit is cancelled and
// awaited before Console returns.
func (o *Orchestrator) Console(ctx context.Context, title string, command process.Command) (process.Outcome, error) {
	if !term.IsTerminal(int(o.opts.Stdin.Fd())) {
		return process.Outcome{}, ErrNotTerminal
	}
	// Prompt for credentials before the console owns the terminal.
	if command.Elevated() {
		if err := o.elevator.Authorize(ctx); err != nil {
			return process.Outcome{}, &process.SpawnError{Command: command, Err: err}
		}
	}
	if err := o.startServices(); err != nil {
		return process.Outcome{}, err
	}
	defer o.stopServices()

	dispatcher := tui.NewDispatcher()
	model := tui.New(tui.Config{
		Title:      title,
		Command:    command,
		Runner:     o.runner,
		Dispatcher: dispatcher,
		Stats:      o.stats,
		Save:       o.consoleSaver(ctx, title),
		AutoStart:  true,
	})

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(o.opts.Stdin),
		tea.WithOutput(o.opts.Stdout),
	)
	dispatcher.Bind(p)

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return process.Outcome{}, fmt.Errorf("console: %w", err)
	}

	m, ok := final.(tui.Model)
	if !ok {
		return process.Outcome{}, nil
	}
	h := m.Detach()
	if h == nil {
		return process.Outcome{}, nil
	}
	return o.settle(h), nil
}

// settle waits for a handle left behind by the console, cancelling it
// if it is still live.
func (o *Orchestrator) settle(h *process.Handle) process.Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	select {
	case <-h.Done():
	default:
		if err := o.runner.Canceller().Cancel(ctx, h); err != nil && !errors.Is(err, process.ErrNoProcess) {
			o.logger.Warn("cancel_failed", "run_id", h.ID(), "error", err)
		}
	}
	outcome, err := h.Wait(ctx)
	if err != nil {
		o.logger.Warn("console_run_abandoned", "run_id", h.ID(), "error", err)
	}
	return outcome
}

// consoleSaver saves to --output, or a timestamped file in the working
// directory. The console owns the terminal, so an existing file is only
// replaced under the "always" policy.
func (o *Orchestrator) consoleSaver(ctx context.Context, title string) tui.SaveFunc {
	gate := persist.Never
	if o.config.Overwrite == config.OverwriteAlways {
		gate = persist.Always
	}
	return func(text string) (string, error) {
		path := o.config.OutputFile
		if path == "" {
			path = filepath.Join(o.config.WorkDir, defaultOutputName(title, time.Now()))
		}
		if err := persist.Save(ctx, path, text, gate); err != nil {
			return "", err
		}
		o.logger.Info("output_saved", "path", path, "bytes", len(text))
		return path, nil
	}
}

func defaultOutputName(title string, at time.Time) string {
	if title == "" {
		title = "output"
	}
	return fmt.Sprintf("%s-%s.txt", filepath.Base(title), at.Format("20060102-150405"))
}
