package tui

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-toolrun/internal/process"
	"github.com/randomizedcoder/go-toolrun/internal/stats"
	"github.com/randomizedcoder/go-toolrun/internal/stream"
	"github.com/randomizedcoder/go-toolrun/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// Every run-scoped message carries the generation of the run that
// produced it. Messages from a superseded run are ignored.

// StartedMsg reports a successful spawn.
type StartedMsg struct {
	Gen     int
	Handle  *process.Handle
	Initial string
}

// SpawnFailedMsg reports a spawn error. No termination follows.
type SpawnFailedMsg struct {
	Gen int
	Err error
}

// ChunkMsg carries one output chunk, or the final outcome line.
type ChunkMsg struct {
	Gen  int
	Text string
}

// TerminatedMsg reports the run's single termination event.
type TerminatedMsg struct {
	Gen     int
	Outcome process.Outcome
}

// CancelResultMsg reports the result of a cancel request.
type CancelResultMsg struct {
	Gen int
	Err error
}

// SavedMsg reports the result of a save.
type SavedMsg struct {
	Path string
	Err  error
}

// TickMsg refreshes elapsed time while a run is active.
type TickMsg time.Time

// =============================================================================
// Model
// =============================================================================

// Phase is the console's run state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseTerminated
	PhaseSpawnFailed
)

// SaveFunc persists text and returns the path written.
type SaveFunc func(text string) (string, error)

// Config holds console configuration.
type Config struct {
	Title      string
	Command    process.Command
	Runner     *process.Runner
	Dispatcher *Dispatcher
	Stats      *stats.RunStats // optional
	Save       SaveFunc        // optional; nil disables saving
	AutoStart  bool
}

// Model represents the console state.
type Model struct {
	// Configuration
	title      string
	command    process.Command
	runner     *process.Runner
	dispatcher *Dispatcher
	runStats   *stats.RunStats
	save       SaveFunc
	autoStart  bool

	// Current run
	gen       int
	phase     Phase
	handle    *process.Handle
	outcome   process.Outcome
	spawnErr  error
	startedAt time.Time
	output    *stream.Aggregator
	rate      *timeseries.OutputRate
	spawns    *spawnTracker

	// Save gating: allowed once a run has terminated, until saved
	allowSave bool
	hasSaved  bool
	notice    string

	// Display
	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	width    int
	height   int
	ready    bool

	quitting bool
}

// New creates a console model.
func New(cfg Config) Model {
	d := cfg.Dispatcher
	if d == nil {
		d = NewDispatcher()
	}
	return Model{
		title:      cfg.Title,
		command:    cfg.Command,
		runner:     cfg.Runner,
		dispatcher: d,
		runStats:   cfg.Stats,
		save:       cfg.Save,
		autoStart:  cfg.AutoStart,
		output:     stream.NewAggregator(),
		rate:       timeseries.NewOutputRate(),
		spawns:     &spawnTracker{},
		keys:       DefaultKeyMap(),
		help:       help.New(),
		viewport:   viewport.New(80, 16),
		width:      80,
		height:     24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init starts the first run when configured to.
func (m Model) Init() tea.Cmd {
	if m.autoStart {
		return func() tea.Msg { return startRequest{} }
	}
	return nil
}

// startRequest lets Init route through Update so the generation is
// bumped on the model Bubble Tea actually keeps.
type startRequest struct{}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resizeViewport()
		return m, nil

	case startRequest:
		return m.start()

	case StartedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.handle = msg.Handle
		if m.phase == PhaseStarting {
			m.phase = PhaseRunning
		}
		return m, tickCmd()

	case SpawnFailedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.phase = PhaseSpawnFailed
		m.spawnErr = msg.Err
		m.appendOutput(msg.Err.Error())
		return m, nil

	case ChunkMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.rate.Add(len(msg.Text))
		m.appendOutput(msg.Text)
		return m, nil

	case TerminatedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.phase = PhaseTerminated
		m.outcome = msg.Outcome
		m.allowSave = m.save != nil
		m.hasSaved = false
		m.notice = ""
		return m, nil

	case CancelResultMsg:
		if msg.Gen == m.gen && msg.Err != nil {
			m.notice = "cancel failed: " + msg.Err.Error()
		}
		return m, nil

	case SavedMsg:
		if msg.Err != nil {
			m.notice = "save failed: " + msg.Err.Error()
			return m, nil
		}
		m.hasSaved = true
		m.allowSave = false
		m.notice = "saved to " + msg.Path
		return m, nil

	case TickMsg:
		m.rate.Sample()
		if m.Running() {
			return m, tickCmd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.Running() {
			return m, tea.Sequence(m.cancelCmd(), tea.Quit)
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if !m.Running() || m.handle == nil {
			return m, nil
		}
		m.notice = "cancelling..."
		return m, m.cancelCmd()

	case key.Matches(msg, m.keys.Run):
		if m.Running() {
			return m, nil
		}
		return m.start()

	case key.Matches(msg, m.keys.Clear):
		m.output = stream.NewAggregator()
		m.allowSave = false
		m.hasSaved = false
		m.notice = ""
		m.viewport.SetContent("")
		return m, nil

	case key.Matches(msg, m.keys.Save):
		if !m.CanSave() {
			return m, nil
		}
		return m, m.saveCmd()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// start begins a new run with a fresh generation and output buffer.
// A previous handle is never reused.
func (m Model) start() (tea.Model, tea.Cmd) {
	if m.runner == nil {
		return m, nil
	}
	m.gen++
	m.phase = PhaseStarting
	m.handle = nil
	m.outcome = process.Outcome{}
	m.spawnErr = nil
	m.output = stream.NewAggregator()
	m.rate.Reset()
	m.allowSave = false
	m.hasSaved = false
	m.notice = ""
	m.startedAt = time.Now()
	m.viewport.SetContent("")
	return m, m.spawnCmd(m.gen)
}

func (m *Model) appendOutput(text string) {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.output.Append(text))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resizeViewport() {
	// header, status, notice, border and footer
	const chrome = 8
	w := m.width - 4
	h := m.height - chrome
	if w < 10 {
		w = 10
	}
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.ready = true
}

// =============================================================================
// Commands
// =============================================================================

func (m Model) spawnCmd(gen int) tea.Cmd {
	runner, command, d, spawns := m.runner, m.command, m.dispatcher, m.spawns
	return func() tea.Msg {
		if !spawns.begin() {
			return nil
		}
		defer spawns.wg.Done()
		onData := func(chunk string) {
			d.Send(ChunkMsg{Gen: gen, Text: chunk})
		}
		onTerminate := func(o process.Outcome) {
			d.Send(TerminatedMsg{Gen: gen, Outcome: o})
		}
		h, initial, err := runner.Spawn(context.Background(), command, onData, onTerminate)
		if err != nil {
			return SpawnFailedMsg{Gen: gen, Err: err}
		}
		spawns.set(h)
		return StartedMsg{Gen: gen, Handle: h, Initial: initial}
	}
}

// spawnTracker records the newest handle even when the program exits
// before its StartedMsg is delivered.
type spawnTracker struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *process.Handle
	closed bool
}

func (t *spawnTracker) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	return true
}

func (t *spawnTracker) set(h *process.Handle) {
	t.mu.Lock()
	t.last = h
	t.mu.Unlock()
}

func (m Model) cancelCmd() tea.Cmd {
	runner, h, gen := m.runner, m.handle, m.gen
	if h == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return CancelResultMsg{Gen: gen, Err: runner.Canceller().Cancel(ctx, h)}
	}
}

func (m Model) saveCmd() tea.Cmd {
	save, text := m.save, m.output.String()
	return func() tea.Msg {
		path, err := save(text)
		return SavedMsg{Path: path, Err: err}
	}
}

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Phase returns the current run state.
func (m Model) Phase() Phase {
	return m.phase
}

// Running reports whether a run is starting or in progress.
func (m Model) Running() bool {
	return m.phase == PhaseStarting || m.phase == PhaseRunning
}

// Handle returns the current run's handle, or nil.
func (m Model) Handle() *process.Handle {
	return m.handle
}

// Detach stops further spawns, waits for any in flight and returns the
// newest handle produced, or nil. Call it after the program exits.
func (m Model) Detach() *process.Handle {
	m.spawns.mu.Lock()
	m.spawns.closed = true
	m.spawns.mu.Unlock()

	m.spawns.wg.Wait()
	m.spawns.mu.Lock()
	defer m.spawns.mu.Unlock()
	return m.spawns.last
}

// Outcome returns the last run's outcome and whether it has terminated.
func (m Model) Outcome() (process.Outcome, bool) {
	return m.outcome, m.phase == PhaseTerminated
}

// Output returns the displayed text.
func (m Model) Output() string {
	return m.output.String()
}

// CanSave reports whether the s key would save.
func (m Model) CanSave() bool {
	return m.allowSave && !m.hasSaved
}

// Generation returns the current run generation.
func (m Model) Generation() int {
	return m.gen
}

// commandLine renders the command as typed.
func (m Model) commandLine() string {
	s := m.command.String()
	if m.command.Elevated() {
		s = "[elevated] " + s
	}
	return strings.TrimSpace(s)
}
