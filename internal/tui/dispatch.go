package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Dispatcher forwards runner callbacks into the Bubble Tea update loop.
// Runner callbacks fire on runner goroutines; Program.Send serializes
// them with key presses so the model is only touched by Update.
type Dispatcher struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewDispatcher returns an unbound dispatcher. Messages sent before
// Bind are dropped.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Bind routes messages to p.
func (d *Dispatcher) Bind(p *tea.Program) {
	d.BindFunc(p.Send)
}

// BindFunc routes messages to fn.
func (d *Dispatcher) BindFunc(fn func(tea.Msg)) {
	d.mu.Lock()
	d.send = fn
	d.mu.Unlock()
}

// Send delivers msg if bound.
func (d *Dispatcher) Send(msg tea.Msg) {
	d.mu.RLock()
	send := d.send
	d.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}
