// input.go - Single-slot input subscription
package main

import (
	"errors"
	"log"
	"sync"

	"damas/shared"
)

// ErrListenerActive is returned by Listen while another listener is installed.
var ErrListenerActive = errors.New("input listener already active")

// EventKind tells board activations apart from plain key presses.
type EventKind int

const (
	EventCell EventKind = iota // a board square was activated
	EventKey                   // a key with meaning outside the board
)

// Event is one recognized user interaction.
type Event struct {
	Kind EventKind
	Pos  shared.Position
	Ch   rune
}

// CellEvent builds the activation event for p.
func CellEvent(p shared.Position) Event { return Event{Kind: EventCell, Pos: p} }

// KeyEvent builds a key event.
func KeyEvent(ch rune) Event { return Event{Kind: EventKey, Ch: ch} }

const listenerBuffer = 16

// Dispatcher owns the one input subscription slot. Raw events go in through
// Dispatch and reach at most one Listener; with no listener installed they
// are dropped.
type Dispatcher struct {
	mu       sync.Mutex
	current  *Listener
	installs int
	releases int
	rejected int
	dropped  int
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Listen installs a listener. It fails while another one is live; the
// caller must Close the listener it got before asking for a new one.
func (d *Dispatcher) Listen() (*Listener, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		d.rejected++
		return nil, ErrListenerActive
	}
	l := &Listener{d: d, ch: make(chan Event, listenerBuffer)}
	d.current = l
	d.installs++
	return l, nil
}

// Dispatch hands ev to the live listener without blocking.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		d.dropped++
		return
	}
	select {
	case d.current.ch <- ev:
	default:
		d.dropped++
		log.Printf("[input] listener busy, event %+v dropped", ev)
	}
}

// Active reports whether a listener is installed.
func (d *Dispatcher) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil
}

// DispatchStats is instrumentation for tests and logs.
type DispatchStats struct {
	Live     int // listeners installed right now (0 or 1)
	Installs int // total Listen calls that succeeded
	Releases int // listeners torn down; equals Installs when Live is 0
	Rejected int // Listen calls refused because a listener was live
	Dropped  int // events with nowhere to go
}

func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	live := 0
	if d.current != nil {
		live = 1
	}
	return DispatchStats{Live: live, Installs: d.installs, Releases: d.releases, Rejected: d.rejected, Dropped: d.dropped}
}

func (d *Dispatcher) release(l *Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == l {
		d.current = nil
		d.releases++
	}
}

// Listener is the owned subscription handle returned by Listen.
type Listener struct {
	d    *Dispatcher
	ch   chan Event
	once sync.Once
}

// Events delivers the events dispatched while the listener is installed.
func (l *Listener) Events() <-chan Event { return l.ch }

// Close removes the listener. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() { l.d.release(l) })
}
