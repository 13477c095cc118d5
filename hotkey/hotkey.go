package hotkey

import (
	"errors"
	"fmt"
	"sync"
)

// Edge is a transition of the chord: Down when it becomes held, Up when the
// trigger key is released.
type Edge uint8

const (
	Down Edge = iota + 1
	Up
)

func (e Edge) String() string {
	switch e {
	case Down:
		return "down"
	case Up:
		return "up"
	}
	return "unknown"
}

// Hotkey is a platform backend for one global chord. Edges are delivered in
// the order they happened on a single channel.
type Hotkey interface {
	Register() error
	Unregister()
	Edges() <-chan Edge
}

// forward relays backend key events as edges until stop is closed. A send
// blocked on a full edges channel also gives up on stop.
func forward[D, U any](stop <-chan struct{}, down <-chan D, up <-chan U, edges chan<- Edge) {
	for {
		var e Edge
		select {
		case <-stop:
			return
		case <-down:
			e = Down
		case <-up:
			e = Up
		}
		select {
		case edges <- e:
		case <-stop:
			return
		}
	}
}

var ErrHookInstall = errors.New("hotkey hook install failed")

// InstallError is returned by Monitor.Start when the OS refuses the global
// hook. It is fatal at startup.
type InstallError struct {
	Chord Chord
	Err   error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Chord.Label(), e.Err)
}

func (e *InstallError) Unwrap() []error { return []error{ErrHookInstall, e.Err} }

// Monitor turns backend edges into debounced press/release callbacks.
// A press while already pressed and a release without a press are dropped.
type Monitor struct {
	hk    Hotkey
	chord Chord

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func NewMonitor(hk Hotkey, chord Chord) *Monitor {
	return &Monitor{hk: hk, chord: chord}
}

func (m *Monitor) Chord() Chord { return m.chord }

// Start installs the hook and begins delivering callbacks on a dedicated
// goroutine. Callbacks must not block.
func (m *Monitor) Start(onPress, onRelease func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	if err := m.hk.Register(); err != nil {
		return &InstallError{Chord: m.chord, Err: err}
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.run(onPress, onRelease)
	return nil
}

func (m *Monitor) run(onPress, onRelease func()) {
	defer close(m.done)
	pressed := false
	edges := m.hk.Edges()
	for {
		select {
		case <-m.stop:
			return
		case e, ok := <-edges:
			if !ok {
				return
			}
			switch e {
			case Down:
				if pressed {
					continue
				}
				pressed = true
				onPress()
			case Up:
				if !pressed {
					continue
				}
				pressed = false
				onRelease()
			}
		}
	}
}

// Stop uninstalls the hook. No callback fires after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stop)
	<-m.done
	m.hk.Unregister()
	m.running = false
}
