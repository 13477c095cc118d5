package clipboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"superscribe/log"
)

// ErrNoFocusedInput means there was no focused window to paste into.
var ErrNoFocusedInput = errors.New("no focused input target")

// ErrSnapshot means the current clipboard could not be saved, so nothing was
// written to it.
var ErrSnapshot = errors.New("clipboard snapshot failed")

const DefaultSettle = 150 * time.Millisecond

// Backend is the system clipboard plus the paste keystroke.
type Backend interface {
	Read() (string, error)
	Write(text string) error
	Paste() error
}

type systemBackend struct{}

func (systemBackend) Read() (string, error)   { return Read() }
func (systemBackend) Write(text string) error { return Copy(text) }
func (systemBackend) Paste() error            { return Paste() }

// System is the atotto clipboard with the platform paste keystroke.
func System() Backend { return systemBackend{} }

// Injector pastes text at the caret of the focused window by way of the
// clipboard, then puts the previous clipboard contents back.
type Injector struct {
	backend Backend
	focus   FocusProbe
	settle  time.Duration
}

func NewInjector(backend Backend, focus FocusProbe, settle time.Duration) *Injector {
	if focus == nil {
		focus = AssumeFocused
	}
	if settle < 0 {
		settle = DefaultSettle
	}
	return &Injector{backend: backend, focus: focus, settle: settle}
}

// Inject delivers text to the focused input. The clipboard is restored on
// every path out of Inject, including a panic in the backend. An empty text
// is a no-op.
func (in *Injector) Inject(ctx context.Context, text string) (err error) {
	if text == "" {
		return nil
	}

	ok, ferr := in.focus.FocusedInput(ctx)
	if ferr != nil {
		return fmt.Errorf("%w: %v", ErrNoFocusedInput, ferr)
	}
	if !ok {
		return ErrNoFocusedInput
	}

	prev, rerr := in.backend.Read()
	switch {
	case errors.Is(rerr, ErrEmpty):
		prev = ""
	case rerr != nil:
		log.Warnf("clipboard snapshot: %v", rerr)
		return fmt.Errorf("%w: %w", ErrSnapshot, rerr)
	}

	defer func() {
		if werr := in.backend.Write(prev); werr != nil {
			log.Errorf("clipboard restore: %v", werr)
			if err == nil {
				err = fmt.Errorf("restore clipboard: %w", werr)
			}
		}
	}()

	if err := in.backend.Write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	if err := in.backend.Paste(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}

	// the target app reads the clipboard asynchronously after the keystroke
	if in.settle > 0 {
		t := time.NewTimer(in.settle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return nil
}
