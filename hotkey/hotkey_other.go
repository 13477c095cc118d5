//go:build !linux

package hotkey

import (
	"fmt"

	"golang.design/x/hotkey"
)

type xHotkey struct {
	chord Chord
	hk    *hotkey.Hotkey
	edges chan Edge
	stop  chan struct{}
}

var xKeys = map[string]hotkey.Key{
	"space": hotkey.KeySpace, "enter": hotkey.KeyReturn, "esc": hotkey.KeyEscape, "tab": hotkey.KeyTab,
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD, "e": hotkey.KeyE,
	"f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH, "i": hotkey.KeyI, "j": hotkey.KeyJ,
	"k": hotkey.KeyK, "l": hotkey.KeyL, "m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO,
	"p": hotkey.KeyP, "q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX, "y": hotkey.KeyY,
	"z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3, "4": hotkey.Key4,
	"5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7, "8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// New returns the golang.design/x/hotkey backend. On macOS the process must
// run under mainthread.Init.
func New(chord Chord) (Hotkey, error) {
	key, ok := xKeys[chord.Key]
	if !ok {
		return nil, fmt.Errorf("key %q not supported", chord.Key)
	}
	var mods []hotkey.Modifier
	for _, m := range []Modifier{ModCtrl, ModShift, ModAlt, ModSuper} {
		if chord.Has(m) {
			mods = append(mods, platformModifier(m))
		}
	}
	return &xHotkey{
		chord: chord,
		hk:    hotkey.New(mods, key),
		edges: make(chan Edge, 8),
	}, nil
}

func (h *xHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return err
	}
	h.stop = make(chan struct{})
	go forward(h.stop, h.hk.Keydown(), h.hk.Keyup(), h.edges)
	return nil
}

func (h *xHotkey) Unregister() {
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
	h.hk.Unregister()
}

func (h *xHotkey) Edges() <-chan Edge {
	return h.edges
}

func Diagnose() (string, error) {
	return "global hotkey support available", nil
}
