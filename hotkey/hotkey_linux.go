//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	evKey        = 1
	keyPress     = 1
	keyRelease   = 0
	inputEvtSize = 24
)

// evdev codes from linux/input-event-codes.h
var modifierCodes = map[uint16]Modifier{
	29: ModCtrl, 97: ModCtrl,
	42: ModShift, 54: ModShift,
	56: ModAlt, 100: ModAlt,
	125: ModSuper, 126: ModSuper,
}

// a..z in alphabetical order
var letterCodes = [26]uint16{
	30, 48, 46, 32, 18, 33, 34, 35, 23, 36,
	37, 38, 50, 49, 24, 25, 16, 19, 31, 20,
	22, 47, 17, 45, 21, 44,
}

func keyCode(key string) (uint16, bool) {
	switch key {
	case "space":
		return 57, true
	case "enter":
		return 28, true
	case "esc":
		return 1, true
	case "tab":
		return 15, true
	case "f11":
		return 87, true
	case "f12":
		return 88, true
	}
	if len(key) == 1 {
		c := key[0]
		switch {
		case c >= 'a' && c <= 'z':
			return letterCodes[c-'a'], true
		case c == '0':
			return 11, true
		case c >= '1' && c <= '9':
			return uint16(c-'1') + 2, true
		}
	}
	var n int
	if _, err := fmt.Sscanf(key, "f%d", &n); err == nil && n >= 1 && n <= 10 {
		return uint16(58 + n), true
	}
	return 0, false
}

type keyEvent struct {
	code  uint16
	value int32 // 1 press, 0 release, 2 autorepeat
}

// decodeKeys extracts EV_KEY events from a raw evdev read.
func decodeKeys(buf []byte) []keyEvent {
	var out []keyEvent
	for off := 0; off+inputEvtSize <= len(buf); off += inputEvtSize {
		ev := buf[off : off+inputEvtSize]
		if binary.LittleEndian.Uint16(ev[16:]) != evKey {
			continue
		}
		out = append(out, keyEvent{
			code:  binary.LittleEndian.Uint16(ev[18:]),
			value: int32(binary.LittleEndian.Uint32(ev[20:])),
		})
	}
	return out
}

// chordTracker turns key events from every keyboard into chord edges, so a
// modifier held on one device combines with a key on another.
type chordTracker struct {
	mu   sync.Mutex
	mods Modifier
	code uint16
	held Modifier
	down bool
}

func (t *chordTracker) feed(ev keyEvent) (Edge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mod, ok := modifierCodes[ev.code]; ok {
		switch ev.value {
		case keyPress:
			t.held |= mod
		case keyRelease:
			t.held &^= mod
		}
		return 0, false
	}
	if ev.code != t.code {
		return 0, false
	}
	switch {
	case ev.value == keyPress && !t.down && t.held&t.mods == t.mods:
		t.down = true
		return Down, true
	case ev.value == keyRelease && t.down:
		t.down = false
		return Up, true
	}
	return 0, false
}

type linuxHotkey struct {
	tracker *chordTracker
	edges   chan Edge
	files   []*os.File
	stop    chan struct{}
	once    sync.Once
}

// New returns the evdev backend. Reading /dev/input requires membership in
// the input group.
func New(chord Chord) (Hotkey, error) {
	code, ok := keyCode(chord.Key)
	if !ok {
		return nil, fmt.Errorf("key %q not supported on linux", chord.Key)
	}
	return &linuxHotkey{
		tracker: &chordTracker{mods: chord.Mods, code: code},
		edges:   make(chan Edge, 8),
	}, nil
}

func (h *linuxHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return errors.New("no keyboard devices found (is user in 'input' group?)")
	}

	h.stop = make(chan struct{})
	for _, path := range keyboards {
		if f, err := os.Open(path); err == nil {
			h.files = append(h.files, f)
			go h.watch(f)
		}
	}
	if len(h.files) == 0 {
		return errors.New("could not open any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}
	return nil
}

// watch reads one keyboard until Unregister closes it.
func (h *linuxHotkey) watch(f *os.File) {
	buf := make([]byte, inputEvtSize*16)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for _, ev := range decodeKeys(buf[:n]) {
			edge, ok := h.tracker.feed(ev)
			if !ok {
				continue
			}
			select {
			case h.edges <- edge:
			case <-h.stop:
				return
			default:
			}
		}
	}
}

func (h *linuxHotkey) Unregister() {
	h.once.Do(func() {
		if h.stop != nil {
			close(h.stop)
		}
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *linuxHotkey) Edges() <-chan Edge {
	return h.edges
}

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var keyboards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		if isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	return keyboards, nil
}

func isKeyboard(eventName string) bool {
	capsPath := filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key")
	data, err := os.ReadFile(capsPath)
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}

func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", errors.New("no keyboard devices found (is user in 'input' group?)")
	}

	var opened string
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			opened = path
			break
		}
	}
	if opened == "" {
		return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
	}

	return fmt.Sprintf("%d keyboard(s) found, opened %s", len(keyboards), opened), nil
}
