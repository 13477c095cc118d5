//go:build linux

package clipboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ioctl constants from linux/uinput.h
const (
	uiSetEvbit  = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate = 0x5501     // UI_DEV_CREATE
)

// from linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01

	keyLeftCtrl = 29
	keyV        = 47

	busUSB = 0x03
)

const (
	deviceName = "superscribe-paste"
	eventSize  = 24 // struct input_event on 64-bit
	keyGap     = 5 * time.Millisecond
)

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// virtualKeyboard is a uinput device that can type key chords into
// whatever window has focus, on X11 and Wayland alike.
type virtualKeyboard struct {
	mu sync.Mutex
	f  *os.File
}

var (
	kbd     *virtualKeyboard
	kbdOnce sync.Once
	kbdErr  error
)

// Init creates the virtual keyboard. It is safe to call repeatedly.
func Init() error {
	kbdOnce.Do(func() {
		kbd, kbdErr = openVirtualKeyboard()
	})
	return kbdErr
}

func uinputPath() (string, error) {
	for _, p := range []string{"/dev/uinput", "/dev/input/uinput"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("uinput device not found, try: sudo modprobe uinput")
}

func ioctl(f *os.File, req, arg uintptr) error {
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), req, arg); errno != 0 {
		return errno
	}
	return nil
}

func openVirtualKeyboard() (*virtualKeyboard, error) {
	path, err := uinputPath()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
	if err != nil {
		return nil, fmt.Errorf("%w (fix with: sudo chmod 660 %s && sudo chgrp input %s)", err, path, path)
	}

	setup := func() error {
		if err := ioctl(f, uiSetEvbit, evKey); err != nil {
			return err
		}
		if err := ioctl(f, uiSetEvbit, evSyn); err != nil {
			return err
		}
		// all standard keys, so udev classifies the device as a keyboard
		for code := uintptr(0); code < 256; code++ {
			if err := ioctl(f, uiSetKeybit, code); err != nil {
				return err
			}
		}
		dev := uinputUserDev{ID: inputID{Bustype: busUSB, Vendor: 0x1234, Product: 0x5678, Version: 1}}
		copy(dev.Name[:], deviceName)
		if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
			return err
		}
		return ioctl(f, uiDevCreate, 0)
	}
	if err := setup(); err != nil {
		f.Close()
		return nil, fmt.Errorf("uinput setup: %w", err)
	}

	// the compositor needs a moment to pick up a new input device
	time.Sleep(200 * time.Millisecond)
	return &virtualKeyboard{f: f}, nil
}

func (k *virtualKeyboard) emit(code uint16, value int32) error {
	if err := binary.Write(k.f, binary.LittleEndian, &inputEvent{Type: evKey, Code: code, Value: value}); err != nil {
		return err
	}
	return binary.Write(k.f, binary.LittleEndian, &inputEvent{Type: evSyn})
}

// chord presses keys in order and releases them in reverse.
func (k *virtualKeyboard) chord(keys ...uint16) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, code := range keys {
		if err := k.emit(code, 1); err != nil {
			return err
		}
		if i == 0 {
			// let the compositor register the modifier
			time.Sleep(keyGap)
		}
	}
	time.Sleep(keyGap)
	for i := len(keys) - 1; i >= 0; i-- {
		if err := k.emit(keys[i], 0); err != nil {
			return err
		}
	}
	return nil
}

// Paste sends Ctrl+V through the virtual keyboard.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	return kbd.chord(keyLeftCtrl, keyV)
}

// findEventDevice returns the /dev/input node of the input device called name.
func findEventDevice(name string) (string, error) {
	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == name {
			return filepath.Join("/dev/input", e.Name()), nil
		}
	}
	return "", fmt.Errorf("%s evdev device not found", name)
}

// keysSeen returns the key codes of the EV_KEY events in a raw evdev read.
func keysSeen(buf []byte) map[uint16]bool {
	seen := make(map[uint16]bool)
	for i := 0; i+eventSize <= len(buf); i += eventSize {
		if binary.LittleEndian.Uint16(buf[i+16:]) == evKey {
			seen[binary.LittleEndian.Uint16(buf[i+18:])] = true
		}
	}
	return seen
}

// Verify sends Ctrl+V and reads it back from the kernel input layer to
// confirm delivery.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", fmt.Errorf("uinput init: %w", err)
	}
	path, err := findEventDevice(deviceName)
	if err != nil {
		return "", err
	}
	evdev, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer evdev.Close()

	if err := Paste(); err != nil {
		return "", fmt.Errorf("paste send: %w", err)
	}

	type result struct {
		seen map[uint16]bool
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, eventSize*32)
		n, err := evdev.Read(buf)
		ch <- result{seen: keysSeen(buf[:max(n, 0)]), err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("reading events: %w", r.err)
		}
		if !r.seen[keyLeftCtrl] || !r.seen[keyV] {
			return "", fmt.Errorf("missing events (ctrl=%v, v=%v)", r.seen[keyLeftCtrl], r.seen[keyV])
		}
		return "Ctrl+V keystroke verified via " + path, nil
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("timed out waiting for keystroke events")
	}
}
