package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrSelectionAborted = errors.New("device selection aborted")

// FindDevice returns the device called name. An empty name means the system
// default and yields nil.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no input device named %q", ErrDeviceUnavailable, name)
}

type pickKey int

const (
	keyNone pickKey = iota
	keyUp
	keyDown
	keyAccept
	keyAbort
)

// decodeKey maps one raw-mode read to a picker action.
func decodeKey(b []byte) pickKey {
	switch {
	case len(b) == 1 && (b[0] == '\r' || b[0] == '\n'):
		return keyAccept
	case len(b) == 1 && (b[0] == 3 || b[0] == 'q'):
		return keyAbort
	case len(b) == 1 && b[0] == 'k', len(b) == 3 && string(b) == "\x1b[A":
		return keyUp
	case len(b) == 1 && b[0] == 'j', len(b) == 3 && string(b) == "\x1b[B":
		return keyDown
	}
	return keyNone
}

type picker struct {
	devices []DeviceInfo
	cursor  int
}

func (p *picker) move(k pickKey) {
	switch k {
	case keyUp:
		p.cursor = max(p.cursor-1, 0)
	case keyDown:
		p.cursor = min(p.cursor+1, len(p.devices)-1)
	}
}

func (p *picker) render(w io.Writer) {
	var b strings.Builder
	b.WriteString("\r\x1b[JSelect input device (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range p.devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(&b, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(&b, "    %s%s\r\n", d.Name, tag)
		}
	}
	io.WriteString(w, b.String())
}

// run drives the picker from in until a device is accepted or the user aborts.
func (p *picker) run(in io.Reader, out io.Writer) (*DeviceInfo, error) {
	p.render(out)
	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch k := decodeKey(buf[:n]); k {
		case keyAccept:
			io.WriteString(out, "\r\n")
			return &p.devices[p.cursor], nil
		case keyAbort:
			io.WriteString(out, "\r\n")
			return nil, ErrSelectionAborted
		default:
			p.move(k)
		}
		fmt.Fprintf(out, "\x1b[%dA", len(p.devices)+2)
		p.render(out)
	}
}

// SelectDevice lets the user pick a microphone in the terminal. A single
// device is returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("%w: no capture devices found", ErrDeviceUnavailable)
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, old)

	p := &picker{devices: devices}
	return p.run(os.Stdin, os.Stdout)
}
