package hotkey

import (
	"fmt"
	"strings"
)

type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModShift
	ModAlt
	ModSuper
)

var modifierNames = []struct {
	mod   Modifier
	names []string
}{
	{ModCtrl, []string{"ctrl", "control"}},
	{ModShift, []string{"shift"}},
	{ModAlt, []string{"alt", "option"}},
	{ModSuper, []string{"super", "cmd", "win", "meta"}},
}

// Chord is one or more modifiers plus a single trigger key, e.g.
// "ctrl+shift+space".
type Chord struct {
	Mods Modifier
	Key  string
}

// ParseChord parses a "+"-separated chord. Names are case-insensitive; the
// last non-modifier token is the trigger key and exactly one is required.
func ParseChord(s string) (Chord, error) {
	var c Chord
	if strings.TrimSpace(s) == "" {
		return c, fmt.Errorf("empty chord")
	}
	for _, raw := range strings.Split(s, "+") {
		tok := strings.ToLower(strings.TrimSpace(raw))
		if tok == "" {
			return Chord{}, fmt.Errorf("chord %q: empty token", s)
		}
		if m, ok := lookupModifier(tok); ok {
			c.Mods |= m
			continue
		}
		if !validKey(tok) {
			return Chord{}, fmt.Errorf("chord %q: unknown key %q", s, tok)
		}
		if c.Key != "" {
			return Chord{}, fmt.Errorf("chord %q: more than one trigger key", s)
		}
		c.Key = tok
	}
	if c.Key == "" {
		return Chord{}, fmt.Errorf("chord %q: no trigger key", s)
	}
	return c, nil
}

func MustParseChord(s string) Chord {
	c, err := ParseChord(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Chord) Has(m Modifier) bool { return c.Mods&m != 0 }

func (c Chord) String() string {
	var parts []string
	for _, mn := range modifierNames {
		if c.Has(mn.mod) {
			parts = append(parts, mn.names[0])
		}
	}
	return strings.Join(append(parts, c.Key), "+")
}

// Label is the human-readable form shown in the UI, e.g. "Ctrl+Shift+Space".
func (c Chord) Label() string {
	parts := strings.Split(c.String(), "+")
	for i, p := range parts {
		if len(p) > 1 && p[0] == 'f' && p[1] >= '0' && p[1] <= '9' {
			parts[i] = strings.ToUpper(p)
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "+")
}

func lookupModifier(tok string) (Modifier, bool) {
	for _, mn := range modifierNames {
		for _, n := range mn.names {
			if n == tok {
				return mn.mod, true
			}
		}
	}
	return 0, false
}

var namedKeys = map[string]bool{
	"space": true, "enter": true, "esc": true, "tab": true,
}

func validKey(tok string) bool {
	if namedKeys[tok] {
		return true
	}
	if len(tok) == 1 {
		c := tok[0]
		return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
	}
	var n int
	if _, err := fmt.Sscanf(tok, "f%d", &n); err == nil && fmt.Sprintf("f%d", n) == tok {
		return n >= 1 && n <= 12
	}
	return false
}
