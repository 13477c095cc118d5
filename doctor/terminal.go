package doctor

import (
	"os"

	"golang.org/x/term"
)

var savedTerminal *term.State

// saveTerminal records the tty mode so steps that grab the keyboard can
// hand it back intact.
func saveTerminal() {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		savedTerminal, _ = term.GetState(fd)
	}
}

func resetTerminal() {
	if savedTerminal != nil {
		term.Restore(int(os.Stdin.Fd()), savedTerminal)
	}
}
