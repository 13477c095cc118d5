//go:build darwin

package clipboard

// pbpaste prints nothing for an empty clipboard, so every read error is real.
func isEmpty() bool { return false }
