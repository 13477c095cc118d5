// Package shutdown turns the platform's termination signals into
// cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Context is cancelled by the first interrupt or termination signal.
// Calling stop restores default signal handling.
func Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// Notify relays termination signals to ch.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, signals...)
}
