package main

import (
	"fmt"
	"io"
	"sync"

	"superscribe/pipeline"
	"superscribe/session"
)

// consoleEvents prints session results line by line. It backs the
// headless and -test modes.
type consoleEvents struct {
	mu  sync.Mutex
	out io.Writer

	// completed receives every summary when non-nil; sends never block.
	completed chan pipeline.Summary
}

func newConsoleEvents(out io.Writer) *consoleEvents {
	return &consoleEvents{out: out}
}

func (c *consoleEvents) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *consoleEvents) SessionStarted(id int64) {
	c.printf("[%d] recording\n", id)
}

func (c *consoleEvents) SessionCompleted(s pipeline.Summary) {
	switch {
	case s.Skipped:
		c.printf("[%d] skipped (%.1fs)\n", s.ID, s.Duration.Seconds())
	case s.Success:
		c.printf("[%d] %s\n", s.ID, s.Transcript)
	default:
		c.printf("[%d] %s: %s\n", s.ID, s.ErrorKind, s.Message)
	}
	if c.completed != nil {
		select {
		case c.completed <- s:
		default:
		}
	}
}

func (c *consoleEvents) HistoryChanged() {}

func (c *consoleEvents) StateChanged(session.State) {}
