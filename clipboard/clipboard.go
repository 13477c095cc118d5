package clipboard

import (
	"errors"
	"time"

	cb "github.com/atotto/clipboard"
)

// ErrTimeout is returned when the clipboard helper (xclip, wl-copy, pbcopy)
// does not answer, usually because no display server is reachable.
var ErrTimeout = errors.New("clipboard tool timed out")

// ErrEmpty means the clipboard holds nothing at all. A clipboard holding only
// non-text data (an image) is not empty and reads as an ordinary error.
var ErrEmpty = errors.New("clipboard is empty")

const toolTimeout = 3 * time.Second

// Available reports whether a clipboard helper was found.
func Available() bool { return !cb.Unsupported }

func Read() (string, error) {
	return readText(func() (string, error) { return bounded(toolTimeout, cb.ReadAll) }, isEmpty)
}

// readText asks empty only after a failed read; the helpers report an empty
// clipboard and one holding an image the same way.
func readText(read func() (string, error), empty func() bool) (string, error) {
	s, err := read()
	if err == nil || errors.Is(err, ErrTimeout) {
		return s, err
	}
	if empty() {
		return "", ErrEmpty
	}
	return "", err
}

func Copy(text string) error {
	_, err := bounded(toolTimeout, func() (string, error) {
		return "", cb.WriteAll(text)
	})
	return err
}

func bounded(timeout time.Duration, op func() (string, error)) (string, error) {
	type result struct {
		s   string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := op()
		ch <- result{s, err}
	}()
	select {
	case r := <-ch:
		return r.s, r.err
	case <-time.After(timeout):
		return "", ErrTimeout
	}
}
