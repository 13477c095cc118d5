package session

import (
	"errors"
	"time"

	"superscribe/audio"
	"superscribe/clipboard"
	"superscribe/history"
	"superscribe/hotkey"
	"superscribe/transcriber"
)

// Session is one press-to-result gesture. Only the pipeline loop mutates it;
// it is frozen once appended to history.
type Session struct {
	ID         int64
	StartedAt  time.Time
	State      State
	Audio      *audio.Buffer
	Transcript string
	Err        error
	Duration   time.Duration
}

func New(id int64, now time.Time) *Session {
	return &Session{ID: id, StartedAt: now, State: StateIdle}
}

// Fire applies event to the session's state.
func (s *Session) Fire(event Event) error {
	next, err := Transition(s.State, event)
	if err != nil {
		return err
	}
	s.State = next
	return nil
}

// Fail records err and moves the session into Failed.
func (s *Session) Fail(event Event, err error) error {
	s.Err = err
	return s.Fire(event)
}

// Persisted error kinds.
const (
	KindHookInstall = "HookInstallError"
	KindDevice      = "DeviceUnavailable"
	KindNetwork     = "NetworkError"
	KindProvider    = "ProviderError"
	KindNoFocus     = "NoFocusedInputTarget"
	KindStorage     = "StorageError"
	KindUnknown     = "Error"
)

// Kind names the taxonomy bucket of err for history and logs. A nil error
// has no kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, hotkey.ErrHookInstall):
		return KindHookInstall
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return KindDevice
	case errors.Is(err, transcriber.ErrNetwork):
		return KindNetwork
	case errors.Is(err, transcriber.ErrProvider):
		return KindProvider
	case errors.Is(err, clipboard.ErrNoFocusedInput):
		return KindNoFocus
	case errors.Is(err, history.ErrStorage):
		return KindStorage
	}
	return KindUnknown
}

// Record is the history projection of a finished session.
func (s *Session) Record() history.Record {
	rec := history.Record{
		ID:         s.ID,
		Timestamp:  s.StartedAt,
		Audio:      s.Audio,
		Transcript: s.Transcript,
	}
	if s.Err != nil {
		rec.ErrorKind = Kind(s.Err)
		rec.ErrorMessage = s.Err.Error()
	}
	return rec
}
