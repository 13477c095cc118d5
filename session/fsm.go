package session

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateInjecting    State = "injecting"
	StateFailed       State = "failed"
)

const (
	EventPress            Event = "press"
	EventRelease          Event = "release"
	EventSkip             Event = "skip"
	EventStartFailed      Event = "start_failed"
	EventTranscribed      Event = "transcribed"
	EventTranscribeFailed Event = "transcribe_failed"
	EventInjected         Event = "injected"
	EventInjectFailed     Event = "inject_failed"
	EventReset            Event = "reset"
)

// Transition is the whole capture lifecycle. It is pure: the caller owns the
// state and decides what each new state means for the devices.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventPress:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventRelease:
			return StateTranscribing, nil
		case EventStartFailed:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateTranscribing:
		switch event {
		case EventSkip:
			return StateIdle, nil
		case EventTranscribed:
			return StateInjecting, nil
		case EventTranscribeFailed:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateInjecting:
		switch event {
		case EventInjected:
			return StateIdle, nil
		case EventInjectFailed:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFailed:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Busy reports whether a session holds the single capture slot.
func (s State) Busy() bool {
	return s == StateRecording || s == StateTranscribing || s == StateInjecting
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
