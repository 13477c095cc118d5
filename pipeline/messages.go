package pipeline

import (
	"errors"
	"fmt"

	"superscribe/audio"
	"superscribe/clipboard"
	"superscribe/history"
	"superscribe/transcriber"
)

type injectPanic struct{ value any }

func (e *injectPanic) Error() string { return fmt.Sprintf("paste backend panicked: %v", e.value) }

// Message is the one-line notification for a failed session. Transient
// failures ask the user to try again; terminal ones name what to fix.
func Message(err error) string {
	var f *transcriber.Failure
	switch {
	case err == nil:
		return ""
	case errors.As(err, &f):
		return failureMessage(f)
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "Microphone unavailable: " + err.Error() + "."
	case errors.Is(err, clipboard.ErrNoFocusedInput):
		return "No focused input to paste into. The transcript is saved in history."
	case errors.Is(err, clipboard.ErrSnapshot):
		return "Could not read the clipboard, so nothing was pasted. The transcript is saved in history."
	case errors.Is(err, history.ErrStorage):
		return "Could not save to history: " + err.Error() + "."
	}
	return "Paste failed: " + err.Error() + ". The transcript is saved in history."
}

func failureMessage(f *transcriber.Failure) string {
	name := f.Provider
	if name == "" {
		name = "the provider"
	}
	switch {
	case f.Kind == transcriber.KindNetwork:
		return fmt.Sprintf("Could not reach %s (%s). Check your connection and try again.", name, f.Message)
	case f.Reason == transcriber.ReasonCredential:
		return fmt.Sprintf("%s rejected the API key. Check the api_key setting.", name)
	case f.Reason == transcriber.ReasonQuota:
		return fmt.Sprintf("%s quota exceeded. Wait a moment and try again.", name)
	case f.Reason == transcriber.ReasonMalformed:
		return fmt.Sprintf("%s could not process the audio: %s", name, f.Message)
	case f.Reason == transcriber.ReasonTransient:
		return fmt.Sprintf("%s is temporarily unavailable. Try again.", name)
	}
	return fmt.Sprintf("Transcription failed: %s", f.Error())
}
