package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"superscribe/audio"
	"superscribe/clipboard"
	"superscribe/history"
	"superscribe/hotkey"
	"superscribe/transcriber"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle
	for _, step := range []struct {
		event Event
		want  State
	}{
		{EventPress, StateRecording},
		{EventRelease, StateTranscribing},
		{EventTranscribed, StateInjecting},
		{EventInjected, StateIdle},
	} {
		next, err := Transition(s, step.event)
		require.NoError(t, err)
		require.Equal(t, step.want, next)
		s = next
	}
}

func TestTransitionFailurePaths(t *testing.T) {
	tests := []struct {
		name  string
		path  []Event
		final State
	}{
		{"start failure", []Event{EventPress, EventStartFailed, EventReset}, StateIdle},
		{"short press", []Event{EventPress, EventRelease, EventSkip}, StateIdle},
		{"transcription failure", []Event{EventPress, EventRelease, EventTranscribeFailed, EventReset}, StateIdle},
		{"injection failure", []Event{EventPress, EventRelease, EventTranscribed, EventInjectFailed, EventReset}, StateIdle},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := StateIdle
			for _, e := range tc.path {
				next, err := Transition(s, e)
				require.NoError(t, err, "%s --(%s)-->", s, e)
				s = next
			}
			require.Equal(t, tc.final, s)
		})
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	states := []State{StateIdle, StateRecording, StateTranscribing, StateInjecting, StateFailed}
	events := []Event{EventPress, EventRelease, EventSkip, EventStartFailed, EventTranscribed,
		EventTranscribeFailed, EventInjected, EventInjectFailed, EventReset}
	valid := map[string]State{
		"idle/press":                     StateRecording,
		"recording/release":              StateTranscribing,
		"recording/start_failed":         StateFailed,
		"transcribing/skip":              StateIdle,
		"transcribing/transcribed":       StateInjecting,
		"transcribing/transcribe_failed": StateFailed,
		"injecting/injected":             StateIdle,
		"injecting/inject_failed":        StateFailed,
		"failed/reset":                   StateIdle,
	}

	for _, st := range states {
		for _, ev := range events {
			key := fmt.Sprintf("%s/%s", st, ev)
			t.Run(key, func(t *testing.T) {
				next, err := Transition(st, ev)
				if want, ok := valid[key]; ok {
					require.NoError(t, err)
					require.Equal(t, want, next)
					return
				}
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				require.Equal(t, st, next)
			})
		}
	}
}

func TestPressOutsideIdleIsRejected(t *testing.T) {
	for _, st := range []State{StateRecording, StateTranscribing, StateInjecting, StateFailed} {
		_, err := Transition(st, EventPress)
		require.Error(t, err)
	}
}

func TestTransitionUnknownState(t *testing.T) {
	_, err := Transition(State("bogus"), EventPress)
	require.ErrorContains(t, err, "unknown state")
}

func TestBusy(t *testing.T) {
	require.False(t, StateIdle.Busy())
	require.False(t, StateFailed.Busy())
	require.True(t, StateRecording.Busy())
	require.True(t, StateTranscribing.Busy())
	require.True(t, StateInjecting.Busy())
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&hotkey.InstallError{Chord: hotkey.MustParseChord("ctrl+space"), Err: errors.New("permission denied")}, KindHookInstall},
		{fmt.Errorf("start: %w", audio.ErrDeviceUnavailable), KindDevice},
		{&transcriber.Failure{Kind: transcriber.KindNetwork, Message: "timeout"}, KindNetwork},
		{&transcriber.Failure{Kind: transcriber.KindProvider, Reason: transcriber.ReasonQuota}, KindProvider},
		{fmt.Errorf("inject: %w", clipboard.ErrNoFocusedInput), KindNoFocus},
		{fmt.Errorf("%w: disk full", history.ErrStorage), KindStorage},
		{errors.New("something else"), KindUnknown},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Kind(tc.err), "%v", tc.err)
	}
}

func TestSessionRecord(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	s := New(12, at)
	require.NoError(t, s.Fire(EventPress))
	require.NoError(t, s.Fire(EventRelease))
	require.NoError(t, s.Fail(EventTranscribeFailed, &transcriber.Failure{Kind: transcriber.KindNetwork, Provider: "gemini", Message: "request timed out after 15s"}))
	require.Equal(t, StateFailed, s.State)

	rec := s.Record()
	require.Equal(t, int64(12), rec.ID)
	require.Equal(t, at, rec.Timestamp)
	require.Equal(t, KindNetwork, rec.ErrorKind)
	require.Equal(t, "network error: gemini: request timed out after 15s", rec.ErrorMessage)

	require.Error(t, s.Fire(EventInjected))
	require.Equal(t, StateFailed, s.State)
}
