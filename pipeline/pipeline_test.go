package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"superscribe/audio"
	"superscribe/clipboard"
	"superscribe/history"
	"superscribe/hotkey"
	"superscribe/session"
	"superscribe/transcriber"
)

const waitFor = 5 * time.Second

type events struct {
	mu             sync.Mutex
	started        []int64
	historyChanged int

	states    chan session.State
	completed chan Summary
}

func newEvents() *events {
	return &events{
		states:    make(chan session.State, 256),
		completed: make(chan Summary, 16),
	}
}

func (e *events) SessionStarted(id int64) {
	e.mu.Lock()
	e.started = append(e.started, id)
	e.mu.Unlock()
}

func (e *events) SessionCompleted(s Summary) { e.completed <- s }

func (e *events) HistoryChanged() {
	e.mu.Lock()
	e.historyChanged++
	e.mu.Unlock()
}

func (e *events) StateChanged(s session.State) {
	select {
	case e.states <- s:
	default:
	}
}

func (e *events) waitState(t *testing.T, want session.State) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case s := <-e.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %s never reached", want)
		}
	}
}

func (e *events) waitCompleted(t *testing.T) Summary {
	t.Helper()
	select {
	case s := <-e.completed:
		return s
	case <-time.After(waitFor):
		t.Fatal("session never completed")
	}
	return Summary{}
}

func (e *events) noneCompleted(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case s := <-e.completed:
		t.Fatalf("unexpected session %d completed", s.ID)
	case <-time.After(within):
	}
}

// desktop is a clipboard plus a focused text field that receives pastes.
type desktop struct {
	mu        sync.Mutex
	clipboard string
	field     []string
}

func (d *desktop) Read() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard, nil
}

func (d *desktop) Write(text string) error {
	d.mu.Lock()
	d.clipboard = text
	d.mu.Unlock()
	return nil
}

// Copy is the auto_paste=false path: the clipboard keeps the transcript.
func (d *desktop) Copy(text string) error { return d.Write(text) }

func (d *desktop) Paste() error {
	d.mu.Lock()
	d.field = append(d.field, d.clipboard)
	d.mu.Unlock()
	return nil
}

func (d *desktop) snapshot() (string, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard, append([]string(nil), d.field...)
}

type notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notices) Notify(_, message string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, message)
	n.mu.Unlock()
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type harnessConfig struct {
	clip        []int16
	tr          transcriber.Transcriber
	unfocused   bool
	failStart   error
	maxDuration time.Duration
	hotkey      *hotkey.FakeHotkey
	noPaste     bool
}

type harness struct {
	hk      *hotkey.FakeHotkey
	store   *history.Store
	desk    *desktop
	notices *notices
	events  *events
	p       *Pipeline
	errc    chan error
	cancel  context.CancelFunc
}

func speech(d time.Duration) []int16 {
	n := int(d.Seconds() * 16000)
	out := make([]int16, n)
	for i := range out {
		out[i] = int16((i%80 - 40) * 200)
	}
	return out
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()

	actx := audio.NewFakeContextPCM(cfg.clip, 16000)
	if cfg.failStart != nil {
		actx.FailStart(cfg.failStart)
	}
	capCfg := audio.CaptureConfig{SampleRate: 16000, Channels: 1}
	dev, err := actx.NewCapture(nil, capCfg)
	require.NoError(t, err)
	rec := audio.NewRecorder(dev, capCfg, audio.RecorderOptions{MaxDuration: cfg.maxDuration})

	store, err := history.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	desk := &desktop{clipboard: "user's own clipboard"}
	focus := clipboard.FocusFunc(func(context.Context) (bool, error) { return !cfg.unfocused, nil })

	hk := cfg.hotkey
	if hk == nil {
		hk = hotkey.NewFake()
	}
	h := &harness{
		hk:      hk,
		store:   store,
		desk:    desk,
		notices: &notices{},
		events:  newEvents(),
		errc:    make(chan error, 1),
	}
	h.p = New(Deps{
		Monitor:     hotkey.NewMonitor(hk, hotkey.MustParseChord("ctrl+shift+space")),
		Capture:     rec,
		Transcriber: cfg.tr,
		Injector:    clipboard.NewInjector(desk, focus, 0),
		Copier:      desk,
		History:     store,
		Notifier:    h.notices,
		Events:      h.events,
	}, Options{AutoPaste: !cfg.noPaste, Format: "flac"})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.errc:
		case <-time.After(waitFor):
			t.Error("pipeline did not stop")
		}
	})
	h.events.waitState(t, session.StateIdle)
	return h
}

func (h *harness) gesture(t *testing.T) {
	t.Helper()
	h.hk.SimKeydown()
	h.events.waitState(t, session.StateRecording)
	h.hk.SimKeyup()
}

func (h *harness) entries(t *testing.T) []history.Entry {
	t.Helper()
	entries, err := h.store.List("")
	require.NoError(t, err)
	return entries
}

func TestEndToEndSuccess(t *testing.T) {
	tr := transcriber.NewFake("hello world")
	tr.SetDelay(50 * time.Millisecond)
	h := newHarness(t, harnessConfig{clip: speech(2 * time.Second), tr: tr})

	h.gesture(t)
	sum := h.events.waitCompleted(t)

	require.True(t, sum.Success)
	require.Equal(t, "hello world", sum.Transcript)
	require.Empty(t, sum.Message)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	require.Equal(t, "hello world", entries[0].Transcript)
	require.Empty(t, entries[0].ErrorKind)
	require.InDelta(t, 2.0, entries[0].Duration.Seconds(), 0.1)

	clip, field := h.desk.snapshot()
	require.Equal(t, []string{"hello world"}, field)
	require.Equal(t, "user's own clipboard", clip)
	require.Equal(t, 1, tr.Calls())
	require.Empty(t, h.notices.all())
}

func TestAutoPasteOffCopiesTranscript(t *testing.T) {
	h := newHarness(t, harnessConfig{clip: speech(time.Second), tr: transcriber.NewFake("copied text"), noPaste: true})

	h.gesture(t)
	sum := h.events.waitCompleted(t)
	require.True(t, sum.Success)

	clip, field := h.desk.snapshot()
	require.Equal(t, "copied text", clip)
	require.Empty(t, field)
	require.Len(t, h.entries(t), 1)
}

func TestShortPressIsNoop(t *testing.T) {
	tr := transcriber.NewFake("should not be called")
	h := newHarness(t, harnessConfig{clip: speech(100 * time.Millisecond), tr: tr})

	h.gesture(t)
	sum := h.events.waitCompleted(t)

	require.True(t, sum.Skipped)
	require.Less(t, sum.Duration, DefaultMinDuration)
	require.Zero(t, tr.Calls())
	require.Empty(t, h.entries(t))
	require.Empty(t, h.notices.all())
}

func TestTimeoutRecordsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr := transcriber.NewGemini(transcriber.Options{APIKey: "k", BaseURL: srv.URL, Timeout: 100 * time.Millisecond})
	h := newHarness(t, harnessConfig{clip: speech(2 * time.Second), tr: tr})

	h.gesture(t)
	sum := h.events.waitCompleted(t)

	require.False(t, sum.Success)
	require.Equal(t, session.KindNetwork, sum.ErrorKind)
	require.ErrorIs(t, sum.Err, transcriber.ErrNetwork)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	require.Equal(t, "NetworkError", entries[0].ErrorKind)
	require.Contains(t, entries[0].ErrorMessage, "timed out")
	require.Empty(t, entries[0].Transcript)

	_, field := h.desk.snapshot()
	require.Empty(t, field)
	require.Len(t, h.notices.all(), 1)
}

func TestPressWhileBusyIsIgnored(t *testing.T) {
	tr := transcriber.NewFake("only once")
	tr.SetDelay(300 * time.Millisecond)
	h := newHarness(t, harnessConfig{clip: speech(time.Second), tr: tr})

	h.gesture(t)
	h.events.waitState(t, session.StateTranscribing)
	h.hk.SimKeydown()
	h.hk.SimKeyup()

	sum := h.events.waitCompleted(t)
	require.True(t, sum.Success)
	h.events.noneCompleted(t, 300*time.Millisecond)

	require.Equal(t, 1, tr.Calls())
	require.Len(t, h.entries(t), 1)
	h.events.mu.Lock()
	require.Len(t, h.events.started, 1)
	h.events.mu.Unlock()
}

func TestSequentialSessions(t *testing.T) {
	tr := transcriber.NewFake("one")
	h := newHarness(t, harnessConfig{clip: speech(time.Second), tr: tr})

	h.gesture(t)
	first := h.events.waitCompleted(t)
	tr.SetText("two")
	h.gesture(t)
	second := h.events.waitCompleted(t)

	require.Equal(t, first.ID+1, second.ID)
	entries := h.entries(t)
	require.Len(t, entries, 2)
	require.Equal(t, "two", entries[0].Transcript)
	_, field := h.desk.snapshot()
	require.Equal(t, []string{"one", "two"}, field)
}

func TestStartFailureIsSessionScoped(t *testing.T) {
	tr := transcriber.NewFake("unused")
	h := newHarness(t, harnessConfig{tr: tr, failStart: errors.New("no input device")})

	h.hk.SimKeydown()
	sum := h.events.waitCompleted(t)
	h.hk.SimKeyup()

	require.False(t, sum.Success)
	require.Equal(t, session.KindDevice, sum.ErrorKind)
	require.Contains(t, sum.Message, "Microphone unavailable")
	require.Zero(t, tr.Calls())

	entries := h.entries(t)
	require.Len(t, entries, 1)
	require.Equal(t, "DeviceUnavailable", entries[0].ErrorKind)

	// the next gesture is not blocked
	h.hk.SimKeydown()
	h.events.waitCompleted(t)
	h.hk.SimKeyup()
	require.Len(t, h.entries(t), 2)
}

func TestInjectFailureKeepsTranscript(t *testing.T) {
	tr := transcriber.NewFake("saved anyway")
	h := newHarness(t, harnessConfig{clip: speech(time.Second), tr: tr, unfocused: true})

	h.gesture(t)
	sum := h.events.waitCompleted(t)

	require.False(t, sum.Success)
	require.Equal(t, session.KindNoFocus, sum.ErrorKind)
	entries := h.entries(t)
	require.Len(t, entries, 1)
	require.Equal(t, "saved anyway", entries[0].Transcript)
	require.Equal(t, "NoFocusedInputTarget", entries[0].ErrorKind)

	clip, field := h.desk.snapshot()
	require.Empty(t, field)
	require.Equal(t, "user's own clipboard", clip)
}

func TestProviderFailureMessage(t *testing.T) {
	tr := transcriber.NewFake("")
	tr.SetFailure(&transcriber.Failure{Kind: transcriber.KindProvider, Reason: transcriber.ReasonQuota, Provider: "groq", StatusCode: 429})
	h := newHarness(t, harnessConfig{clip: speech(time.Second), tr: tr})

	h.gesture(t)
	sum := h.events.waitCompleted(t)

	require.Equal(t, session.KindProvider, sum.ErrorKind)
	require.Equal(t, []string{"groq quota exceeded. Wait a moment and try again."}, h.notices.all())
}

func TestEmptyTranscriptIsRecordedNotPasted(t *testing.T) {
	h := newHarness(t, harnessConfig{clip: speech(time.Second), tr: transcriber.NewFake("")})

	h.gesture(t)
	sum := h.events.waitCompleted(t)

	require.True(t, sum.Success)
	require.Len(t, h.entries(t), 1)
	_, field := h.desk.snapshot()
	require.Empty(t, field)
}

func TestAutoStopAtCap(t *testing.T) {
	h := newHarness(t, harnessConfig{
		clip:        speech(3 * time.Second),
		tr:          transcriber.NewFake("capped"),
		maxDuration: time.Second,
	})

	h.hk.SimKeydown()
	sum := h.events.waitCompleted(t)
	h.hk.SimKeyup()

	require.True(t, sum.Success)
	require.Equal(t, time.Second, sum.Duration)
	h.events.noneCompleted(t, 100*time.Millisecond)
}

func TestHistoryCommands(t *testing.T) {
	tr := transcriber.NewFake("Remember the milk")
	h := newHarness(t, harnessConfig{clip: speech(time.Second), tr: tr})
	h.gesture(t)
	sum := h.events.waitCompleted(t)

	got, err := h.p.ShowHistory("MILK")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, sum.ID, got[0].ID)

	got, err = h.p.ShowHistory("eggs")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, h.p.DeleteEntry(sum.ID))
	got, err = h.p.ShowHistory("")
	require.NoError(t, err)
	require.Empty(t, got)

	require.ErrorIs(t, h.p.DeleteEntry(sum.ID), history.ErrNotFound)

	h.events.mu.Lock()
	require.Equal(t, 2, h.events.historyChanged)
	h.events.mu.Unlock()
}

func TestHookInstallFailureIsFatal(t *testing.T) {
	store, err := history.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	p := New(Deps{
		Monitor:     hotkey.NewMonitor(hotkey.NewFailingFake("permission denied"), hotkey.MustParseChord("ctrl+space")),
		Capture:     audio.NewRecorder(nil, audio.CaptureConfig{SampleRate: 16000, Channels: 1}, audio.RecorderOptions{}),
		Transcriber: transcriber.NewFake(""),
		History:     store,
	}, Options{})

	err = p.Run(context.Background())
	require.ErrorIs(t, err, hotkey.ErrHookInstall)
	var ie *hotkey.InstallError
	require.ErrorAs(t, err, &ie)

	_, err = p.ShowHistory("")
	require.ErrorIs(t, err, ErrClosed)
}

func TestExitWaitsForSessionInFlight(t *testing.T) {
	tr := transcriber.NewFake("finished")
	tr.SetDelay(200 * time.Millisecond)
	h := newHarness(t, harnessConfig{clip: speech(time.Second), tr: tr})

	h.gesture(t)
	h.events.waitState(t, session.StateTranscribing)
	h.p.Exit()

	select {
	case err := <-h.errc:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	h.errc <- nil // for cleanup

	sum := h.events.waitCompleted(t)
	require.True(t, sum.Success)
	require.Len(t, h.entries(t), 1)
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&transcriber.Failure{Kind: transcriber.KindProvider, Reason: transcriber.ReasonCredential, Provider: "gemini", StatusCode: 401},
			"gemini rejected the API key. Check the api_key setting."},
		{&transcriber.Failure{Kind: transcriber.KindProvider, Reason: transcriber.ReasonTransient, Provider: "openai", StatusCode: 503},
			"openai is temporarily unavailable. Try again."},
		{&transcriber.Failure{Kind: transcriber.KindProvider, Reason: transcriber.ReasonMalformed, Provider: "groq", Message: "file too large"},
			"groq could not process the audio: file too large"},
		{&transcriber.Failure{Kind: transcriber.KindNetwork, Provider: "gemini", Message: "request timed out after 15s"},
			"Could not reach gemini (request timed out after 15s). Check your connection and try again."},
		{fmt.Errorf("inject: %w", clipboard.ErrNoFocusedInput),
			"No focused input to paste into. The transcript is saved in history."},
		{fmt.Errorf("%w: %w", clipboard.ErrSnapshot, clipboard.ErrTimeout),
			"Could not read the clipboard, so nothing was pasted. The transcript is saved in history."},
		{&injectPanic{value: "boom"},
			"Paste failed: paste backend panicked: boom. The transcript is saved in history."},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Message(tc.err))
	}
}
