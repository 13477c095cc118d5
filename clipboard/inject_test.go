package clipboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	contents string
	readErr  error
	pasteErr error
	panicOn  string

	pasted []string
	writes []string
}

func (f *fakeBackend) Read() (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.contents, nil
}

func (f *fakeBackend) Write(text string) error {
	f.writes = append(f.writes, text)
	f.contents = text
	return nil
}

func (f *fakeBackend) Paste() error {
	if f.panicOn == "paste" {
		panic("keystroke driver crashed")
	}
	if f.pasteErr != nil {
		return f.pasteErr
	}
	f.pasted = append(f.pasted, f.contents)
	return nil
}

func focused(ok bool) FocusProbe {
	return FocusFunc(func(context.Context) (bool, error) { return ok, nil })
}

func TestInjectPastesAndRestores(t *testing.T) {
	b := &fakeBackend{contents: "user data\x00\xffbinary-ish"}
	in := NewInjector(b, focused(true), 0)

	require.NoError(t, in.Inject(context.Background(), "hello world"))
	require.Equal(t, []string{"hello world"}, b.pasted)
	require.Equal(t, "user data\x00\xffbinary-ish", b.contents)
}

func TestInjectRestoresOnPasteError(t *testing.T) {
	b := &fakeBackend{contents: "keep me", pasteErr: errors.New("uinput denied")}
	in := NewInjector(b, focused(true), 0)

	err := in.Inject(context.Background(), "transcript")
	require.Error(t, err)
	require.Contains(t, err.Error(), "uinput denied")
	require.Equal(t, "keep me", b.contents)
}

func TestInjectRestoresOnPanic(t *testing.T) {
	b := &fakeBackend{contents: "keep me", panicOn: "paste"}
	in := NewInjector(b, focused(true), 0)

	require.Panics(t, func() { _ = in.Inject(context.Background(), "transcript") })
	require.Equal(t, "keep me", b.contents)
}

func TestInjectNoFocus(t *testing.T) {
	b := &fakeBackend{contents: "untouched"}
	in := NewInjector(b, focused(false), 0)

	err := in.Inject(context.Background(), "transcript")
	require.ErrorIs(t, err, ErrNoFocusedInput)
	require.Empty(t, b.writes)
	require.Equal(t, "untouched", b.contents)
}

func TestInjectFocusProbeError(t *testing.T) {
	b := &fakeBackend{}
	in := NewInjector(b, FocusFunc(func(context.Context) (bool, error) {
		return false, errors.New("hyprctl: socket gone")
	}), 0)

	err := in.Inject(context.Background(), "transcript")
	require.ErrorIs(t, err, ErrNoFocusedInput)
}

func TestInjectEmptyClipboard(t *testing.T) {
	b := &fakeBackend{readErr: ErrEmpty}
	in := NewInjector(b, focused(true), 0)

	require.NoError(t, in.Inject(context.Background(), "text"))
	require.Equal(t, []string{"text"}, b.pasted)
	require.Equal(t, []string{"text", ""}, b.writes)
}

func TestInjectSnapshotErrorLeavesClipboardUntouched(t *testing.T) {
	for _, readErr := range []error{ErrTimeout, errors.New("xclip: target STRING not available")} {
		b := &fakeBackend{contents: "user secret", readErr: readErr}
		in := NewInjector(b, focused(true), 0)

		err := in.Inject(context.Background(), "dictated")
		require.ErrorIs(t, err, ErrSnapshot)
		require.ErrorIs(t, err, readErr)
		require.Empty(t, b.writes)
		require.Empty(t, b.pasted)
		require.Equal(t, "user secret", b.contents)
	}
}

func TestInjectEmptyTextIsNoop(t *testing.T) {
	b := &fakeBackend{contents: "x"}
	in := NewInjector(b, focused(false), 0)

	require.NoError(t, in.Inject(context.Background(), ""))
	require.Empty(t, b.writes)
}

func TestInjectSettleHonorsContext(t *testing.T) {
	b := &fakeBackend{contents: "prior"}
	in := NewInjector(b, nil, DefaultSettle*100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, in.Inject(ctx, "x"))
	require.Equal(t, "prior", b.contents)
}
