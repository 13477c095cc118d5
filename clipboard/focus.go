package clipboard

import "context"

// FocusProbe reports whether some window currently has keyboard focus, i.e.
// whether a paste keystroke has anywhere to land.
type FocusProbe interface {
	FocusedInput(ctx context.Context) (bool, error)
}

type FocusFunc func(ctx context.Context) (bool, error)

func (f FocusFunc) FocusedInput(ctx context.Context) (bool, error) { return f(ctx) }

// AssumeFocused is used where the platform offers no way to ask.
var AssumeFocused FocusProbe = FocusFunc(func(context.Context) (bool, error) { return true, nil })
