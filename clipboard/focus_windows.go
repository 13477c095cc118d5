//go:build windows

package clipboard

import (
	"context"
	"syscall"
)

var (
	user32                  = syscall.NewLazyDLL("user32.dll")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
)

// SystemFocus checks that a foreground window exists.
func SystemFocus() FocusProbe {
	return FocusFunc(func(context.Context) (bool, error) {
		hwnd, _, _ := procGetForegroundWindow.Call()
		return hwnd != 0, nil
	})
}
