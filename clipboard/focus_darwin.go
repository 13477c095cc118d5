//go:build darwin

package clipboard

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const frontmostScript = `tell application "System Events" to get name of first application process whose frontmost is true`

// SystemFocus asks System Events for the frontmost application.
func SystemFocus() FocusProbe {
	return FocusFunc(func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, "osascript", "-e", frontmostScript).Output()
		if err != nil {
			// no automation permission: do not block pasting on it
			return true, nil
		}
		return strings.TrimSpace(string(out)) != "", nil
	})
}
