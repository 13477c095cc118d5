package log

import (
	"os"
	"path/filepath"
	"runtime"
)

func defaultDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Logs", "superscribe"), nil
	case "windows":
		// %LocalAppData%
		base, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, "superscribe", "logs"), nil
	}
	return filepath.Join(stateHome(), "superscribe"), nil
}

// stateHome follows the XDG base directory spec for logs and history.
func stateHome() string {
	if d := os.Getenv("XDG_STATE_HOME"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, ".local", "state")
}
