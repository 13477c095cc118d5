package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
provider: groq
api_key: gsk-test
hotkey_chord: ctrl+alt+r
transcribe_timeout: 5s
min_recording_millis: 150
auto_paste: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "groq", cfg.Provider)
	require.Equal(t, "gsk-test", cfg.APIKey)
	require.Equal(t, "ctrl+alt+r", cfg.HotkeyChord)
	require.Equal(t, 5*time.Second, cfg.TranscribeTimeout.Std())
	require.Equal(t, 150*time.Millisecond, cfg.MinRecording())
	require.False(t, cfg.AutoPaste)
	// untouched keys keep their defaults
	require.Equal(t, 120*time.Second, cfg.MaxRecording())
	require.Equal(t, 500*time.Millisecond, cfg.StopTimeout.Std())
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "transcribe_timeout: soon\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvKeyFillsEmptyAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.APIKey)

	path := writeConfig(t, "api_key: file-key\n")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, "file-key", cfg.APIKey)
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	base := Default()
	base.APIKey = "k"
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"provider", func(c *Config) { c.Provider = "deepgram" }},
		{"missing key", func(c *Config) { c.APIKey = " " }},
		{"format", func(c *Config) { c.Format = "mp3" }},
		{"chord", func(c *Config) { c.HotkeyChord = "ctrl+banana" }},
		{"max recording", func(c *Config) { c.MaxRecordingSecs = 0 }},
		{"min recording", func(c *Config) { c.MinRecordingMillis = -1 }},
		{"zero min recording", func(c *Config) { c.MinRecordingMillis = 0 }},
		{"timeout", func(c *Config) { c.TranscribeTimeout = 0 }},
		{"stop timeout", func(c *Config) { c.StopTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestFakeProviderNeedsNoKey(t *testing.T) {
	cfg := Default()
	cfg.Provider = "fake"
	require.NoError(t, cfg.Validate())
}
