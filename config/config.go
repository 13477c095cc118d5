package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"superscribe/hotkey"
)

// Duration is a time.Duration that reads "15s" style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is read once at startup.
type Config struct {
	Provider           string   `yaml:"provider"`
	APIKey             string   `yaml:"api_key"`
	Model              string   `yaml:"model"`
	Language           string   `yaml:"language"`
	Format             string   `yaml:"format"`
	HotkeyChord        string   `yaml:"hotkey_chord"`
	MaxRecordingSecs   int      `yaml:"max_recording_seconds"`
	MinRecordingMillis int      `yaml:"min_recording_millis"`
	TranscribeTimeout  Duration `yaml:"transcribe_timeout"`
	StopTimeout        Duration `yaml:"stop_timeout"`
	HistoryDir         string   `yaml:"history_dir"`
	AutoPaste          bool     `yaml:"auto_paste"`
	PasteSettle        Duration `yaml:"paste_settle"`
	Device             string   `yaml:"device"`
	Beep               bool     `yaml:"beep"`
	Notify             bool     `yaml:"notify"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Provider:           "gemini",
		Format:             "flac",
		HotkeyChord:        "ctrl+shift+space",
		MaxRecordingSecs:   120,
		MinRecordingMillis: 300,
		TranscribeTimeout:  Duration(15 * time.Second),
		StopTimeout:        Duration(500 * time.Millisecond),
		AutoPaste:          true,
		PasteSettle:        Duration(150 * time.Millisecond),
		Beep:               true,
		Notify:             true,
	}
}

// DefaultPath is <user config dir>/superscribe/config.yaml.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "superscribe", "config.yaml"), nil
}

// DefaultHistoryDir is <user config dir>/superscribe/history.
func DefaultHistoryDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "superscribe", "history"), nil
}

// Load reads path over the defaults. A missing file is not an error.
// Provider API keys from the environment fill in an empty api_key.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %q: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// KeyEnv names the environment variable holding the API key for provider.
func KeyEnv(provider string) string {
	switch provider {
	case "gemini":
		return "GEMINI_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	}
	return ""
}

// ApplyEnv fills APIKey from the provider's environment variable when unset.
func (c *Config) ApplyEnv() {
	if c.APIKey != "" {
		return
	}
	if name := KeyEnv(c.Provider); name != "" {
		c.APIKey = os.Getenv(name)
	}
}

func (c Config) Validate() error {
	switch c.Provider {
	case "gemini", "groq", "openai", "fake":
	default:
		return fmt.Errorf("invalid provider %q (use gemini, groq or openai)", c.Provider)
	}
	if c.Provider != "fake" && strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("no API key for %s: set api_key or %s", c.Provider, KeyEnv(c.Provider))
	}
	switch c.Format {
	case "flac", "wav":
	default:
		return fmt.Errorf("invalid format %q (use flac or wav)", c.Format)
	}
	if _, err := hotkey.ParseChord(c.HotkeyChord); err != nil {
		return fmt.Errorf("invalid hotkey_chord: %w", err)
	}
	if c.MaxRecordingSecs <= 0 {
		return fmt.Errorf("invalid max_recording_seconds: %d (must be > 0)", c.MaxRecordingSecs)
	}
	if c.MinRecordingMillis <= 0 {
		return fmt.Errorf("invalid min_recording_millis: %d (must be > 0)", c.MinRecordingMillis)
	}
	if c.TranscribeTimeout <= 0 {
		return errors.New("transcribe_timeout must be positive")
	}
	if c.StopTimeout <= 0 {
		return errors.New("stop_timeout must be positive")
	}
	if c.PasteSettle < 0 {
		return errors.New("paste_settle must not be negative")
	}
	return nil
}

func (c Config) MaxRecording() time.Duration {
	return time.Duration(c.MaxRecordingSecs) * time.Second
}

func (c Config) MinRecording() time.Duration {
	return time.Duration(c.MinRecordingMillis) * time.Millisecond
}
