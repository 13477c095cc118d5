//go:build integration

package test_test

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"superscribe/clipboard"
	"superscribe/history"
)

var (
	testBinary string
	speechWAV  string
)

func TestMain(m *testing.M) {
	testBinary = os.Getenv("SUPERSCRIBE_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "SUPERSCRIBE_TEST_BIN not set; build the binary and point the variable at it")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "superscribe-it")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	speechWAV = filepath.Join(dir, "tone.wav")
	if err := writeToneWAV(speechWAV, 16000, 2*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate tone.wav: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func writeToneWAV(path string, rate int, d time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n := int(d.Seconds() * float64(rate))
	data := make([]int, n)
	for i := range data {
		data[i] = int(8000 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return err
	}
	return enc.Close()
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

type run struct {
	logDir     string
	historyDir string
	stdout     string
}

// runSuperscribe drives the binary in -test mode with the fake provider so
// no API key or network is needed.
func runSuperscribe(t *testing.T, stdin string, args ...string) run {
	t.Helper()
	r := run{logDir: t.TempDir(), historyDir: t.TempDir()}
	cmdArgs := append([]string{
		"-logpath", r.logDir,
		"-history", r.historyDir,
		"-config", filepath.Join(r.logDir, "none.yaml"),
		"-provider", "fake",
	}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "output: %s", out)
	r.stdout = string(out)
	return r
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

func entries(t *testing.T, dir string) []history.Entry {
	t.Helper()
	store, err := history.Open(dir)
	require.NoError(t, err)
	defer store.Close()
	list, err := store.List("")
	require.NoError(t, err)
	return list
}

func TestSessionRecorded(t *testing.T) {
	r := runSuperscribe(t, cmds("KEYDOWN", "WAIT_AUDIO_DONE", "KEYUP", "WAIT", "QUIT"),
		"-autopaste=false", "-test", speechWAV)

	require.Contains(t, r.stdout, "fake transcript")
	require.Contains(t, readLog(t, r.logDir, "transcribe_log.txt"), "fake transcript")
	diag := readLog(t, r.logDir, "diagnostics_log.txt")
	require.Contains(t, diag, "session_start")
	require.Contains(t, diag, "session_outcome")

	list := entries(t, r.historyDir)
	require.Len(t, list, 1)
	require.Equal(t, "fake transcript", list[0].Transcript)
	require.InDelta(t, 2.0, list[0].Duration.Seconds(), 0.3)
	_, err := os.Stat(filepath.Join(r.historyDir, "audio", list[0].ArtifactKey))
	require.NoError(t, err)
}

func TestShortPressSkipped(t *testing.T) {
	r := runSuperscribe(t, cmds("KEYDOWN", "SLEEP 100", "KEYUP", "WAIT", "QUIT"),
		"-autopaste=false", "-test", speechWAV)
	require.Contains(t, r.stdout, "skipped")
	require.Empty(t, entries(t, r.historyDir))
}

func TestIDsContinueAcrossRuns(t *testing.T) {
	r := runSuperscribe(t, cmds("KEYDOWN", "WAIT_AUDIO_DONE", "KEYUP", "WAIT", "QUIT"),
		"-autopaste=false", "-test", speechWAV)

	cmd := exec.Command(testBinary, "-logpath", r.logDir, "-history", r.historyDir,
		"-config", filepath.Join(r.logDir, "none.yaml"), "-provider", "fake",
		"-autopaste=false", "-test", speechWAV)
	cmd.Stdin = strings.NewReader(cmds("KEYDOWN", "WAIT_AUDIO_DONE", "KEYUP", "WAIT", "QUIT"))
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "output: %s", out)
	require.Contains(t, string(out), "[2] fake transcript")

	list := entries(t, r.historyDir)
	require.Len(t, list, 2)
	require.Equal(t, int64(2), list[0].ID)
}

func TestClipboardRestore(t *testing.T) {
	sentinel := fmt.Sprintf("superscribe-test-sentinel-%d", time.Now().UnixNano())
	if err := clipboard.Copy(sentinel); err != nil {
		t.Skip("clipboard not available")
	}

	_ = runSuperscribe(t, cmds("KEYDOWN", "WAIT_AUDIO_DONE", "KEYUP", "WAIT", "QUIT"), "-test", speechWAV)

	clip, err := clipboard.Read()
	if err != nil {
		t.Skip("clipboard not available")
	}
	require.Equal(t, sentinel, strings.TrimSpace(clip))
}
