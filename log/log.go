// Package log writes the diagnostics and transcript logs. Every helper is a
// no-op until Init succeeds, so packages can log unconditionally.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	envLogPath     = "SUPERSCRIBE_LOG_PATH"
	diagnosticsLog = "diagnostics_log.txt"
	transcriptLog  = "transcribe_log.txt"
	stampLayout    = "2006-01-02 15:04:05"
)

type sink struct {
	logger zerolog.Logger

	mu          sync.Mutex
	diag        *os.File
	transcripts *os.File
}

var (
	dir    string
	active atomic.Pointer[sink]
)

// Metrics describes one transcription round trip.
type Metrics struct {
	Provider   string
	Format     string
	ConnReused bool
	TLSProto   string
	Audio      time.Duration
	RawBytes   int
	Encoded    int
	EncodeTime time.Duration
	DNS        time.Duration
	TLS        time.Duration
	TTFB       time.Duration
	Total      time.Duration
}

// Outcome is the terminal result of one capture session.
type Outcome struct {
	SessionID  int64
	State      string
	ErrorKind  string
	Message    string
	AudioS     float64
	Transcript int // characters
}

// ResolveDir picks the log directory: flag, then $SUPERSCRIBE_LOG_PATH, then
// the platform default.
func ResolveDir(flagPath string) (string, error) {
	p := flagPath
	if p == "" {
		p = os.Getenv(envLogPath)
	}
	if p == "" {
		return defaultDir()
	}
	return filepath.Abs(p)
}

func SetDir(d string) { dir = d }
func Dir() string     { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	return nil
}

func openAppend(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func Init() error {
	if err := EnsureDir(); err != nil {
		return err
	}
	diag, err := openAppend(diagnosticsLog)
	if err != nil {
		return err
	}
	transcripts, err := openAppend(transcriptLog)
	if err != nil {
		diag.Close()
		return err
	}

	w := zerolog.ConsoleWriter{Out: diag, TimeFormat: stampLayout, NoColor: true}
	s := &sink{
		logger:      zerolog.New(w).With().Timestamp().Int("pid", os.Getpid()).Logger(),
		diag:        diag,
		transcripts: transcripts,
	}
	if old := active.Swap(s); old != nil {
		old.close()
	}
	return nil
}

func (s *sink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range []*os.File{s.diag, s.transcripts} {
		if f != nil {
			f.Close()
		}
	}
	s.diag, s.transcripts = nil, nil
}

func Close() {
	if s := active.Swap(nil); s != nil {
		s.close()
	}
}

// event returns nil before Init; zerolog treats a nil event as disabled.
func event(level zerolog.Level) *zerolog.Event {
	s := active.Load()
	if s == nil {
		return nil
	}
	return s.logger.WithLevel(level)
}

func Info(msg string)                   { event(zerolog.InfoLevel).Msg(msg) }
func Infof(format string, args ...any)  { event(zerolog.InfoLevel).Msgf(format, args...) }
func Warnf(format string, args ...any)  { event(zerolog.WarnLevel).Msgf(format, args...) }
func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func TranscriptionMetrics(m Metrics) {
	conn := "new"
	if m.ConnReused {
		conn = "reused"
	}
	ev := event(zerolog.InfoLevel).
		Str("provider", m.Provider).
		Str("format", m.Format).
		Str("conn", conn)
	if m.TLSProto != "" {
		ev = ev.Str("tls_proto", m.TLSProto)
	}
	ev.Float64("audio_s", m.Audio.Seconds()).
		Float64("raw_kb", float64(m.RawBytes)/1024).
		Float64("encoded_kb", float64(m.Encoded)/1024).
		Float64("encode_ms", ms(m.EncodeTime)).
		Float64("dns_ms", ms(m.DNS)).
		Float64("tls_ms", ms(m.TLS)).
		Float64("ttfb_ms", ms(m.TTFB)).
		Float64("total_ms", ms(m.Total)).
		Msg("transcription")
}

// TranscriptionText appends one tab-separated line to transcribe_log.txt.
func TranscriptionText(text string) {
	s := active.Load()
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcripts != nil {
		fmt.Fprintf(s.transcripts, "%s\t[%d]\t%s\n", time.Now().Format(stampLayout), os.Getpid(), text)
	}
}

func CaptureStats(sessionID int64, samples, sampleRate int, partial bool) {
	var audioS float64
	if sampleRate > 0 {
		audioS = float64(samples) / float64(sampleRate)
	}
	event(zerolog.InfoLevel).
		Int64("session", sessionID).
		Int("samples", samples).
		Float64("audio_s", audioS).
		Bool("partial", partial).
		Msg("capture_stopped")
}

// PartialCapture records that the capture thread did not confirm its last
// frame within the stop timeout.
func PartialCapture(captured int, waited time.Duration) {
	event(zerolog.WarnLevel).Int("samples", captured).Dur("waited", waited).Msg("partial_capture")
}

func SessionOutcome(o Outcome) {
	level := zerolog.InfoLevel
	if o.ErrorKind != "" {
		level = zerolog.WarnLevel
	}
	ev := event(level)
	if o.ErrorKind != "" {
		ev = ev.Str("error_kind", o.ErrorKind).Str("error", o.Message)
	}
	ev.Int64("session", o.SessionID).
		Str("state", o.State).
		Float64("audio_s", o.AudioS).
		Int("chars", o.Transcript).
		Msg("session_outcome")
}

func SessionStart(provider, format, chord string) {
	event(zerolog.InfoLevel).Str("provider", provider).Str("format", format).Str("chord", chord).Msg("session_start")
}

func SessionEnd(count int) {
	event(zerolog.InfoLevel).Int("count", count).Msg("session_end")
}
