package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"superscribe/audio"
	"superscribe/beep"
	"superscribe/clipboard"
	"superscribe/config"
	"superscribe/doctor"
	"superscribe/encoder"
	"superscribe/history"
	"superscribe/hotkey"
	"superscribe/log"
	"superscribe/notify"
	"superscribe/pipeline"
	"superscribe/shutdown"
	"superscribe/transcriber"
)

var version = "dev"

type flags struct {
	config    *string
	logPath   *string
	history   *string
	provider  *string
	chord     *string
	device    *string
	format    *string
	lang      *string
	autoPaste *bool
	setup     *bool
	doctor    *bool
	test      *bool
	tui       *bool
	version   *bool
	crash     *bool
}

func parseFlags() flags {
	f := flags{
		config:    flag.String("config", "", "config file (default: <user config dir>/superscribe/config.yaml)"),
		logPath:   flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)"),
		history:   flag.String("history", "", "history directory (overrides history_dir)"),
		provider:  flag.String("provider", "", "transcription provider: gemini, groq or openai"),
		chord:     flag.String("chord", "", "push-to-talk chord, e.g. ctrl+shift+space"),
		device:    flag.String("device", "", "use named microphone device"),
		format:    flag.String("format", "", "upload format: flac or wav"),
		lang:      flag.String("lang", "", "language code for transcription (e.g. en, es). Empty = auto-detect"),
		autoPaste: flag.Bool("autopaste", true, "paste into the focused window after transcription"),
		setup:     flag.Bool("setup", false, "select microphone device interactively"),
		doctor:    flag.Bool("doctor", false, "run system diagnostics and exit"),
		test:      flag.Bool("test", false, "test mode (headless, stdin-driven, needs a WAV file argument)"),
		tui:       flag.Bool("tui", true, "run with terminal UI"),
		version:   flag.Bool("version", false, "print version and exit"),
		crash:     flag.Bool("crash", false, "trigger synthetic panic for testing crash logging"),
	}
	flag.Parse()
	return f
}

// loadConfig reads the config file and layers explicitly set flags on top.
func loadConfig(f flags) (config.Config, error) {
	path := *f.config
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "provider":
			cfg.Provider = *f.provider
			cfg.APIKey = ""
			cfg.ApplyEnv()
		case "chord":
			cfg.HotkeyChord = *f.chord
		case "device":
			cfg.Device = *f.device
		case "format":
			cfg.Format = *f.format
		case "lang":
			cfg.Language = *f.lang
		case "autopaste":
			cfg.AutoPaste = *f.autoPaste
		case "history":
			cfg.HistoryDir = *f.history
		}
	})

	if cfg.HistoryDir == "" {
		dir, err := config.DefaultHistoryDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve history dir: %w", err)
		}
		cfg.HistoryDir = dir
	}
	return cfg, nil
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func run() {
	os.Exit(start())
}

func start() int {
	f := parseFlags()

	if *f.version {
		fmt.Printf("superscribe %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(*f.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if *f.crash {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *f.doctor {
		return doctor.Run(cfg)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart(cfg.Provider, cfg.Format, cfg.HotkeyChord)

	if *f.test {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: superscribe -test <wav-file>")
			return 1
		}
		return runTestMode(cfg, args[0])
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		return 1
	}
	defer actx.Close()
	logDevices(actx)

	if *f.setup && cfg.Device == "" {
		dev, err := audio.SelectDevice(actx)
		switch {
		case errors.Is(err, audio.ErrSelectionAborted):
			return 0
		case err != nil:
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\nFalling back to default device\n", err)
		case dev != nil:
			cfg.Device = dev.Name
		}
	}

	recorder, closeCapture := openRecorder(actx, cfg)
	defer closeCapture()

	chord, _ := hotkey.ParseChord(cfg.HotkeyChord)
	hk, err := hotkey.New(chord)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	trans, err := newTranscriber(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.AutoPaste {
		if err := clipboard.Init(); err != nil {
			log.Warnf("paste init failed: %v", err)
			fmt.Printf("Warning: paste init failed: %v\n", err)
		}
	}

	store, err := openHistory(cfg.HistoryDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	if cfg.Beep {
		go beep.Init()
	} else {
		beep.Disable()
	}

	deps := pipeline.Deps{
		Monitor:     hotkey.NewMonitor(hk, chord),
		Capture:     recorder,
		Transcriber: trans,
		Injector:    clipboard.NewInjector(clipboard.System(), clipboard.SystemFocus(), cfg.PasteSettle.Std()),
		Copier:      clipboardCopier{},
		History:     store,
		Notifier:    notify.New(cfg.Notify),
		Cues:        beep.Cues{},
	}
	opts := pipeline.Options{
		MinDuration: cfg.MinRecording(),
		AutoPaste:   cfg.AutoPaste,
		Format:      cfg.Format,
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if !*f.tui {
		deps.Events = newConsoleEvents(os.Stdout)
		fmt.Printf("superscribe %s: hold %s to dictate, Ctrl+C to quit\n", version, chord.Label())
		return serve(ctx, pipeline.New(deps, opts))
	}

	events := newTUIEvents()
	deps.Events = events
	p := pipeline.New(deps, opts)
	prog := tea.NewProgram(newTUIModel(p, tuiInfo{
		chord:    chord.Label(),
		provider: trans.Name(),
		format:   cfg.Format,
		language: cfg.Language,
		device:   recorder.DeviceName(),
	}), tea.WithAltScreen())
	events.attach(prog)

	errc := make(chan error, 1)
	go func() {
		err := p.Run(ctx)
		errc <- err
		prog.Quit()
	}()

	if _, err := prog.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
	}
	p.Exit()
	if err := <-errc; err != nil {
		return reportFatal(err)
	}
	return 0
}

// serve runs the pipeline in the foreground.
func serve(ctx context.Context, p *pipeline.Pipeline) int {
	if err := p.Run(ctx); err != nil {
		return reportFatal(err)
	}
	return 0
}

func reportFatal(err error) int {
	log.Errorf("fatal: %v", err)
	if errors.Is(err, hotkey.ErrHookInstall) {
		fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
		if diag, derr := hotkey.Diagnose(); derr == nil && diag != "" {
			fmt.Fprintln(os.Stderr, diag)
		}
		return 1
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func logDevices(actx audio.Context) {
	devices, err := actx.Devices()
	if err != nil {
		log.Warnf("device enumeration failed: %v", err)
		return
	}
	for _, d := range devices {
		bt := ""
		if audio.IsBluetooth(d.Name) {
			bt = " (bluetooth)"
		}
		log.Info("input_device: " + d.Name + bt)
	}
}

// openRecorder opens the configured device. Failure is not fatal: the
// recorder then fails each session with DeviceUnavailable.
func openRecorder(actx audio.Context, cfg config.Config) (*audio.Recorder, func()) {
	captureConfig := audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	}
	ropts := audio.RecorderOptions{
		MaxDuration: cfg.MaxRecording(),
		StopTimeout: cfg.StopTimeout.Std(),
	}

	dev, err := audio.FindDevice(actx, cfg.Device)
	if err != nil {
		log.Errorf("capture device lookup: %v", err)
		fmt.Printf("Warning: %v\n", err)
		return audio.NewRecorder(nil, captureConfig, ropts), func() {}
	}
	capture, err := actx.NewCapture(dev, captureConfig)
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		fmt.Printf("Warning: capture device unavailable: %v\n", err)
		return audio.NewRecorder(nil, captureConfig, ropts), func() {}
	}
	log.Info("recording_device: " + capture.DeviceName())
	return audio.NewRecorder(capture, captureConfig, ropts), capture.Close
}

func newTranscriber(cfg config.Config) (transcriber.Transcriber, error) {
	t, err := transcriber.New(cfg.Provider, transcriber.Options{
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Language: cfg.Language,
		Format:   cfg.Format,
		Timeout:  cfg.TranscribeTimeout.Std(),
	})
	if err != nil {
		return nil, err
	}
	if w, ok := t.(interface{ Warm() }); ok {
		go w.Warm()
	}
	return t, nil
}

func openHistory(dir string) (*history.Store, error) {
	store, err := history.Open(dir)
	if err != nil {
		return nil, err
	}
	if n, err := store.PruneOrphans(); err != nil {
		log.Warnf("history: prune: %v", err)
	} else if n > 0 {
		log.Infof("history: removed %d orphaned artifacts", n)
	}
	return store, nil
}

type clipboardCopier struct{}

func (clipboardCopier) Copy(text string) error { return clipboard.Copy(text) }
