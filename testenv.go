package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"superscribe/audio"
	"superscribe/beep"
	"superscribe/clipboard"
	"superscribe/config"
	"superscribe/encoder"
	"superscribe/hotkey"
	"superscribe/log"
	"superscribe/notify"
	"superscribe/pipeline"
)

// runTestMode replays wavPath as the microphone and drives the hotkey from
// stdin: KEYDOWN, KEYUP, WAIT (next session result), WAIT_AUDIO_DONE,
// SLEEP <ms> and QUIT.
func runTestMode(cfg config.Config, wavPath string) int {
	beep.Disable()

	if cfg.AutoPaste {
		if err := clipboard.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: paste init failed: %v\n", err)
		}
	}

	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}
	captureConfig := audio.CaptureConfig{SampleRate: encoder.SampleRate, Channels: encoder.Channels}
	capture, err := fakeCtx.NewCapture(nil, captureConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		return 1
	}
	defer capture.Close()
	fakeCapture := capture.(*audio.FakeCapture)

	trans, err := newTranscriber(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	store, err := openHistory(cfg.HistoryDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	chord, _ := hotkey.ParseChord(cfg.HotkeyChord)
	hk := hotkey.NewFake()
	events := newConsoleEvents(os.Stdout)
	events.completed = make(chan pipeline.Summary, 16)

	p := pipeline.New(pipeline.Deps{
		Monitor: hotkey.NewMonitor(hk, chord),
		Capture: audio.NewRecorder(capture, captureConfig, audio.RecorderOptions{
			MaxDuration: cfg.MaxRecording(),
			StopTimeout: cfg.StopTimeout.Std(),
		}),
		Transcriber: trans,
		Injector:    clipboard.NewInjector(clipboard.System(), clipboard.AssumeFocused, cfg.PasteSettle.Std()),
		Copier:      clipboardCopier{},
		History:     store,
		Notifier:    notify.New(false),
		Events:      events,
	}, pipeline.Options{
		MinDuration: cfg.MinRecording(),
		AutoPaste:   cfg.AutoPaste,
		Format:      cfg.Format,
	})

	// Stdin driver in background; the pipeline owns the foreground.
	go func() {
		defer p.Exit()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmd := strings.TrimSpace(scanner.Text())
			switch cmd {
			case "KEYDOWN":
				hk.SimKeydown()
			case "KEYUP":
				hk.SimKeyup()
			case "WAIT":
				select {
				case <-events.completed:
				case <-p.Done():
					return
				}
			case "WAIT_AUDIO_DONE":
				<-fakeCapture.AudioDone()
			case "QUIT":
				return
			default:
				if ms, ok := strings.CutPrefix(cmd, "SLEEP "); ok {
					if n, err := strconv.Atoi(ms); err == nil {
						time.Sleep(time.Duration(n) * time.Millisecond)
					}
				}
			}
		}
	}()

	if err := p.Run(context.Background()); err != nil {
		log.Errorf("test mode: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
