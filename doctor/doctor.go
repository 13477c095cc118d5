package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"superscribe/audio"
	"superscribe/clipboard"
	"superscribe/config"
	"superscribe/encoder"
	"superscribe/history"
	"superscribe/hotkey"
	"superscribe/shutdown"
	"superscribe/transcriber"
)

const steps = 7

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(cfg config.Config) int {
	saveTerminal()
	setupInterruptHandler()

	fmt.Println("superscribe doctor - interactive system diagnostics")
	fmt.Println("===================================================")

	checks := []func(config.Config) bool{
		checkConfig,
		checkHistory,
		checkHotkey,
		checkMicAndTranscription,
		func(config.Config) bool { return checkClipboardCopy() },
		func(config.Config) bool { return checkClipboardPaste() },
		checkRestore,
	}

	allPass := true
	for _, check := range checks {
		if !check(cfg) {
			allPass = false
			break
		}
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		println("\nInterrupted")
		os.Exit(1)
	}()
}

func header(n int, title string) {
	fmt.Println()
	fmt.Printf("[%d/%d] %s\n", n, steps, title)
}

func confirm(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s [y/n]: ", question)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func checkConfig(cfg config.Config) bool {
	header(1, "Configuration")
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		if path, perr := config.DefaultPath(); perr == nil {
			fmt.Printf("  Edit %s or pass flags\n", path)
		}
		return false
	}
	fmt.Printf("  PASS: provider %s, format %s, chord %s\n", cfg.Provider, cfg.Format, cfg.HotkeyChord)
	return true
}

func checkHistory(cfg config.Config) bool {
	header(2, "History store")
	store, err := history.Open(cfg.HistoryDir)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	defer store.Close()
	entries, err := store.List("")
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: %s (%d entries)\n", store.Dir(), len(entries))
	return true
}

func checkHotkey(cfg config.Config) bool {
	chord, _ := hotkey.ParseChord(cfg.HotkeyChord)
	header(3, "Hotkey detection")
	fmt.Printf("Press %s...\n", chord.Label())

	hk, err := hotkey.New(chord)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	mon := hotkey.NewMonitor(hk, chord)
	pressed := make(chan struct{}, 1)
	released := make(chan struct{}, 1)
	err = mon.Start(
		func() { pressed <- struct{}{} },
		func() { released <- struct{}{} },
	)
	if err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		if diag, derr := hotkey.Diagnose(); derr == nil && diag != "" {
			fmt.Println("  " + diag)
		}
		return false
	}
	defer mon.Stop()

	select {
	case <-pressed:
		fmt.Println("  PASS: hotkey detected")
		// Wait for keyup to avoid triggering next step
		select {
		case <-released:
		case <-time.After(5 * time.Second):
		}
		// Reset terminal after hotkey - it may leave terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

func checkMicAndTranscription(cfg config.Config) bool {
	header(4, "Microphone and transcription")

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer actx.Close()

	device, err := audio.FindDevice(actx, cfg.Device)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	captureConfig := audio.CaptureConfig{SampleRate: encoder.SampleRate, Channels: encoder.Channels}
	capture, err := actx.NewCapture(device, captureConfig)
	if err != nil {
		fmt.Printf("  FAIL: cannot open capture device: %v\n", err)
		return false
	}
	defer capture.Close()
	fmt.Printf("Using device: %s\n", capture.DeviceName())

	fmt.Print("Press Enter and speak for 3 seconds...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	buf, err := record(audio.NewRecorder(capture, captureConfig, audio.RecorderOptions{
		StopTimeout: cfg.StopTimeout.Std(),
	}), 3*time.Second)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if buf.Empty() {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	fmt.Printf("  Recorded %.1fs (level %.3f), transcribing with %s...\n",
		buf.Duration().Seconds(), audio.RMS(buf.Samples), cfg.Provider)

	trans, err := transcriber.New(cfg.Provider, transcriber.Options{
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Language: cfg.Language,
		Format:   cfg.Format,
		Timeout:  cfg.TranscribeTimeout.Std(),
	})
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	res := trans.Transcribe(context.Background(), buf)
	if !res.Ok() {
		fmt.Printf("  FAIL: transcription error: %v\n", res.Err())
		return false
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	if confirm("Is this correct?") {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}
	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

func record(rec *audio.Recorder, d time.Duration) (*audio.Buffer, error) {
	stream, err := rec.Start()
	if err != nil {
		return nil, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(d)
	for done := false; !done; {
		select {
		case <-ticker.C:
			fmt.Print(".")
		case <-deadline:
			done = true
		}
	}
	fmt.Println(" done")
	return rec.Stop(stream), nil
}

func checkRestore(cfg config.Config) bool {
	header(7, "Clipboard preservation")

	sentinel := fmt.Sprintf("superscribe-preserve-%d", time.Now().UnixNano())
	if err := clipboard.Copy(sentinel); err != nil {
		fmt.Printf("  FAIL: could not set sentinel: %v\n", err)
		return false
	}

	fmt.Println("  Focus on a text editor window...")
	for i := 3; i > 0; i-- {
		fmt.Printf("  %d...\n", i)
		time.Sleep(1 * time.Second)
	}

	in := clipboard.NewInjector(clipboard.System(), clipboard.SystemFocus(), cfg.PasteSettle.Std())
	if err := in.Inject(context.Background(), "superscribe-doctor-test"); err != nil {
		fmt.Printf("  FAIL: paste failed: %v\n", err)
		return false
	}

	restored, err := clipboard.Read()
	if err != nil {
		fmt.Printf("  FAIL: could not read clipboard after restore: %v\n", err)
		return false
	}
	if restored != sentinel {
		fmt.Printf("  FAIL: clipboard not preserved (got %q, want %q)\n", restored, sentinel)
		return false
	}

	resetTerminal()
	if !confirm("Did the text \"superscribe-doctor-test\" appear?") {
		fmt.Println("  FAIL: paste not confirmed")
		return false
	}
	fmt.Println("  PASS: paste and clipboard preservation verified")
	return true
}
