package transcriber

import (
	"context"
	"sync"
	"time"

	"superscribe/audio"
)

// FakeTranscriber returns a canned result. Delay simulates a slow provider
// and honors the context.
type FakeTranscriber struct {
	mu      sync.Mutex
	text    string
	failure *Failure
	delay   time.Duration
	calls   int
	last    *audio.Buffer
}

func NewFake(text string) *FakeTranscriber {
	return &FakeTranscriber{text: text}
}

func (f *FakeTranscriber) Name() string { return "fake" }

func (f *FakeTranscriber) SetText(text string) {
	f.mu.Lock()
	f.text, f.failure = text, nil
	f.mu.Unlock()
}

func (f *FakeTranscriber) SetFailure(fail *Failure) {
	f.mu.Lock()
	f.failure = fail
	f.mu.Unlock()
}

func (f *FakeTranscriber) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *FakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeTranscriber) LastBuffer() *audio.Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FakeTranscriber) Transcribe(ctx context.Context, buf *audio.Buffer) Result {
	f.mu.Lock()
	f.calls++
	f.last = buf
	text, fail, delay := f.text, f.failure, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return failed(networkFailure("fake", ctx.Err(), delay))
		}
	}
	if fail != nil {
		return failed(fail)
	}
	return Result{Text: text, Metrics: &NetworkMetrics{Total: delay}}
}
