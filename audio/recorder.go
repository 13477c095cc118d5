package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"superscribe/log"
)

const (
	DefaultMaxDuration = 120 * time.Second
	DefaultStopTimeout = 500 * time.Millisecond
)

// Stream is the handle for one in-progress recording.
type Stream interface {
	// AutoStopped closes when the buffer reaches the maximum duration.
	// Samples arriving after that are dropped.
	AutoStopped() <-chan struct{}
	// Level is the RMS of the most recent callback, for the UI meter.
	Level() float64
	Elapsed() time.Duration
}

type RecorderOptions struct {
	MaxDuration time.Duration
	StopTimeout time.Duration
}

// Recorder claims a capture device for one stream at a time.
type Recorder struct {
	dev         CaptureDevice
	cfg         CaptureConfig
	maxDuration time.Duration
	stopTimeout time.Duration

	mu     sync.Mutex
	active *stream
}

// NewRecorder wraps dev. A nil dev yields a recorder whose Start always
// fails with ErrDeviceUnavailable.
func NewRecorder(dev CaptureDevice, cfg CaptureConfig, opts RecorderOptions) *Recorder {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Recorder{
		dev:         dev,
		cfg:         cfg,
		maxDuration: opts.MaxDuration,
		stopTimeout: opts.StopTimeout,
	}
}

func (r *Recorder) DeviceName() string {
	if r.dev == nil {
		return "none"
	}
	return r.dev.DeviceName()
}

// Start claims the device and begins buffering.
func (r *Recorder) Start() (Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev == nil {
		return nil, fmt.Errorf("%w: no capture device", ErrDeviceUnavailable)
	}
	if r.active != nil {
		return nil, fmt.Errorf("%w: device already recording", ErrDeviceUnavailable)
	}

	maxFrames := int(r.maxDuration.Seconds() * float64(r.cfg.SampleRate))
	s := &stream{
		sampleRate: int(r.cfg.SampleRate),
		channels:   int(r.cfg.Channels),
		maxSamples: maxFrames * int(r.cfg.Channels),
		started:    time.Now(),
		flushed:    make(chan struct{}),
		autoStop:   make(chan struct{}),
	}

	r.dev.SetCallback(s.onData)
	if err := r.dev.Start(); err != nil {
		r.dev.ClearCallback()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	r.active = s
	return s, nil
}

// Stop asks the capture thread to deliver its last frame and waits for it up
// to the stop timeout. It never fails: on timeout the samples captured so far
// are returned with Partial set.
func (r *Recorder) Stop(h Stream) *Buffer {
	s, _ := h.(*stream)

	r.mu.Lock()
	if s == nil || r.active != s {
		r.mu.Unlock()
		return &Buffer{SampleRate: int(r.cfg.SampleRate), Channels: int(r.cfg.Channels)}
	}
	r.mu.Unlock()

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	partial := false
	select {
	case <-s.flushed:
	case <-time.After(r.stopTimeout):
		partial = true
	}

	r.dev.Stop()
	r.dev.ClearCallback()

	s.mu.Lock()
	s.closed = true
	samples := s.samples
	s.samples = nil
	s.mu.Unlock()

	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()

	if partial {
		log.PartialCapture(len(samples), r.stopTimeout)
	}
	return &Buffer{
		SampleRate: s.sampleRate,
		Channels:   s.channels,
		Samples:    samples,
		Partial:    partial,
	}
}

type stream struct {
	sampleRate int
	channels   int
	maxSamples int
	started    time.Time

	mu       sync.Mutex
	samples  []int16
	stopping bool
	closed   bool

	flushed   chan struct{}
	flushOnce sync.Once
	autoStop  chan struct{}
	autoOnce  sync.Once
	level     atomic.Uint64
}

func (s *stream) onData(data []byte, _ uint32) {
	pcm := decodePCM(data)
	s.level.Store(math.Float64bits(RMS(pcm)))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if room := s.maxSamples - len(s.samples); room > 0 {
		if len(pcm) > room {
			pcm = pcm[:room]
		}
		s.samples = append(s.samples, pcm...)
	}
	full := len(s.samples) >= s.maxSamples
	stopping := s.stopping
	s.mu.Unlock()

	if full {
		s.autoOnce.Do(func() { close(s.autoStop) })
	}
	if stopping {
		s.flushOnce.Do(func() { close(s.flushed) })
	}
}

func (s *stream) AutoStopped() <-chan struct{} { return s.autoStop }

func (s *stream) Level() float64 { return math.Float64frombits(s.level.Load()) }

func (s *stream) Elapsed() time.Duration { return time.Since(s.started) }
