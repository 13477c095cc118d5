package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

const fakeFrameSize = 1024

// FakeContext replays PCM into the capture callback. It backs the -test
// mode and the package tests.
type FakeContext struct {
	pcm        []byte
	sampleRate uint32
	realtime   bool
	failStart  error
}

// NewFakeContext loads 16-bit mono PCM from a WAV file. With realtime set the
// audio is fed at wall-clock rate, otherwise all of it is delivered on Start.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", wavPath)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wavPath, err)
	}
	if dec.BitDepth != 16 || dec.NumChans != 1 {
		return nil, fmt.Errorf("%s: need 16-bit mono, got %d-bit %d channel", wavPath, dec.BitDepth, dec.NumChans)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return &FakeContext{pcm: pcm, sampleRate: dec.SampleRate, realtime: realtime}, nil
}

// NewFakeContextPCM feeds the given samples, all at once on Start.
func NewFakeContextPCM(samples []int16, sampleRate uint32) *FakeContext {
	pcm := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return &FakeContext{pcm: pcm, sampleRate: sampleRate}
}

// FailStart makes every capture created afterwards fail in Start.
func (f *FakeContext) FailStart(err error) { f.failStart = err }

func (f *FakeContext) SampleRate() uint32 { return f.sampleRate }

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	rate := cfg.SampleRate
	if rate == 0 {
		rate = f.sampleRate
	}
	return &FakeCapture{
		pcm:        f.pcm,
		sampleRate: rate,
		realtime:   f.realtime,
		failStart:  f.failStart,
		audioDone:  make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm        []byte
	sampleRate uint32
	realtime   bool
	failStart  error

	mu        sync.Mutex
	cb        DataCallback
	audioDone chan struct{}
	stopCh    chan struct{}
	feedDone  chan struct{}
}

// AudioDone closes once the whole clip has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos int) int {
	end := min(pos+fakeFrameSize*2, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/2))
	return end
}

func (f *FakeCapture) Start() error {
	if f.failStart != nil {
		return f.failStart
	}
	f.mu.Lock()
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	done := f.audioDone
	f.mu.Unlock()

	stopCh, feedDone := f.stopCh, f.feedDone
	silence := make([]byte, fakeFrameSize*2)

	if !f.realtime {
		if cb := f.callback(); cb != nil {
			for pos := 0; pos < len(f.pcm); {
				pos = f.feedChunk(cb, pos)
			}
		}
		close(done)

		// a live device keeps delivering frames until stopped
		go func() {
			defer close(feedDone)
			for {
				select {
				case <-stopCh:
					return
				case <-time.After(time.Millisecond):
				}
				if cb := f.callback(); cb != nil {
					cb(silence[:2], 1)
				}
			}
		}()
		return nil
	}

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.sampleRate)
	go func() {
		defer close(feedDone)
		pos := 0
		finished := false
		for {
			if cb := f.callback(); cb != nil {
				if pos < len(f.pcm) {
					pos = f.feedChunk(cb, pos)
				} else {
					if !finished {
						finished = true
						close(done)
					}
					cb(silence, fakeFrameSize)
				}
			}
			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-feedDone

	f.mu.Lock()
	select {
	case <-f.audioDone:
		f.audioDone = make(chan struct{}) // replay on the next Start
	default:
	}
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {}
