//go:build linux

package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// Pulse hands us quiet laptop mics; the software gain brings speech into a
// range the providers handle well.
const (
	softwareGain = 8
	sourceVolume = 3 // times VolumeNorm
	latencySecs  = 0.05
)

var errStarted = errors.New("pulse: capture already started")

type pulseBackend struct {
	pc *pulse.Client
}

func NewContext() (Context, error) {
	pc, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("%w: pulse: %v", ErrDeviceUnavailable, err)
	}
	return &pulseBackend{pc: pc}, nil
}

func (b *pulseBackend) Devices() ([]DeviceInfo, error) {
	all, err := b.pc.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse: list sources: %w", err)
	}
	mics := make([]DeviceInfo, 0, len(all))
	for _, src := range all {
		if !isMonitor(src.Name()) {
			mics = append(mics, DeviceInfo{ID: src.ID(), Name: src.Name()})
		}
	}
	return mics, nil
}

// Monitor sources loop back an output sink; they are never microphones.
func isMonitor(name string) bool {
	return strings.HasSuffix(name, ".monitor")
}

// amplify applies gain to buf and packs it as little-endian PCM, clamping
// instead of wrapping.
func amplify(buf []int16, gain int32) []byte {
	out := make([]byte, 2*len(buf))
	for i, v := range buf {
		g := min(max(int32(v)*gain, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(g)))
	}
	return out
}

func (b *pulseBackend) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if device != nil {
		if _, err := b.pc.SourceByID(device.ID); err != nil {
			return nil, fmt.Errorf("%w: source %q: %v", ErrDeviceUnavailable, device.Name, err)
		}
	}
	return &pulseRecorder{pc: b.pc, dev: device, rate: int(config.SampleRate)}, nil
}

func (b *pulseBackend) Close() { b.pc.Close() }

type pulseRecorder struct {
	pc   *pulse.Client
	dev  *DeviceInfo
	rate int
	sink atomic.Pointer[DataCallback]

	mu     sync.Mutex
	active *pulse.RecordStream
}

func (r *pulseRecorder) options() ([]pulse.RecordOption, error) {
	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(r.rate),
		pulse.RecordLatency(latencySecs),
		pulse.RecordRawOption(func(cs *proto.CreateRecordStream) {
			cs.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm) * sourceVolume}
		}),
	}
	if r.dev == nil {
		return opts, nil
	}
	// the source may have been unplugged since NewCapture
	src, err := r.pc.SourceByID(r.dev.ID)
	if err != nil || src == nil {
		return nil, fmt.Errorf("%w: source %q disappeared", ErrDeviceUnavailable, r.dev.Name)
	}
	return append(opts, pulse.RecordSource(src)), nil
}

func (r *pulseRecorder) write(buf []int16) (int, error) {
	if cb := r.sink.Load(); cb != nil && len(buf) > 0 {
		(*cb)(amplify(buf, softwareGain), uint32(len(buf)))
	}
	return len(buf), nil
}

func (r *pulseRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return errStarted
	}
	opts, err := r.options()
	if err != nil {
		return err
	}
	s, err := r.pc.NewRecord(pulse.Int16Writer(r.write), opts...)
	if err == nil {
		err = s.Error()
		if err != nil {
			s.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("%w: pulse record: %v", ErrDeviceUnavailable, err)
	}
	s.Start()
	r.active = s
	return nil
}

func (r *pulseRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return
	}
	r.active.Stop()
	r.active.Close()
	r.active = nil
}

func (r *pulseRecorder) Close() { r.Stop() }

func (r *pulseRecorder) SetCallback(cb DataCallback) { r.sink.Store(&cb) }
func (r *pulseRecorder) ClearCallback()              { r.sink.Store(nil) }

func (r *pulseRecorder) DeviceName() string {
	if r.dev == nil {
		return "system default"
	}
	return r.dev.Name
}
