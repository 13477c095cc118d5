//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"superscribe/log"
)

const tickDuration = 0.04

var (
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	outputOnce sync.Once

	// read from the device callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initOutput() {
	outputOnce.Do(func() {
		var err error
		malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			log.Warnf("beep: init context: %v", err)
			return
		}
		if err := initDevice(); err != nil {
			log.Warnf("beep: init device: %v", err)
			malgoCtx.Uninit()
			malgoCtx = nil
		}
	})
}

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func dataCallback(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	clear(out[:want])

	samples := playing.Load()
	if samples == nil {
		return
	}
	pos := playPos.Load()
	remaining := uint32(len(*samples)) - pos
	if remaining == 0 {
		playing.Store(nil)
		return
	}
	n := min(want, remaining)
	copy(out[:n], (*samples)[pos:pos+n])
	playPos.Store(pos + n)
}

func play(mono []int16) {
	initOutput()
	if malgoCtx == nil || len(mono) == 0 {
		return
	}
	pcm := make([]byte, len(mono)*2)
	for i, s := range mono {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	playMu.Lock()
	defer playMu.Unlock()

	device.Stop()
	playPos.Store(0)
	playing.Store(&pcm)

	if err := device.Start(); err != nil {
		// the device goes stale across sleep/wake; recreate once
		device.Uninit()
		if err := initDevice(); err != nil {
			playing.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
		}
	}
}
