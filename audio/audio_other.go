//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for _, d := range infos {
		devices = append(devices, DeviceInfo{ID: encodeID(d.ID), Name: d.Name()})
	}
	return devices, nil
}

func encodeID(id malgo.DeviceID) string {
	return hex.EncodeToString(id[:])
}

func decodeID(s string) (malgo.DeviceID, error) {
	var id malgo.DeviceID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid device ID %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = config.Channels
	cfg.SampleRate = config.SampleRate

	c := &malgoCapture{name: "system default"}
	if device != nil {
		id, err := decodeID(device.ID)
		if err != nil {
			return nil, err
		}
		cfg.Capture.DeviceID = id.Pointer()
		c.name = device.Name
	}

	dev, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{Data: c.forward})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, c.name, err)
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	name     string
	callback atomic.Pointer[DataCallback]
}

// forward runs on the miniaudio thread, which reuses data once it returns.
func (c *malgoCapture) forward(_, data []byte, frames uint32) {
	cb := c.callback.Load()
	if cb == nil {
		return
	}
	(*cb)(append([]byte(nil), data...), frames)
}

func (c *malgoCapture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (c *malgoCapture) Stop()  { c.device.Stop() }
func (c *malgoCapture) Close() { c.device.Uninit() }

func (c *malgoCapture) SetCallback(cb DataCallback) { c.callback.Store(&cb) }
func (c *malgoCapture) ClearCallback()              { c.callback.Store(nil) }
func (c *malgoCapture) DeviceName() string          { return c.name }
