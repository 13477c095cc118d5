package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Buffer is the PCM captured for one session. It is handed off by value to
// the transcriber and the history store and never mutated afterwards.
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []int16 // interleaved

	// Partial is set when the capture thread did not confirm its final frame
	// before the stop timeout.
	Partial bool
}

func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

func (b *Buffer) Empty() bool { return b == nil || len(b.Samples) == 0 }

// PCM returns the samples as little-endian bytes.
func (b *Buffer) PCM() []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// RMS returns the normalized root-mean-square level in [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func decodePCM(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
