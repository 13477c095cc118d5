package encoder

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FlacEncoder builds a mono 16-bit FLAC stream in memory. Frames are handed
// over verbatim and the library picks a cheaper predictor where it can.
type FlacEncoder struct {
	out    bytes.Buffer
	enc    *flac.Encoder
	rate   uint32
	frames uint64
}

func NewFlac(sampleRate int) (*FlacEncoder, error) {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	e := &FlacEncoder{rate: uint32(sampleRate)}
	enc, err := flac.NewEncoder(&e.out, &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  BlockSize,
		SampleRate:    e.rate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	})
	if err != nil {
		return nil, fmt.Errorf("flac: new encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

func (e *FlacEncoder) monoFrame(block []int16) *frame.Frame {
	samples := make([]int32, len(block))
	for i, s := range block {
		samples[i] = int32(s)
	}
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    e.rate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(block),
		}},
	}
}

// EncodeBlock writes one frame. Blocks longer than BlockSize are rejected.
func (e *FlacEncoder) EncodeBlock(block []int16) error {
	switch {
	case len(block) == 0:
		return nil
	case len(block) > BlockSize:
		return fmt.Errorf("flac: block of %d samples exceeds %d", len(block), BlockSize)
	}
	if err := e.enc.WriteFrame(e.monoFrame(block)); err != nil {
		return fmt.Errorf("flac: write frame: %w", err)
	}
	e.frames += uint64(len(block))
	return nil
}

func (e *FlacEncoder) Close() error        { return e.enc.Close() }
func (e *FlacEncoder) Bytes() []byte       { return e.out.Bytes() }
func (e *FlacEncoder) TotalFrames() uint64 { return e.frames }
