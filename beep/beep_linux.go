//go:build linux

package beep

import (
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"superscribe/log"
)

// the 200ms tail lets pulse fill its buffer before the stream drains
const tickDuration = 0.2

var (
	queue     = make(chan []int16, 4)
	queueOnce sync.Once
)

// initOutput starts the player goroutine. Cues are played one at a time on a
// single pulse connection.
func initOutput() {
	queueOnce.Do(func() { go player() })
}

func play(mono []int16) {
	if len(mono) == 0 {
		return
	}
	initOutput()
	select {
	case queue <- mono:
	default:
		// a backlog of cues is worse than a missing one
	}
}

func player() {
	var c *pulse.Client
	for mono := range queue {
		if c == nil {
			var err error
			if c, err = pulse.NewClient(); err != nil {
				log.Warnf("beep: pulse client: %v", err)
				continue
			}
		}
		if err := playOn(c, interleave(mono)); err != nil {
			log.Warnf("beep: pulse playback: %v", err)
			c.Close()
			c = nil
		}
	}
}

// interleave duplicates mono samples into left/right pairs.
func interleave(mono []int16) []int16 {
	out := make([]int16, 0, len(mono)*2)
	for _, s := range mono {
		out = append(out, s, s)
	}
	return out
}

func playOn(c *pulse.Client, samples []int16) error {
	rest := samples
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if len(rest) == 0 {
			return 0, pulse.EndOfData
		}
		n := copy(buf, rest)
		rest = rest[n:]
		return n, nil
	})
	norm := uint32(proto.VolumeNorm)
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{norm, norm}
		}),
	)
	if err != nil {
		return err
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
	return stream.Error()
}
