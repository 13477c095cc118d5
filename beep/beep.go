package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

var disabled atomic.Bool

// Disable silences every cue for the rest of the process.
func Disable() { disabled.Store(true) }

const (
	sampleRate = 44100

	// Start: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

var (
	startSamples []int16
	endSamples   []int16
	errorSamples []int16
	samplesOnce  sync.Once
)

func initSamples() {
	startSamples = tone(sampleRate, startFreq, tickDuration, startVolume, startDecay)
	endSamples = tone(sampleRate, endFreq, tickDuration, endVolume, endDecay)
	errorSamples = doubleTone(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
}

// tone is a mono sine tick with an exponential decay envelope.
func tone(rate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(rate) * duration)
	out := make([]int16, n)
	for i := range out {
		t := float64(i) / float64(rate)
		envelope := math.Exp(-t * decay)
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return out
}

func doubleTone(rate int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	b := tone(rate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(rate)*gapDur))
	out := make([]int16, 0, len(b)*2+len(gap))
	out = append(out, b...)
	out = append(out, gap...)
	out = append(out, b...)
	return out
}

// Init prepares the samples and the output device ahead of the first cue.
func Init() {
	samplesOnce.Do(initSamples)
	initOutput()
}

func PlayStart() { cue(&startSamples) }
func PlayEnd()   { cue(&endSamples) }
func PlayError() { cue(&errorSamples) }

func cue(samples *[]int16) {
	if disabled.Load() {
		return
	}
	samplesOnce.Do(initSamples)
	play(*samples)
}

// Cues plays the session cues through the system output.
type Cues struct{}

func (Cues) Start() { PlayStart() }
func (Cues) End()   { PlayEnd() }
func (Cues) Error() { PlayError() }
