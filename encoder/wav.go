package encoder

import (
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavEncoder renders PCM16 mono into an in-memory RIFF/WAVE file.
type WavEncoder struct {
	out         memFile
	enc         *wav.Encoder
	sampleRate  int
	totalFrames uint64
	closed      bool
}

func NewWav(sampleRate int) *WavEncoder {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	e := &WavEncoder{sampleRate: sampleRate}
	e.enc = wav.NewEncoder(&e.out, sampleRate, BitsPerSample, Channels, 1)
	return e
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	if err := e.enc.Write(e.intBuffer(block)); err != nil {
		return err
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) intBuffer(block []int16) *goaudio.IntBuffer {
	data := make([]int, len(block))
	for i, s := range block {
		data[i] = int(s)
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: e.sampleRate},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
}

func (e *WavEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.totalFrames == 0 {
		// go-audio writes the header lazily on the first Write
		if err := e.enc.Write(e.intBuffer(nil)); err != nil {
			return err
		}
	}
	return e.enc.Close()
}

func (e *WavEncoder) Bytes() []byte       { return e.out.buf }
func (e *WavEncoder) TotalFrames() uint64 { return e.totalFrames }

// memFile is the io.WriteSeeker go-audio needs to patch chunk sizes.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		m.buf = append(m.buf, make([]byte, need-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
