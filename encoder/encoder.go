package encoder

import (
	"fmt"
	"strings"
	"time"

	"superscribe/audio"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Encoded is an upload-ready rendition of a session buffer.
type Encoded struct {
	Data       []byte
	Format     string
	MimeType   string
	EncodeTime time.Duration
}

func New(format string, sampleRate int) (Encoder, error) {
	switch format {
	case "flac":
		return NewFlac(sampleRate)
	case "wav":
		return NewWav(sampleRate), nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// Encode runs the whole buffer through the format's encoder in BlockSize
// blocks.
func Encode(format string, buf *audio.Buffer) (Encoded, error) {
	if buf.Channels != Channels {
		return Encoded{}, fmt.Errorf("encode: %d channels, want mono", buf.Channels)
	}
	start := time.Now()
	enc, err := New(format, buf.SampleRate)
	if err != nil {
		return Encoded{}, err
	}
	for i := 0; i < len(buf.Samples); i += BlockSize {
		end := min(i+BlockSize, len(buf.Samples))
		if err := enc.EncodeBlock(buf.Samples[i:end]); err != nil {
			return Encoded{}, err
		}
	}
	if err := enc.Close(); err != nil {
		return Encoded{}, err
	}
	return Encoded{
		Data:       enc.Bytes(),
		Format:     format,
		MimeType:   MimeType(format),
		EncodeTime: time.Since(start),
	}, nil
}

var mimeTypes = map[string]string{
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
}

// MimeType maps a format name or file extension to its upload content type.
// Unknown formats fall back to audio/wav.
func MimeType(format string) string {
	f := strings.ToLower(strings.TrimPrefix(format, "."))
	if m, ok := mimeTypes[f]; ok {
		return m
	}
	return "audio/wav"
}
