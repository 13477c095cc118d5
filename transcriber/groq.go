package transcriber

import (
	"context"

	"superscribe/audio"
	"superscribe/encoder"
)

const groqURL = "https://api.groq.com/openai/v1/audio/transcriptions"

type Groq struct {
	baseTranscriber
}

func NewGroq(opts Options) *Groq {
	return &Groq{baseTranscriber: newBase(opts, groqURL, "whisper-large-v3-turbo")}
}

func (g *Groq) Name() string { return "groq" }

func (g *Groq) Transcribe(ctx context.Context, buf *audio.Buffer) Result {
	send := func(ctx context.Context, enc encoder.Encoded) (*TracedResponse, error) {
		return g.postAudioForm(ctx, enc, "json")
	}
	return g.run(ctx, g.Name(), buf, send, parseText(g.Name()))
}
