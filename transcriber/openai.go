package transcriber

import (
	"context"

	"superscribe/audio"
	"superscribe/encoder"
)

const openAIURL = "https://api.openai.com/v1/audio/transcriptions"

type OpenAI struct {
	baseTranscriber
}

func NewOpenAI(opts Options) *OpenAI {
	return &OpenAI{baseTranscriber: newBase(opts, openAIURL, "gpt-4o-transcribe")}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, buf *audio.Buffer) Result {
	send := func(ctx context.Context, enc encoder.Encoded) (*TracedResponse, error) {
		return o.postAudioForm(ctx, enc, "json")
	}
	return o.run(ctx, o.Name(), buf, send, parseText(o.Name()))
}
