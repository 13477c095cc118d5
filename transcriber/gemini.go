package transcriber

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"superscribe/audio"
	"superscribe/encoder"
)

const (
	geminiURL    = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel  = "gemini-2.0-flash"
	geminiPrompt = "Generate a transcript of the speech."
)

// Gemini sends the clip inline to generateContent with a transcription
// prompt.
type Gemini struct {
	baseTranscriber
}

func NewGemini(opts Options) *Gemini {
	return &Gemini{baseTranscriber: newBase(opts, geminiURL, geminiModel)}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *Gemini) prompt() string {
	if g.lang == "" {
		return geminiPrompt
	}
	return geminiPrompt + " The speech is in language " + g.lang + "; transcribe it verbatim without translating."
}

func (g *Gemini) Transcribe(ctx context.Context, buf *audio.Buffer) Result {
	return g.run(ctx, g.Name(), buf, g.send, parseGemini)
}

func (g *Gemini) send(ctx context.Context, enc encoder.Encoded) (*TracedResponse, error) {
	var reqBody geminiRequest
	reqBody.Contents = make([]struct {
		Parts []geminiPart `json:"parts"`
	}, 1)
	reqBody.Contents[0].Parts = []geminiPart{
		{Text: g.prompt()},
		{InlineData: &geminiInlineData{MimeType: enc.MimeType, Data: base64.StdEncoding.EncodeToString(enc.Data)}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(g.apiURL, "/") + "/models/" + g.model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	return g.client.Do(req)
}

func parseGemini(body []byte) (string, error) {
	var r geminiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("gemini response parse error: %w", err)
	}
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("request blocked: %s", r.PromptFeedback.BlockReason)
		}
		return "", errors.New("response has no candidates")
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
