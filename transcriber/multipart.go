package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"superscribe/encoder"
)

// postAudioForm sends the OpenAI-style multipart transcription request.
func (b *baseTranscriber) postAudioForm(ctx context.Context, enc encoder.Encoded, responseFormat string) (*TracedResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+enc.Format)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(enc.Data); err != nil {
		return nil, err
	}

	writer.WriteField("model", b.model)
	writer.WriteField("response_format", responseFormat)
	if b.lang != "" {
		writer.WriteField("language", b.lang)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return b.client.Do(req)
}

type textResponse struct {
	Text string `json:"text"`
}

func parseText(provider string) parseFunc {
	return func(body []byte) (string, error) {
		var r textResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("%s response parse error: %w", provider, err)
		}
		return r.Text, nil
	}
}
