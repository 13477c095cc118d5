package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"superscribe/audio"
	"superscribe/encoder"
)

const DefaultTimeout = 15 * time.Second

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// Result holds either a transcript or a Failure, never both.
type Result struct {
	Text    string
	Failure *Failure

	Metrics      *NetworkMetrics
	RateLimit    string
	Format       string
	EncodedBytes int
	EncodeTime   time.Duration
}

func (r Result) Ok() bool { return r.Failure == nil }

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

func failed(f *Failure) Result { return Result{Failure: f} }

// Transcriber turns one session's audio into text with a single request.
// Implementations never retry.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, buf *audio.Buffer) Result
}

type Options struct {
	APIKey   string
	Model    string
	Language string
	Format   string // flac or wav
	Timeout  time.Duration
	BaseURL  string // override for tests and proxies
}

// New builds the named provider.
func New(provider string, opts Options) (Transcriber, error) {
	switch provider {
	case "gemini", "":
		return NewGemini(opts), nil
	case "groq":
		return NewGroq(opts), nil
	case "openai":
		return NewOpenAI(opts), nil
	case "fake":
		return NewFake("fake transcript"), nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

type baseTranscriber struct {
	client  *TracedClient
	apiURL  string
	apiKey  string
	model   string
	lang    string
	format  string
	timeout time.Duration
}

func newBase(opts Options, defaultURL, defaultModel string) baseTranscriber {
	b := baseTranscriber{
		client:  newTracedClient(),
		apiURL:  defaultURL,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		lang:    opts.Language,
		format:  opts.Format,
		timeout: opts.Timeout,
	}
	if opts.BaseURL != "" {
		b.apiURL = opts.BaseURL
	}
	if b.model == "" {
		b.model = defaultModel
	}
	if b.format == "" {
		b.format = "flac"
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	return b
}

func (b *baseTranscriber) Language() string { return b.lang }
func (b *baseTranscriber) Model() string    { return b.model }

// Warm opens a connection to the provider so the first upload skips the TLS
// handshake.
func (b *baseTranscriber) Warm() {
	_ = b.client.Warm(b.apiURL)
}

type sendFunc func(ctx context.Context, enc encoder.Encoded) (*TracedResponse, error)
type parseFunc func(body []byte) (string, error)

// run encodes buf, sends it under the client-side timeout and classifies the
// outcome.
func (b *baseTranscriber) run(ctx context.Context, provider string, buf *audio.Buffer, send sendFunc, parse parseFunc) Result {
	if buf.Empty() {
		return failed(&Failure{Kind: KindProvider, Reason: ReasonMalformed, Provider: provider, Message: "no audio captured"})
	}
	enc, err := encoder.Encode(b.format, buf)
	if err != nil {
		return failed(&Failure{Kind: KindProvider, Reason: ReasonMalformed, Provider: provider, Message: "encode audio: " + err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res := Result{Format: enc.Format, EncodedBytes: len(enc.Data), EncodeTime: enc.EncodeTime}
	resp, err := send(ctx, enc)
	if err != nil {
		res.Failure = networkFailure(provider, err, b.timeout)
		return res
	}
	res.Metrics = resp.Metrics
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Failure = classifyStatus(provider, resp.StatusCode, resp.Body)
		return res
	}
	text, err := parse(resp.Body)
	if err != nil {
		res.Failure = &Failure{Kind: KindProvider, Reason: ReasonBadResponse, Provider: provider, StatusCode: resp.StatusCode, Message: err.Error()}
		return res
	}
	res.Text = strings.TrimSpace(text)
	res.RateLimit = rateLimit(resp.Header)
	return res
}

func rateLimit(h http.Header) string {
	remaining := firstNonEmpty(h, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(h, "x-ratelimit-limit-requests")
	if remaining == "?" && limit == "?" {
		return ""
	}
	return remaining + "/" + limit
}
