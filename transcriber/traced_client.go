package transcriber

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"golang.org/x/net/http2"
)

// NetworkMetrics breaks one request into its connection and transfer phases.
type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

// TracedClient keeps a small pool of HTTP/2 connections to one provider and
// times every request.
type TracedClient struct {
	client *http.Client
}

func newTracedClient() *TracedClient {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	// Only fails if the transport was already configured for h2.
	_ = http2.ConfigureTransport(tr)
	return &TracedClient{client: &http.Client{Transport: tr}}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// timeline collects httptrace marks; metrics turns them into phase durations.
type timeline struct {
	getConn, dnsStart, dnsDone       time.Time
	dialStart, dialDone              time.Time
	tlsStart, tlsDone                time.Time
	gotConn, wroteHeaders, wroteBody time.Time
	firstByte                        time.Time
	reused                           bool
}

func (t *timeline) trace() *httptrace.ClientTrace {
	now := func(dst *time.Time) { *dst = time.Now() }
	return &httptrace.ClientTrace{
		GetConn:  func(string) { now(&t.getConn) },
		DNSStart: func(httptrace.DNSStartInfo) { now(&t.dnsStart) },
		DNSDone:  func(httptrace.DNSDoneInfo) { now(&t.dnsDone) },
		ConnectStart: func(string, string) {
			if t.dialStart.IsZero() {
				now(&t.dialStart)
			}
		},
		ConnectDone:       func(string, string, error) { now(&t.dialDone) },
		TLSHandshakeStart: func() { now(&t.tlsStart) },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { now(&t.tlsDone) },
		GotConn: func(info httptrace.GotConnInfo) {
			now(&t.gotConn)
			t.reused = info.Reused
		},
		WroteHeaders:         func() { now(&t.wroteHeaders) },
		WroteRequest:         func(httptrace.WroteRequestInfo) { now(&t.wroteBody) },
		GotFirstResponseByte: func() { now(&t.firstByte) },
	}
}

// span is zero unless both marks were hit.
func span(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return to.Sub(from)
}

func (t *timeline) metrics(start, end time.Time) *NetworkMetrics {
	return &NetworkMetrics{
		ConnWait:   span(t.getConn, t.gotConn),
		DNS:        span(t.dnsStart, t.dnsDone),
		TCP:        span(t.dialStart, t.dialDone),
		TLS:        span(t.tlsStart, t.tlsDone),
		ReqHeaders: span(t.gotConn, t.wroteHeaders),
		ReqBody:    span(t.wroteHeaders, t.wroteBody),
		TTFB:       span(t.wroteBody, t.firstByte),
		Download:   span(t.firstByte, end),
		Total:      end.Sub(start),
		ConnReused: t.reused,
	}
}

// Do sends req and reads the whole body. Cancelling the request context
// aborts both the round trip and the body read.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	var tl timeline
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), tl.trace()))

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	m := tl.metrics(start, time.Now())
	if resp.TLS != nil {
		m.TLSProtocol = resp.TLS.NegotiatedProtocol
	}
	return &TracedResponse{Body: body, StatusCode: resp.StatusCode, Header: resp.Header, Metrics: m}, nil
}

// Warm issues a HEAD request so a pooled connection is ready before the
// first upload.
func (c *TracedClient) Warm(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
