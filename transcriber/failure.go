package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrNetwork  = errors.New("network error")
	ErrProvider = errors.New("provider error")
)

type Kind string

const (
	KindNetwork  Kind = "NetworkError"
	KindProvider Kind = "ProviderError"
)

// Reason refines a provider failure for the user-facing message.
type Reason string

const (
	ReasonCredential  Reason = "credential"
	ReasonQuota       Reason = "quota"
	ReasonMalformed   Reason = "malformed"
	ReasonTransient   Reason = "transient"
	ReasonBadResponse Reason = "bad_response"
	ReasonUnknown     Reason = "unknown"
)

// Failure is the error half of a Result.
type Failure struct {
	Kind       Kind
	Reason     Reason
	Provider   string
	StatusCode int
	Message    string
}

func (f *Failure) Error() string {
	var b strings.Builder
	if f.Kind == KindNetwork {
		b.WriteString("network error")
	} else {
		fmt.Fprintf(&b, "provider error (%s)", f.Reason)
	}
	if f.Provider != "" {
		b.WriteString(": " + f.Provider)
	}
	if f.StatusCode != 0 {
		fmt.Fprintf(&b, " %d", f.StatusCode)
	}
	if f.Message != "" {
		b.WriteString(": " + f.Message)
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	if f.Kind == KindNetwork {
		return ErrNetwork
	}
	return ErrProvider
}

// Transient reports whether the same request could succeed later. Nothing
// retries automatically; the flag only shapes what the user is told.
func (f *Failure) Transient() bool {
	return f.Kind == KindNetwork || f.Reason == ReasonTransient || f.Reason == ReasonQuota
}

func networkFailure(provider string, err error, timeout time.Duration) *Failure {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = fmt.Sprintf("request timed out after %s", timeout)
	case errors.Is(err, context.Canceled):
		msg = "request canceled"
	}
	return &Failure{Kind: KindNetwork, Reason: ReasonTransient, Provider: provider, Message: msg}
}

// apiError covers both the Google and the OpenAI-style error envelopes.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

const maxMessageBytes = 200

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func classifyStatus(provider string, status int, body []byte) *Failure {
	f := &Failure{Kind: KindProvider, Provider: provider, StatusCode: status, Reason: ReasonUnknown}

	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		f.Message = ae.Error.Message
	} else {
		f.Message = truncate(strings.TrimSpace(string(body)), maxMessageBytes)
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		f.Reason = ReasonCredential
	case status == http.StatusTooManyRequests:
		f.Reason = ReasonQuota
	case status == http.StatusRequestTimeout, status >= 500:
		f.Reason = ReasonTransient
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnsupportedMediaType,
		status == http.StatusUnprocessableEntity:
		f.Reason = ReasonMalformed
	}

	// Gemini reports a bad key as 400 INVALID_ARGUMENT
	for _, d := range ae.Error.Details {
		if d.Reason == "API_KEY_INVALID" {
			f.Reason = ReasonCredential
		}
	}
	switch ae.Error.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		f.Reason = ReasonCredential
	case "RESOURCE_EXHAUSTED":
		f.Reason = ReasonQuota
	}
	return f
}
