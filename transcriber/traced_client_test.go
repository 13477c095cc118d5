package transcriber

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpanNeedsBothMarks(t *testing.T) {
	now := time.Now()
	require.Zero(t, span(time.Time{}, now))
	require.Zero(t, span(now, time.Time{}))
	require.Equal(t, time.Second, span(now, now.Add(time.Second)))
}

func TestTracedClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-test", "1")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("body"))
	}))
	defer srv.Close()

	c := newTracedClient()
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("payload"))
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.Equal(t, "body", string(resp.Body))
	require.Equal(t, "1", resp.Header.Get("x-test"))
	require.False(t, resp.Metrics.ConnReused)
	require.Positive(t, resp.Metrics.Total)
	require.LessOrEqual(t, resp.Metrics.TTFB, resp.Metrics.Total)

	require.NoError(t, c.Warm(srv.URL))
	req, _ = http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err = c.Do(req)
	require.NoError(t, err)
	require.True(t, resp.Metrics.ConnReused)
}
