package httpkit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient()
	assert.Zero(t, c.Timeout)
	assert.Equal(t, time.Second, NewClient(WithTimeout(time.Second)).Timeout)

	tr := c.Transport.(*userAgentTransport).base.(*http.Transport)
	assert.Zero(t, tr.ResponseHeaderTimeout)
	assert.Equal(t, DefaultTLSHandshakeTimeout, tr.TLSHandshakeTimeout)
}

func TestNewClient_ContextBoundsRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = NewClient().Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient_UserAgent(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	resp, err := NewClient().Get(srv.URL)
	require.NoError(t, err)
	DrainAndClose(resp.Body, 1024)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom/2")
	resp, err = NewClient(WithUserAgent("other/3")).Do(req)
	require.NoError(t, err)
	DrainAndClose(resp.Body, 1024)

	assert.Equal(t, []string{UserAgent, "custom/2"}, got)
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("broken") }

func TestReadErrorBody(t *testing.T) {
	assert.Equal(t, "", ReadErrorBody(nil, 10))
	assert.Equal(t, "hello", ReadErrorBody(io.NopCloser(strings.NewReader("hello world")), 5))
	assert.Contains(t, ReadErrorBody(io.NopCloser(failReader{}), 5), "broken")
	DrainAndClose(nil, 1)
}
