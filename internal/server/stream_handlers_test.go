package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/account"
	"github.com/pulseboard/pulseboard/internal/relay"
)

func TestStreamRequiresToken(t *testing.T) {
	s, f := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.streams.calls)
}

func TestStreamFraming(t *testing.T) {
	s, f := newTestServer(t)
	f.streams.events = []relay.Event{
		{Type: "log", Data: map[string]any{"id": 12, "level": "ERROR"}},
		{Type: "metric", Data: map[string]any{"id": 3}},
	}

	rec := s.do(authedGet(t, s, "/stream"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"type":"log","data":{"id":12,"level":"ERROR"}}`+"\n\n")
	assert.Contains(t, body, `data: {"type":"metric","data":{"id":3}}`+"\n\n")
	assert.Contains(t, body, ": keep-alive\n\n")
}

func TestStreamWriteFailureClosesQuietly(t *testing.T) {
	s, f := newTestServer(t)
	f.streams.err = errors.New("broken pipe")

	// The stream headers are already on the wire when the relay fails,
	// so the handler just stops writing.
	rec := s.do(authedGet(t, s, "/stream"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.streams.calls)
}

func TestStreamAcceptsCookieToken(t *testing.T) {
	s, f := newTestServer(t)

	token, err := s.tokens.CreateToken(1, "alice", account.RoleMember)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})

	rec := s.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.streams.calls)
}
