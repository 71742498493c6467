package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaminalder/codex-greed/internal/app"
	"github.com/jaminalder/codex-greed/pkg/logger"
)

// ones makes every die a 1: six ones score 1300.
type ones struct{}

func (ones) Intn(int) int { return 0 }

func newTestServer(t *testing.T) (*app.Service, http.Handler) {
	t.Helper()
	log := logger.Discard()
	s := app.NewService(app.WithSource(ones{}), app.WithLogger(log))
	return s, NewServer(s, log)
}

func postRoll(t *testing.T, h http.Handler, path, nick string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	if nick != "" {
		form.Set("nick", nick)
	}
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIndexPage(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `action="/roll"`)
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestPrivateRollNeverRejected(t *testing.T) {
	_, h := newTestServer(t)
	for i := 0; i < 2; i++ {
		rr := postRoll(t, h, "/roll", "alice")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "you rolled (1 1 1 1 1 1) for 1300 points (1 1 1 1 1 1 =&gt; 1300)")
	}
}

func TestChannelRollPairing(t *testing.T) {
	svc, h := newTestServer(t)
	path := "/channels/" + url.PathEscape("#dice") + "/roll"

	rr := postRoll(t, h, path, "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	rec, ok, err := svc.Pending(context.Background(), "#dice")
	require.NoError(t, err)
	require.True(t, ok, "pending play should be stored under the unescaped channel name")
	assert.Equal(t, "alice", rec.Player)

	rr = postRoll(t, h, path, "alice")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "Oh you, alice! You can&#39;t go twice in a row!")

	rr = postRoll(t, h, path, "bob")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No winner")
	_, ok, _ = svc.Pending(context.Background(), "#dice")
	assert.False(t, ok)
}

func TestRollWithoutNickSetsCookie(t *testing.T) {
	_, h := newTestServer(t)
	rr := postRoll(t, h, "/channels/lobby/roll", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var playerID string
	for _, c := range rr.Result().Cookies() {
		if c.Name == "player_id" {
			playerID = c.Value
		}
	}
	assert.NotEmpty(t, playerID, "expected player_id cookie to be set")

	// Same cookie is the same player.
	req := httptest.NewRequest("POST", "/channels/lobby/roll", nil)
	req.AddCookie(&http.Cookie{Name: "player_id", Value: playerID})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestChannelPageHasSSEWiring(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/channels/lobby", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `hx-ext="sse"`)
	assert.Contains(t, body, "/channels/lobby/events")
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/channels/lobby/events", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Result().Header.Get("Content-Type"), "text/event-stream"))
}

func TestBroadcastUsesHTMLRenderer(t *testing.T) {
	svc, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, unsub := svc.Subscribe(ctx, "lobby")
	defer unsub()

	_, err := svc.Play(ctx, "lobby", "alice")
	require.NoError(t, err)
	select {
	case b := <-ch:
		assert.Contains(t, string(b), `<div class="play">`)
	case <-ctx.Done():
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestWriteEventSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	writeEvent(&buf, "play", []byte("a\nb"))
	assert.Equal(t, "event: play\ndata: a\ndata: b\n\n", buf.String())
}
