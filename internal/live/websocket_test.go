package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/debate-panel/internal/conversation"
	"github.com/ashureev/debate-panel/internal/domain"
)

type fakeSource struct {
	*conversation.Broadcaster
	mu   sync.Mutex
	snap domain.Session
}

func newFakeSource() *fakeSource {
	return &fakeSource{Broadcaster: conversation.NewBroadcaster(nil), snap: domain.EmptySession()}
}

func (f *fakeSource) Snapshot() domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Clone()
}

func (f *fakeSource) set(s domain.Session) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
	f.Publish(s)
}

func dialPanel(t *testing.T, h http.Handler, path string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	conn, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func frameType(t *testing.T, frame map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	require.NoError(t, json.Unmarshal(frame["type"], &typ))
	return typ
}

func frameSession(t *testing.T, frame map[string]json.RawMessage) domain.Session {
	t.Helper()
	var s domain.Session
	require.NoError(t, json.Unmarshal(frame["session"], &s))
	return s
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	src := newFakeSource()
	defer src.Close()
	cm := NewConnManager()
	h := NewWebSocketHandler(src, cm, Config{IsDev: true}, nil)
	conn := dialPanel(t, h, "/ws/panel?tab=tab-1")

	first := readFrame(t, conn)
	assert.Equal(t, "snapshot", frameType(t, first))
	assert.Equal(t, domain.PhaseStopped, frameSession(t, first).Phase)

	require.Eventually(t, func() bool { return src.Len() == 1 }, time.Second, 5*time.Millisecond)

	running := domain.EmptySession()
	running.ID = "c1"
	running.Phase = domain.PhaseRunning
	running.Round = 1
	running.Version = 2
	src.set(running)

	next := readFrame(t, conn)
	got := frameSession(t, next)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, domain.PhaseRunning, got.Phase)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, 1, cm.Count())
}

func TestWebSocketPingPong(t *testing.T) {
	src := newFakeSource()
	defer src.Close()
	h := NewWebSocketHandler(src, NewConnManager(), Config{IsDev: true}, nil)
	conn := dialPanel(t, h, "/ws/panel")
	readFrame(t, conn)

	require.NoError(t, conn.Write(t.Context(), websocket.MessageText, []byte(`{"type":"ping"}`)))

	assert.Equal(t, "pong", frameType(t, readFrame(t, conn)))
}

func TestWebSocketRefresh(t *testing.T) {
	src := newFakeSource()
	defer src.Close()
	h := NewWebSocketHandler(src, NewConnManager(), Config{IsDev: true}, nil)
	conn := dialPanel(t, h, "/ws/panel")
	readFrame(t, conn)

	require.NoError(t, conn.Write(t.Context(), websocket.MessageText, []byte(`garbage`)))
	require.NoError(t, conn.Write(t.Context(), websocket.MessageText, []byte(`{"type":"refresh"}`)))

	assert.Equal(t, "snapshot", frameType(t, readFrame(t, conn)))
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	h := NewWebSocketHandler(newFakeSource(), NewConnManager(), Config{AllowedOrigin: "https://panel.example.com"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws/panel", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTabIDFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/panel?tab=tab-7", nil)
	assert.Equal(t, "tab-7", tabIDFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/ws/panel?tab=bad%20id", nil)
	assert.NotEqual(t, "bad id", tabIDFromRequest(req))
}
