package remote

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/store"
)

func testConfig() explore.Config {
	cfg := explore.DefaultConfig()
	cfg.DoubleTapTimeout = 20 * time.Millisecond
	cfg.Strict = true
	return cfg
}

func startServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	srv, err := NewServer(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + Path
}

func dial(t *testing.T, url string) (*websocket.Conn, Hello) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	var hello Hello
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	return conn, hello
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func readReply(t *testing.T, conn *websocket.Conn) Reply {
	t.Helper()
	frame := readFrame(t, conn)
	require.NotContains(t, frame, "error")
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	var reply Reply
	require.NoError(t, json.Unmarshal(data, &reply))
	return reply
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestSessionRewritesTouches(t *testing.T) {
	_, url := startServer(t, Options{Config: testConfig()})
	conn, hello := dial(t, url)

	_, err := uuid.Parse(hello.Session)
	require.NoError(t, err)
	assert.Equal(t, "NO_FINGERS_DOWN", hello.State)
	assert.InDelta(t, 20, hello.DoubleTapTimeout, 1e-9)

	send(t, conn, Message{Type: "press", At: 0, ID: 1, X: 10, Y: 20})
	reply := readReply(t, conn)
	assert.Equal(t, "discard", reply.Status)
	require.NotNil(t, reply.Input)
	assert.Nil(t, reply.Event)
	assert.Equal(t, "SINGLE_TAP_PRESSED", reply.State)

	reply = readReply(t, conn)
	assert.Equal(t, "dispatch", reply.Status)
	assert.Nil(t, reply.Input)
	require.NotNil(t, reply.Event)
	assert.Equal(t, "mouse-move", reply.Event.Type)
	assert.Equal(t, []string{"synthesized", "accessibility"}, reply.Event.Flags)
	assert.InDelta(t, 20, reply.Event.At, 1e-9)
	assert.Equal(t, "TOUCH_EXPLORATION", reply.State)

	send(t, conn, Message{Type: "move", At: 30, ID: 1, X: 40, Y: 20})
	reply = readReply(t, conn)
	assert.Equal(t, "rewritten", reply.Status)
	require.NotNil(t, reply.Event)
	assert.Equal(t, 40.0, reply.Event.X)

	send(t, conn, Message{Type: "key-press", At: 31, Key: 65, Char: "a"})
	reply = readReply(t, conn)
	assert.Equal(t, "continue", reply.Status)
	require.NotNil(t, reply.Event)
	assert.Equal(t, "a", reply.Event.Char)
}

func TestBadFramesAreRejected(t *testing.T) {
	_, url := startServer(t, Options{Config: testConfig()})
	conn, _ := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Contains(t, string(readFrame(t, conn)["error"]), "invalid frame")

	send(t, conn, Message{Type: "pinch"})
	assert.Contains(t, readFrame(t, conn), "error")

	send(t, conn, Message{Type: "gesture", At: 50, Name: "swipe"})
	assert.Equal(t, "continue", readReply(t, conn).Status)

	send(t, conn, Message{Type: "gesture", At: 10, Name: "swipe"})
	assert.Contains(t, string(readFrame(t, conn)["error"]), "backwards")

	// The session survives rejected frames.
	send(t, conn, Message{Type: "gesture", At: 60, Name: "swipe"})
	assert.Equal(t, "continue", readReply(t, conn).Status)
}

func TestFinishedSessionIsRecorded(t *testing.T) {
	recorded := make(chan *store.Recorder, 1)
	srv, url := startServer(t, Options{
		Config: testConfig(),
		Record: func(rec *store.Recorder) { recorded <- rec },
	})
	conn, hello := dial(t, url)

	send(t, conn, Message{Type: "gesture", At: 0, Name: "swipe"})
	readReply(t, conn)
	require.Eventually(t, func() bool { return srv.Active() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case rec := <-recorded:
		assert.Equal(t, hello.Session, rec.ID())
		assert.Equal(t, 1, rec.Len())
	case <-time.After(5 * time.Second):
		t.Fatalf("session was not recorded")
	}
	assert.Eventually(t, func() bool { return srv.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeStopsOnCancel(t *testing.T) {
	srv, err := NewServer(Options{Config: testConfig()})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn, _ := dial(t, "ws://"+ln.Addr().String()+Path)
	require.Eventually(t, func() bool { return srv.Active() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not return")
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestShutdownRefusesNewSessions(t *testing.T) {
	srv, url := startServer(t, Options{Config: testConfig()})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, srv.Serve(ctx, ln))

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 0, srv.Active())
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DoubleTapTimeout = 0
	_, err := NewServer(Options{Config: cfg})
	assert.Error(t, err)
}

func TestMessageConversion(t *testing.T) {
	cases := []event.Event{
		event.NewTouch(event.TouchCancelled, event.Pt(1.5, 2), 3, 1500*time.Microsecond),
		event.NewMouseMove(event.Pt(4, 5), event.FlagSynthesized, time.Second),
		event.NewKey(event.KeyReleased, 13, 'é', event.FlagShift, 0),
		{Type: event.Gesture, Name: "swipe-up", Time: 2 * time.Millisecond},
	}
	for _, ev := range cases {
		got, err := MessageFromEvent(ev).Event()
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
	_, err := Message{Type: "press", At: -1}.Event()
	assert.Error(t, err)
}
