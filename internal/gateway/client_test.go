package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/logging"
)

// wsPair returns the server and client ends of one websocket connection.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

// stalledViewer has a queue but no writer, like a viewer whose socket
// stopped draining.
func stalledViewer(conn *websocket.Conn, queue int) *Viewer {
	return &Viewer{
		ConnID: "stalled",
		conn:   conn,
		out:    make(chan Frame, queue),
		done:   make(chan struct{}),
	}
}

func TestViewer_SendDelivers(t *testing.T) {
	server, client := wsPair(t)
	v := newViewer(server, ViewerInfo{ID: "dash"})
	defer v.Close()

	require.NoError(t, v.SendEvent(EventStateChanged, map[string]string{"kind": "unread"}, 3))
	require.NoError(t, v.Respond("r1", map[string]bool{"ok": true}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second Frame
	require.NoError(t, client.ReadJSON(&first))
	require.NoError(t, client.ReadJSON(&second))
	assert.Equal(t, EventStateChanged, first.Event)
	assert.Equal(t, int64(3), first.Seq)
	assert.Equal(t, "r1", second.ID)
}

func TestViewer_FullQueueClosesInsteadOfBlocking(t *testing.T) {
	server, client := wsPair(t)
	v := stalledViewer(server, 1)

	require.NoError(t, v.SendEvent(EventStateChanged, nil, 1))

	done := make(chan error, 1)
	go func() { done <- v.SendEvent(EventStateChanged, nil, 2) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrViewerBehind)
	case <-time.After(time.Second):
		t.Fatal("send blocked on a stalled viewer")
	}

	assert.ErrorIs(t, v.SendEvent(EventStateChanged, nil, 3), ErrViewerClosed)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	assert.Error(t, err, "server end was closed")
}

func TestViewers_BroadcastSkipsStalledViewer(t *testing.T) {
	log := logging.New(nil, "silent")
	set := NewViewers(log)

	stalledConn, _ := wsPair(t)
	stalled := stalledViewer(stalledConn, 1)
	set.Add(stalled)

	healthyConn, healthyClient := wsPair(t)
	healthy := newViewer(healthyConn, ViewerInfo{ID: "ok"})
	defer healthy.Close()
	set.Add(healthy)

	finished := make(chan struct{})
	go func() {
		for i := int64(1); i <= 5; i++ {
			set.Broadcast(EventStateChanged, map[string]int64{"n": i}, i)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a stalled viewer")
	}

	healthyClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := int64(1); i <= 5; i++ {
		var f Frame
		require.NoError(t, healthyClient.ReadJSON(&f))
		assert.Equal(t, i, f.Seq)
	}
	assert.ErrorIs(t, stalled.Send(Frame{}), ErrViewerClosed)
}
