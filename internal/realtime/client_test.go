package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/credentials"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type testServer struct {
	*httptest.Server
	conns   chan *websocket.Conn
	accepts atomic.Int32

	mu   sync.Mutex
	urls []string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan *websocket.Conn, 32)}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.urls = append(ts.urls, r.URL.String())
		ts.mu.Unlock()
		ts.accepts.Add(1)
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) pattern() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/agent/{agentId}/conversations"
}

func (ts *testServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(waitFor):
		t.Fatal("no connection accepted")
		return nil
	}
}

func (ts *testServer) requestURLs() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.urls...)
}

func signedIn(t *testing.T) *credentials.Manager {
	t.Helper()
	m := credentials.NewManager(credentials.NewMemoryStorage(), logging.New(nil, "silent"))
	require.NoError(t, m.Save(credentials.Session{
		Token:        "tok-1",
		RefreshToken: "ref-1",
		Agent:        domain.Agent{ID: "a1", Username: "ana"},
	}))
	return m
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	states []State
}

func (r *recorder) HandleEvent(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) observe(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) eventNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Event)
	}
	return out
}

func (r *recorder) seenStates() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newTestClient(t *testing.T, ts *testServer, sessions Sessions, opts Options) (*Client, *recorder) {
	t.Helper()
	if opts.URL == "" {
		opts.URL = ts.pattern()
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 50 * time.Millisecond
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = time.Hour
	}
	rec := &recorder{}
	c := New(opts, sessions, rec, logging.New(nil, "silent"))
	c.OnStateChange(rec.observe)
	t.Cleanup(c.Disconnect)
	return c, rec
}

func closeFrom(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	msg := websocket.FormatCloseMessage(code, "")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
}

func TestInit_MissingCredentials(t *testing.T) {
	ts := newTestServer(t)
	empty := credentials.NewManager(credentials.NewMemoryStorage(), logging.New(nil, "silent"))
	c, rec := newTestClient(t, ts, empty, Options{})

	err := c.Init(context.Background())
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, rec.seenStates())
	assert.Zero(t, c.dials.Load())
	assert.Zero(t, ts.accepts.Load())
}

func TestInit_MissingAgent(t *testing.T) {
	ts := newTestServer(t)
	store := credentials.NewMemoryStorage()
	require.NoError(t, store.Set(credentials.KeyToken, "tok-1"))
	c, _ := newTestClient(t, ts, credentials.NewManager(store, logging.New(nil, "silent")), Options{})

	require.ErrorIs(t, c.Init(context.Background()), ErrMissingCredentials)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestInit_Connects(t *testing.T) {
	ts := newTestServer(t)
	c, rec := newTestClient(t, ts, signedIn(t), Options{})

	require.NoError(t, c.Init(context.Background()))
	ts.next(t)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, []State{StateConnecting, StateConnected}, rec.seenStates())
	urls := ts.requestURLs()
	require.Len(t, urls, 1)
	assert.Equal(t, "/ws/agent/a1/conversations?token=tok-1", urls[0])

	// A second Init while connected opens nothing new.
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, int32(1), ts.accepts.Load())
}

func TestDispatch(t *testing.T) {
	ts := newTestServer(t)
	c, rec := newTestClient(t, ts, signedIn(t), Options{})
	require.NoError(t, c.Init(context.Background()))
	sc := ts.next(t)

	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte(`{"event":"pong"}`)))
	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))
	require.NoError(t, sc.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"new_message","data":{"id":"m1","conversation_id":"c1","content":"hi"}}`)))
	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte(`{"event":"something_new","data":[1]}`)))

	require.Eventually(t, func() bool { return len(rec.eventNames()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{EventNewMessage, "something_new"}, rec.eventNames())

	var msg domain.Message
	rec.mu.Lock()
	first := rec.events[0]
	rec.mu.Unlock()
	require.NoError(t, first.Decode(&msg))
	assert.Equal(t, domain.ID("m1"), msg.ID)
	assert.Equal(t, "hi", msg.Content)
}

func TestHeartbeat(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts, signedIn(t), Options{HeartbeatInterval: 20 * time.Millisecond})
	require.NoError(t, c.Init(context.Background()))
	sc := ts.next(t)

	sc.SetReadDeadline(time.Now().Add(waitFor))
	for i := 0; i < 2; i++ {
		var ev Event
		require.NoError(t, sc.ReadJSON(&ev))
		assert.Equal(t, EventPing, ev.Event)
	}
	assert.Equal(t, int32(1), c.heartbeats.Load())
}

func TestCleanCloseStaysDisconnected(t *testing.T) {
	ts := newTestServer(t)
	c, rec := newTestClient(t, ts, signedIn(t), Options{ReconnectDelay: 20 * time.Millisecond})
	require.NoError(t, c.Init(context.Background()))
	sc := ts.next(t)

	closeFrom(t, sc, websocket.CloseNormalClosure)

	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitFor, tick)
	assert.Zero(t, c.reconnects.Load())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), ts.accepts.Load())
	assert.Equal(t, int32(1), c.dials.Load())
	assert.NotContains(t, rec.seenStates(), StateReconnecting)
	require.Eventually(t, func() bool { return c.heartbeats.Load() == 0 }, waitFor, tick)
}

func TestAbnormalCloseReconnectsOnce(t *testing.T) {
	ts := newTestServer(t)
	c, rec := newTestClient(t, ts, signedIn(t), Options{ReconnectDelay: 50 * time.Millisecond})
	require.NoError(t, c.Init(context.Background()))
	sc := ts.next(t)

	// Dropping the TCP connection without a close frame reads as 1006.
	sc.UnderlyingConn().Close()

	require.Eventually(t, func() bool { return c.State() == StateReconnecting }, waitFor, tick)
	assert.Equal(t, int32(1), c.reconnects.Load())
	assert.Equal(t, int32(1), c.dials.Load())

	ts.next(t)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, waitFor, tick)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(2), ts.accepts.Load())
	assert.Equal(t, int32(2), c.dials.Load())
	assert.Zero(t, c.reconnects.Load())
	assert.Equal(t, []State{
		StateConnecting, StateConnected,
		StateReconnecting, StateConnecting, StateConnected,
	}, rec.seenStates())
}

func TestDialFailureRetries(t *testing.T) {
	ts := newTestServer(t)
	pattern := ts.pattern()
	ts.Close()

	c, _ := newTestClient(t, ts, signedIn(t), Options{URL: pattern, ReconnectDelay: 20 * time.Millisecond})
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, StateReconnecting, c.State())

	require.Eventually(t, func() bool { return c.dials.Load() >= 3 }, waitFor, tick)
	assert.LessOrEqual(t, c.reconnects.Load(), int32(1))

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	assert.Zero(t, c.reconnects.Load())
	dials := c.dials.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, dials, c.dials.Load())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts, signedIn(t), Options{ReconnectDelay: 100 * time.Millisecond})
	require.NoError(t, c.Init(context.Background()))
	sc := ts.next(t)

	sc.UnderlyingConn().Close()
	require.Eventually(t, func() bool { return c.reconnects.Load() == 1 }, waitFor, tick)

	c.Disconnect()
	assert.Zero(t, c.reconnects.Load())
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), ts.accepts.Load())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestRepeatedCyclesKeepOneTimerEach(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts, signedIn(t), Options{
		HeartbeatInterval: 10 * time.Millisecond,
		ReconnectDelay:    10 * time.Millisecond,
	})

	var maxHeartbeats, maxReconnects atomic.Int32
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := c.heartbeats.Load(); n > maxHeartbeats.Load() {
				maxHeartbeats.Store(n)
			}
			if n := c.reconnects.Load(); n > maxReconnects.Load() {
				maxReconnects.Store(n)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Init(context.Background()))
		sc := ts.next(t)
		if i%2 == 1 {
			sc.UnderlyingConn().Close()
			ts.next(t)
			require.Eventually(t, func() bool { return c.State() == StateConnected }, waitFor, tick)
		}
		c.Disconnect()
	}
	close(stop)
	<-done

	assert.LessOrEqual(t, maxHeartbeats.Load(), int32(1))
	assert.LessOrEqual(t, maxReconnects.Load(), int32(1))
	require.Eventually(t, func() bool { return c.heartbeats.Load() == 0 }, waitFor, tick)
	assert.Zero(t, c.reconnects.Load())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDisconnectIdempotent(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts, signedIn(t), Options{})

	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())

	require.NoError(t, c.Init(context.Background()))
	sc := ts.next(t)
	c.Disconnect()
	c.Disconnect()

	sc.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := sc.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestReconnectReplacesSocket(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts, signedIn(t), Options{})
	require.NoError(t, c.Init(context.Background()))
	first := ts.next(t)

	require.NoError(t, c.Reconnect(context.Background()))
	ts.next(t)
	assert.Equal(t, StateConnected, c.State())

	first.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := first.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, int32(2), ts.accepts.Load())
}

func TestRoomAndTypingFrames(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts, signedIn(t), Options{})

	assert.ErrorIs(t, c.JoinConversation("c1"), ErrNotConnected)

	require.NoError(t, c.Init(context.Background()))
	sc := ts.next(t)

	require.NoError(t, c.JoinConversation("c1"))
	require.NoError(t, c.SendTyping("c1", true))
	require.NoError(t, c.LeaveConversation("c1"))

	sc.SetReadDeadline(time.Now().Add(waitFor))
	want := []string{
		`{"event":"join_conversation","data":{"conversationId":"c1"}}`,
		`{"event":"typing","data":{"conversationId":"c1","isTyping":true}}`,
		`{"event":"leave_conversation","data":{"conversationId":"c1"}}`,
	}
	for _, w := range want {
		_, data, err := sc.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, w, string(data))
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
		wantErr bool
	}{
		{"ws://h/api/v1/ws/agent/{agentId}/conversations", "ws://h/api/v1/ws/agent/a%2F1/conversations?token=t+k", false},
		{"wss://h/ws?x=1", "wss://h/ws?token=t+k&x=1", false},
		{"http://h/ws", "", true},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.pattern, "a/1", "t k")
		if tt.wantErr {
			assert.Error(t, err, tt.pattern)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestEventDecode(t *testing.T) {
	ev, err := NewEvent(EventConversationUpdate, map[string]any{"id": 7, "status": "RESOLVED"})
	require.NoError(t, err)

	var u ConversationUpdate
	require.NoError(t, ev.Decode(&u))
	assert.Equal(t, domain.ID("7"), u.Target())
	assert.Equal(t, domain.ConversationResolved, u.Status)

	raw, err := json.Marshal(Event{Event: EventPing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping"}`, string(raw))

	assert.Error(t, Event{Event: "x"}.Decode(&u))
}
