package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/agentdesk/internal/credentials"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// State is the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReconnectDelay    = 5 * time.Second

	writeTimeout = 10 * time.Second
)

// Sessions supplies the stored token and agent.
type Sessions interface {
	Require() (credentials.Session, error)
}

// Options configures a Client.
type Options struct {
	// URL is the endpoint pattern; {agentId} is replaced and ?token= added.
	URL               string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	Dialer            *websocket.Dialer
}

// Client owns at most one socket at a time. It reconnects once per
// non-clean close after a fixed delay and stays down after a normal close.
type Client struct {
	opts     Options
	sessions Sessions
	handler  Handler
	log      *logging.Logger
	dialer   *websocket.Dialer

	mu    sync.Mutex
	state State
	ctx   context.Context
	conn  *websocket.Conn
	// gen changes on every Disconnect so in-flight dials from an earlier
	// lifetime are discarded.
	gen            uint64
	hbStop         chan struct{}
	reconnectTimer *time.Timer
	reconnectSeq   uint64
	observers      []func(from, to State)

	writeMu sync.Mutex

	heartbeats atomic.Int32
	reconnects atomic.Int32
	dials      atomic.Int32
}

// New creates a disconnected client.
func New(opts Options, sessions Sessions, handler Handler, log *logging.Logger) *Client {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		if opts.HandshakeTimeout > 0 {
			d.HandshakeTimeout = opts.HandshakeTimeout
		}
		dialer = &d
	}
	return &Client{
		opts:     opts,
		sessions: sessions,
		handler:  handler,
		log:      log.Sub("realtime"),
		dialer:   dialer,
		state:    StateDisconnected,
		ctx:      context.Background(),
	}
}

// OnStateChange registers fn to be called after every state transition.
// fn runs outside the client's lock.
func (c *Client) OnStateChange(fn func(from, to State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Init opens the connection. It needs a stored token and agent; without
// them the client stays disconnected and ErrMissingCredentials is returned.
// Dial failures are logged and retried, not returned. Calling Init while a
// connection exists or is being established does nothing.
func (c *Client) Init(ctx context.Context) error {
	sess, err := c.sessions.Require()
	if err != nil {
		c.log.Warn().Err(err).Msg("not connecting, no stored session")
		return fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.ctx = ctx
	gen := c.gen
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	c.dial(ctx, sess, gen)
	return nil
}

// Disconnect cancels the heartbeat and any scheduled reconnect, then closes
// the socket with a normal-closure frame. It is safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopReconnectLocked()
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil {
			c.log.Debug().Err(err).Msg("close frame not sent")
		}
		c.writeMu.Unlock()
		conn.Close()
		c.log.Info().Msg("disconnected")
	}
	notify()
}

// Reconnect drops the current connection and opens a new one, so two
// sockets never coexist.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Init(ctx)
}

// Send writes one event to the open socket.
func (c *Client) Send(ev Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, ev)
}

// JoinConversation subscribes to a conversation's room.
func (c *Client) JoinConversation(id domain.ID) error {
	return c.sendPayload(EventJoinConversation, roomPayload{ConversationID: id})
}

// LeaveConversation unsubscribes from a conversation's room.
func (c *Client) LeaveConversation(id domain.ID) error {
	return c.sendPayload(EventLeaveConversation, roomPayload{ConversationID: id})
}

// SendTyping tells the customer side whether the agent is typing.
func (c *Client) SendTyping(id domain.ID, typing bool) error {
	return c.sendPayload(EventTyping, typingPayload{ConversationID: id, IsTyping: typing})
}

func (c *Client) sendPayload(name string, data any) error {
	ev, err := NewEvent(name, data)
	if err != nil {
		return err
	}
	return c.Send(ev)
}

func (c *Client) write(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (c *Client) dial(ctx context.Context, sess credentials.Session, gen uint64) {
	target, err := Endpoint(c.opts.URL, sess.Agent.ID, sess.Token)
	if err != nil {
		c.log.Error().Err(err).Msg("invalid realtime url")
		c.mu.Lock()
		notify := func() {}
		if c.gen == gen {
			notify = c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		notify()
		return
	}

	c.dials.Add(1)
	conn, _, err := c.dialer.DialContext(ctx, target, nil)

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil && ctx.Err() != nil {
		notify := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify()
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Dur("retryIn", c.opts.ReconnectDelay).Msg("connect failed")
		notify := c.setStateLocked(StateReconnecting)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		notify()
		return
	}
	c.conn = conn
	c.startHeartbeatLocked(conn)
	notify := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.log.Info().Str("agent", sess.Agent.ID.String()).Msg("connected")
	notify()
	go c.readLoop(ctx, conn)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.closed(conn, err)
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Event == "" {
			c.log.Debug().Int("bytes", len(data)).Msg("ignoring undecodable frame")
			continue
		}
		if ev.Event == EventPong {
			c.log.Trace().Msg("pong")
			continue
		}
		c.log.Trace().Str("event", ev.Event).Msg("event received")
		c.handler.HandleEvent(ctx, ev)
	}
}

// closed handles the end of conn's read loop.
func (c *Client) closed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Disconnect already took it down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.stopHeartbeatLocked()

	var notify func()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.log.Info().Msg("server closed the connection")
		notify = c.setStateLocked(StateDisconnected)
	} else {
		c.log.Warn().Err(err).Dur("retryIn", c.opts.ReconnectDelay).Msg("connection lost")
		notify = c.setStateLocked(StateReconnecting)
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	conn.Close()
	notify()
}

func (c *Client) scheduleReconnectLocked() {
	c.stopReconnectLocked()
	c.reconnectSeq++
	seq := c.reconnectSeq
	c.reconnects.Add(1)
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() { c.fireReconnect(seq) })
}

// stopReconnectLocked cancels the pending reconnect. A timer that already
// fired accounts for itself in fireReconnect.
func (c *Client) stopReconnectLocked() {
	if c.reconnectTimer == nil {
		return
	}
	if c.reconnectTimer.Stop() {
		c.reconnects.Add(-1)
	}
	c.reconnectTimer = nil
}

func (c *Client) fireReconnect(seq uint64) {
	c.reconnects.Add(-1)

	c.mu.Lock()
	if seq != c.reconnectSeq || c.reconnectTimer == nil || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	gen := c.gen
	ctx := c.ctx
	c.mu.Unlock()

	sess, err := c.sessions.Require()

	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("session gone, giving up reconnect")
		notify := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify()
		return
	}
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	c.log.Debug().Msg("reconnecting")
	c.dial(ctx, sess, gen)
}

func (c *Client) startHeartbeatLocked(conn *websocket.Conn) {
	c.stopHeartbeatLocked()
	stop := make(chan struct{})
	c.hbStop = stop
	c.heartbeats.Add(1)

	go func() {
		defer c.heartbeats.Add(-1)
		t := time.NewTicker(c.opts.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := c.write(conn, Event{Event: EventPing}); err != nil {
					c.log.Debug().Err(err).Msg("heartbeat failed")
				}
			}
		}
	}()
}

func (c *Client) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

// setStateLocked records the transition and returns a func that notifies
// observers. Call it after releasing mu.
func (c *Client) setStateLocked(to State) func() {
	from := c.state
	if from == to {
		return func() {}
	}
	c.state = to
	observers := append([]func(from, to State){}, c.observers...)
	return func() {
		for _, fn := range observers {
			fn(from, to)
		}
	}
}

// Endpoint fills the agent id into pattern and appends the token.
func Endpoint(pattern string, agentID domain.ID, token string) (string, error) {
	raw := strings.ReplaceAll(pattern, "{agentId}", url.PathEscape(agentID.String()))
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
