package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/agentdesk/internal/logging"
)

const (
	viewerWriteTimeout = 10 * time.Second
	viewerQueueSize    = 64
)

// Viewer is an authenticated dashboard connection. Frames go out through a
// queue drained by one writer goroutine, so senders never wait on the
// network.
type Viewer struct {
	ConnID      string
	Info        ViewerInfo
	ConnectedAt time.Time

	conn *websocket.Conn
	out  chan Frame
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newViewer(conn *websocket.Conn, info ViewerInfo) *Viewer {
	v := &Viewer{
		ConnID:      uuid.NewString(),
		Info:        info,
		ConnectedAt: time.Now(),
		conn:        conn,
		out:         make(chan Frame, viewerQueueSize),
		done:        make(chan struct{}),
	}
	go v.writeLoop()
	return v
}

// Send queues one frame. Safe for concurrent use. A viewer whose queue is
// full is closed and ErrViewerBehind returned.
func (v *Viewer) Send(f Frame) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewerClosed
	}
	select {
	case v.out <- f:
		return nil
	default:
		v.closeLocked()
		return ErrViewerBehind
	}
}

func (v *Viewer) writeLoop() {
	for {
		select {
		case <-v.done:
			return
		case f := <-v.out:
			v.conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
			if err := v.conn.WriteJSON(f); err != nil {
				v.Close()
				return
			}
		}
	}
}

// SendEvent pushes a named event.
func (v *Viewer) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return v.Send(f)
}

// Respond answers request id with payload.
func (v *Viewer) Respond(id string, payload any) error {
	f, err := NewResponse(id, payload)
	if err != nil {
		return err
	}
	return v.Send(f)
}

// RespondError answers request id with an error.
func (v *Viewer) RespondError(id string, e ErrorShape) error {
	return v.Send(NewErrorResponse(id, e))
}

// ReadFrame blocks for the next frame.
func (v *Viewer) ReadFrame() (Frame, error) {
	_, msg, err := v.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the socket once. Frames still queued are dropped.
func (v *Viewer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closeLocked()
}

func (v *Viewer) closeLocked() error {
	if v.closed {
		return nil
	}
	v.closed = true
	close(v.done)
	return v.conn.Close()
}

// Viewers tracks connected viewers.
type Viewers struct {
	mu      sync.RWMutex
	viewers map[string]*Viewer
	log     *logging.Logger
}

// NewViewers creates an empty set.
func NewViewers(log *logging.Logger) *Viewers {
	return &Viewers{viewers: make(map[string]*Viewer), log: log}
}

// Add registers v.
func (r *Viewers) Add(v *Viewer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewers[v.ConnID] = v
	r.log.Info().Str("connId", v.ConnID).Str("viewer", v.Info.ID).Msg("viewer connected")
}

// Remove drops the viewer with connID.
func (r *Viewers) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.viewers[connID]; !ok {
		return
	}
	delete(r.viewers, connID)
	r.log.Info().Str("connId", connID).Msg("viewer disconnected")
}

// Count returns the number of connected viewers.
func (r *Viewers) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// Broadcast sends an event to every viewer. Failed sends are logged.
func (r *Viewers) Broadcast(event string, payload any, seq int64) {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		r.log.Warn().Err(err).Str("event", event).Msg("encoding broadcast failed")
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.viewers {
		if err := v.Send(f); err != nil {
			r.log.Warn().Err(err).Str("connId", v.ConnID).Msg("broadcast send failed")
		}
	}
}

// CloseAll closes and forgets every viewer.
func (r *Viewers) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range r.viewers {
		v.Close()
		delete(r.viewers, id)
	}
}
