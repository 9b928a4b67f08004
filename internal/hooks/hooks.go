// Package hooks dispatches desk events to in-process handlers and to
// user-configured shell commands.
package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/logging"
)

// Desk events.
const (
	EventMessageReceived         = "message_received"
	EventConversationReactivated = "conversation_reactivated"
	EventHandoffReceived         = "handoff_received"
	EventTransportConnected      = "transport_connected"
	EventTransportDisconnected   = "transport_disconnected"
	EventUnreadChanged           = "unread_changed"
	EventApplicationStatus       = "application_status_changed"
)

// AllEvents lists every event the desk emits.
var AllEvents = []string{
	EventMessageReceived,
	EventConversationReactivated,
	EventHandoffReceived,
	EventTransportConnected,
	EventTransportDisconnected,
	EventUnreadChanged,
	EventApplicationStatus,
}

// Payload is what a handler receives. Command hooks get it as JSON on stdin.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged and does not stop
// the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager holds handler registrations per event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
	inflight sync.WaitGroup
	now      func() time.Time
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates an empty manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
		now:      time.Now,
	}
}

// On registers handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off drops every handler registered for event under name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = kept
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

// Emit runs the handlers for event in registration order and returns when
// all of them have finished.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, At: m.now(), Data: data}
	for _, h := range handlers {
		m.run(ctx, h, p)
	}
}

// EmitAsync runs each handler for event on its own goroutine. Wait blocks
// until they are done.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, At: m.now(), Data: data}
	m.inflight.Add(len(handlers))
	for _, h := range handlers {
		go func(h namedHandler) {
			defer m.inflight.Done()
			m.run(ctx, h, p)
		}(h)
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) run(ctx context.Context, h namedHandler, p Payload) {
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook failed")
	}
}

// Count returns how many handlers event has.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have handlers, in AllEvents order followed
// by any others.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	known := make(map[string]bool, len(AllEvents))
	for _, e := range AllEvents {
		known[e] = true
		if len(m.handlers[e]) > 0 {
			out = append(out, e)
		}
	}
	for e, hs := range m.handlers {
		if !known[e] && len(hs) > 0 {
			out = append(out, e)
		}
	}
	return out
}
