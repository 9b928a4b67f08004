// Package realtime keeps the agent's push connection to the support backend
// open and hands every pushed event to a Handler.
package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Inbound event names.
const (
	EventNewMessage         = "new_message"
	EventConversationUpdate = "conversation_update"
	EventHandoffReceived    = "handoff_received"
	EventPong               = "pong"
)

// Outbound event names.
const (
	EventPing              = "ping"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTyping            = "typing"
)

var (
	ErrMissingCredentials = errors.New("realtime: no stored token or agent")
	ErrNotConnected       = errors.New("realtime: not connected")
)

// Event is one frame on the push channel.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an Event.
func NewEvent(name string, data any) (Event, error) {
	ev := Event{Event: name}
	if data == nil {
		return ev, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	ev.Data = raw
	return ev, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return errors.New("realtime: event has no data")
	}
	return json.Unmarshal(e.Data, v)
}

// Handler receives decoded events in arrival order.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// ConversationUpdate is the payload of a conversation_update event.
type ConversationUpdate struct {
	ID             domain.ID                 `json:"id,omitempty"`
	ConversationID domain.ID                 `json:"conversation_id,omitempty"`
	Status         domain.ConversationStatus `json:"status,omitempty"`
	AssigneeID     domain.ID                 `json:"assignee_id,omitempty"`
}

// Target returns the conversation the update refers to.
func (u ConversationUpdate) Target() domain.ID {
	if !u.ConversationID.IsZero() {
		return u.ConversationID
	}
	return u.ID
}

// Handoff is the payload of a handoff_received event.
type Handoff struct {
	ConversationID domain.ID `json:"conversation_id"`
	CustomerName   string    `json:"customer_name,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	FromAgentID    domain.ID `json:"from_agent_id,omitempty"`
}

type roomPayload struct {
	ConversationID domain.ID `json:"conversationId"`
}

type typingPayload struct {
	ConversationID domain.ID `json:"conversationId"`
	IsTyping       bool      `json:"isTyping"`
}
