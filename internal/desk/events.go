package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/realtime"
	"github.com/soyeahso/agentdesk/internal/state"
)

const previewLen = 140

// HandleEvent applies one pushed event. Unknown events are ignored.
func (d *Desk) HandleEvent(ctx context.Context, ev realtime.Event) {
	switch ev.Event {
	case realtime.EventNewMessage:
		var msg domain.Message
		if err := ev.Decode(&msg); err != nil {
			d.log.Warn().Err(err).Msg("bad new_message payload")
			return
		}
		d.ReceiveMessage(ctx, msg)

	case realtime.EventConversationUpdate:
		var u realtime.ConversationUpdate
		if err := ev.Decode(&u); err != nil {
			d.log.Warn().Err(err).Msg("bad conversation_update payload")
			return
		}
		d.applyConversationUpdate(ctx, u)

	case realtime.EventHandoffReceived:
		var h realtime.Handoff
		if err := ev.Decode(&h); err != nil {
			d.log.Warn().Err(err).Msg("bad handoff_received payload")
			return
		}
		d.receiveHandoff(ctx, h)

	default:
		d.log.Trace().Str("event", ev.Event).Msg("ignoring event")
	}
}

// ReceiveMessage applies a pushed message and triggers the follow-ups:
// archive, notification, hooks and a list refresh. A duplicate, such as the
// echo of our own send, only gets the refresh.
func (d *Desk) ReceiveMessage(ctx context.Context, msg domain.Message) {
	if msg.ID.IsZero() || msg.ConversationID.IsZero() {
		d.store.ApplyIncomingMessage(msg)
		return
	}
	res := d.store.ApplyIncomingMessage(msg)
	if res.Duplicate {
		if d.opts.RefreshOnPush {
			d.RequestRefresh(ctx)
		}
		return
	}
	d.archive(msg)

	selected := d.store.SelectedConversationID() == msg.ConversationID
	if msg.FromCustomer() && !selected {
		d.store.AddNotification(d.messageNotification(msg))
	}

	d.emit(ctx, hooks.EventMessageReceived, map[string]any{
		"conversationId": msg.ConversationID.String(),
		"messageId":      msg.ID.String(),
		"content":        msg.Content,
		"direction":      string(msg.Direction),
		"source":         string(msg.Source),
		"selected":       selected,
		"unreadCount":    res.UnreadCount,
	})
	if res.Reactivated {
		d.emit(ctx, hooks.EventConversationReactivated, map[string]any{
			"conversationId": msg.ConversationID.String(),
			"previousStatus": string(res.PreviousStatus),
		})
	}

	if d.opts.RefreshOnPush || !res.KnownConversation {
		d.RequestRefresh(ctx)
	}
}

func (d *Desk) messageNotification(msg domain.Message) domain.Notification {
	title := "New message"
	if c, ok := d.store.Conversation(msg.ConversationID); ok {
		switch {
		case c.CustomerName != "":
			title = c.CustomerName
		case c.PhoneNumber != "":
			title = c.PhoneNumber
		}
	}
	return domain.Notification{
		Type:           domain.NotificationMessage,
		Title:          title,
		Message:        preview(msg.Content),
		ConversationID: msg.ConversationID,
		Importance:     domain.ImportanceMedium,
		Data:           map[string]any{"messageId": msg.ID.String()},
		AutoClose:      true,
	}
}

func (d *Desk) applyConversationUpdate(ctx context.Context, u realtime.ConversationUpdate) {
	id := u.Target()
	if id.IsZero() {
		d.log.Debug().Msg("conversation_update without id")
		return
	}
	if _, known := d.store.Conversation(id); !known {
		d.RequestRefresh(ctx)
		return
	}
	if u.Status != "" {
		if err := d.store.ApplyConversationStatusChange(id, u.Status); err != nil {
			if !errors.Is(err, state.ErrInvalidStatus) {
				d.log.Warn().Err(err).Msg("applying pushed status failed")
			} else {
				d.log.Debug().Str("status", string(u.Status)).Msg("ignoring unknown pushed status")
			}
		}
	}
	if !u.AssigneeID.IsZero() {
		d.store.ApplyAssignment(domain.Assignment{ID: id, AssigneeID: u.AssigneeID})
	}
}

func (d *Desk) receiveHandoff(ctx context.Context, h realtime.Handoff) {
	name := h.CustomerName
	if name == "" {
		if c, ok := d.store.Conversation(h.ConversationID); ok {
			name = c.CustomerName
		}
	}
	text := "A conversation was handed off to you"
	if name != "" {
		text = fmt.Sprintf("%s was handed off to you", name)
	}
	if h.Reason != "" {
		text += ": " + h.Reason
	}
	n := d.store.AddNotification(domain.Notification{
		Type:           domain.NotificationHandoff,
		Title:          "Handoff received",
		Message:        text,
		ConversationID: h.ConversationID,
		Importance:     domain.ImportanceHigh,
	})
	d.emit(ctx, hooks.EventHandoffReceived, map[string]any{
		"conversationId": h.ConversationID.String(),
		"customerName":   name,
		"reason":         h.Reason,
		"notificationId": n.ID,
	})
	d.RequestRefresh(ctx)
}

// TransportStateChanged reacts to push channel transitions. After a
// reconnect the selected room is joined again and the list is refreshed to
// pick up anything pushed while the channel was down.
func (d *Desk) TransportStateChanged(ctx context.Context, from, to realtime.State) {
	switch {
	case to == realtime.StateConnected:
		d.emit(ctx, hooks.EventTransportConnected, map[string]any{"from": string(from)})
		d.join(d.store.SelectedConversationID())
		if len(d.store.Conversations()) > 0 {
			d.RequestRefresh(ctx)
		}
	case from == realtime.StateConnected:
		d.emit(ctx, hooks.EventTransportDisconnected, map[string]any{"to": string(to)})
	}
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > previewLen {
		return string(r[:previewLen]) + "…"
	}
	return s
}
