package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// ListConversations fetches the conversation list. Filters the backend
// understands are sent as query parameters.
func (c *Client) ListConversations(ctx context.Context, f domain.ConversationFilters) ([]domain.Conversation, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if !f.AssignedTo.IsZero() {
		q.Set("assigned_to", f.AssignedTo.String())
	}
	if f.SearchTerm != "" {
		q.Set("search", f.SearchTerm)
	}
	var out []domain.Conversation
	err := c.call(ctx, request{method: http.MethodGet, path: "conversations", query: q}, &out)
	return out, err
}

// GetConversation fetches one conversation with its message history.
func (c *Client) GetConversation(ctx context.Context, id domain.ID) (domain.ConversationDetails, error) {
	var out domain.ConversationDetails
	err := c.call(ctx, request{method: http.MethodGet, path: "conversations/" + escape(id)}, &out)
	return out, err
}

// SendMessage posts an agent message.
func (c *Client) SendMessage(ctx context.Context, conversationID domain.ID, msg domain.OutgoingMessage) (domain.Message, error) {
	var out domain.Message
	req, err := jsonRequest(http.MethodPost, "conversations/"+escape(conversationID)+"/messages", msg)
	if err != nil {
		return out, err
	}
	err = c.call(ctx, req, &out)
	if err == nil && out.ConversationID.IsZero() {
		out.ConversationID = conversationID
	}
	return out, err
}

// UpdateConversationStatus changes a conversation's lifecycle status.
func (c *Client) UpdateConversationStatus(ctx context.Context, id domain.ID, status domain.ConversationStatus) (domain.StatusChange, error) {
	var out domain.StatusChange
	req, err := jsonRequest(http.MethodPut, "conversations/"+escape(id)+"/status", map[string]string{"status": string(status)})
	if err != nil {
		return out, err
	}
	if err := c.call(ctx, req, &out); err != nil {
		return out, err
	}
	if out.ID.IsZero() {
		out.ID = id
	}
	if out.Status == "" {
		out.Status = status
	}
	return out, nil
}

// AssignConversation assigns a conversation to an agent.
func (c *Client) AssignConversation(ctx context.Context, id, agentID domain.ID) (domain.Assignment, error) {
	var out domain.Assignment
	req, err := jsonRequest(http.MethodPut, "conversations/"+escape(id)+"/assign", map[string]string{"assignee_id": agentID.String()})
	if err != nil {
		return out, err
	}
	if err := c.call(ctx, req, &out); err != nil {
		return out, err
	}
	if out.ID.IsZero() {
		out.ID = id
	}
	if out.AssigneeID.IsZero() {
		out.AssigneeID = agentID
	}
	return out, nil
}

// GetUnreadStats fetches the server's unread counters.
func (c *Client) GetUnreadStats(ctx context.Context) (domain.UnreadStats, error) {
	var out domain.UnreadStats
	err := c.call(ctx, request{method: http.MethodGet, path: "conversations/unread-stats"}, &out)
	return out, err
}

// MarkSeen marks every message of a conversation as seen.
func (c *Client) MarkSeen(ctx context.Context, id domain.ID) (domain.SeenResult, error) {
	var out domain.SeenResult
	err := c.call(ctx, request{method: http.MethodPost, path: "conversations/" + escape(id) + "/seen"}, &out)
	if err == nil && out.ConversationID.IsZero() {
		out.ConversationID = id
	}
	return out, err
}

func escape(id domain.ID) string {
	return url.PathEscape(id.String())
}
