package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// GetTicket fetches a ticket by id.
func (c *Client) GetTicket(ctx context.Context, id domain.ID) (domain.Ticket, error) {
	var out domain.Ticket
	err := c.call(ctx, request{method: http.MethodGet, path: "tickets/" + escape(id)}, &out)
	return out, err
}

// GetTicketByNumber fetches a ticket by its human-facing number.
func (c *Client) GetTicketByNumber(ctx context.Context, number string) (domain.Ticket, error) {
	var out domain.Ticket
	err := c.call(ctx, request{method: http.MethodGet, path: "support_tickets/by-number/" + url.PathEscape(number)}, &out)
	return out, err
}

// ListTickets fetches the tickets of one conversation.
func (c *Client) ListTickets(ctx context.Context, conversationID domain.ID) ([]domain.Ticket, error) {
	var out []domain.Ticket
	q := url.Values{"conversation_id": {conversationID.String()}}
	err := c.call(ctx, request{method: http.MethodGet, path: "tickets", query: q}, &out)
	return out, err
}

// CreateTicket opens a ticket.
func (c *Client) CreateTicket(ctx context.Context, draft domain.TicketDraft) (domain.Ticket, error) {
	return c.ticketCall(ctx, http.MethodPost, "tickets", draft)
}

// UpdateTicket edits a ticket. Agent notes sent here replace the stored
// text, so callers send the accumulated notes.
func (c *Client) UpdateTicket(ctx context.Context, id domain.ID, u domain.TicketUpdate) (domain.Ticket, error) {
	return c.ticketCall(ctx, http.MethodPut, "tickets/"+escape(id), u)
}

// UpdateTicketStatus changes a ticket's status, optionally with the
// accumulated agent notes.
func (c *Client) UpdateTicketStatus(ctx context.Context, id domain.ID, status, agentNotes string) (domain.Ticket, error) {
	body := map[string]string{"status": status}
	if agentNotes != "" {
		body["agent_notes"] = agentNotes
	}
	return c.ticketCall(ctx, http.MethodPut, "tickets/"+escape(id)+"/status", body)
}

// UpdateTicketPriority changes a ticket's priority.
func (c *Client) UpdateTicketPriority(ctx context.Context, id domain.ID, priority string) (domain.Ticket, error) {
	return c.ticketCall(ctx, http.MethodPut, "tickets/"+escape(id)+"/priority", map[string]string{"priority": priority})
}

// CloseTicket closes a ticket with status (CLOSED when empty).
func (c *Client) CloseTicket(ctx context.Context, id domain.ID, status string) (domain.Ticket, error) {
	if status == "" {
		status = domain.TicketClosed
	}
	return c.ticketCall(ctx, http.MethodPut, "tickets/"+escape(id)+"/close", map[string]string{"status": status})
}

// ReopenTicket reopens a ticket with status (REOPENED when empty).
func (c *Client) ReopenTicket(ctx context.Context, id domain.ID, status string) (domain.Ticket, error) {
	if status == "" {
		status = domain.TicketReopened
	}
	return c.ticketCall(ctx, http.MethodPut, "tickets/"+escape(id)+"/reopen", map[string]string{"status": status})
}

func (c *Client) ticketCall(ctx context.Context, method, path string, body any) (domain.Ticket, error) {
	var out domain.Ticket
	req, err := jsonRequest(method, path, body)
	if err != nil {
		return out, err
	}
	err = c.call(ctx, req, &out)
	return out, err
}
