package desk

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// FetchTicket loads a ticket and selects it.
func (d *Desk) FetchTicket(ctx context.Context, id domain.ID) (domain.Ticket, error) {
	t, err := d.api.GetTicket(ctx, id)
	if err != nil {
		return t, err
	}
	d.store.ApplyFetchedTicket(t)
	return t, nil
}

// FetchTicketByNumber loads a ticket by its number and selects it.
func (d *Desk) FetchTicketByNumber(ctx context.Context, number string) (domain.Ticket, error) {
	t, err := d.api.GetTicketByNumber(ctx, number)
	if err != nil {
		return t, err
	}
	d.store.ApplyFetchedTicket(t)
	return t, nil
}

// FetchTickets loads the tickets of a conversation.
func (d *Desk) FetchTickets(ctx context.Context, conversationID domain.ID) ([]domain.Ticket, error) {
	list, err := d.api.ListTickets(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	d.store.ReplaceConversationTickets(conversationID, list)
	return list, nil
}

// CreateTicket opens a ticket and selects it.
func (d *Desk) CreateTicket(ctx context.Context, draft domain.TicketDraft) (domain.Ticket, error) {
	t, err := d.api.CreateTicket(ctx, draft)
	if err != nil {
		return t, err
	}
	if t.ConversationID.IsZero() {
		t.ConversationID = draft.ConversationID
	}
	d.store.AddCreatedTicket(t)
	return t, nil
}

// accumulatedNotes is what the backend should store after note is added.
func (d *Desk) accumulatedNotes(id domain.ID, note string) string {
	if note == "" {
		return ""
	}
	existing, _ := d.store.Ticket(id)
	return domain.AppendNote(existing.AgentNotes, note)
}

// UpdateTicketStatus changes a ticket's status. A note is appended to the
// ticket's agent notes, never replacing earlier ones.
func (d *Desk) UpdateTicketStatus(ctx context.Context, id domain.ID, status, note string) error {
	if _, err := d.api.UpdateTicketStatus(ctx, id, status, d.accumulatedNotes(id, note)); err != nil {
		return err
	}
	d.store.ApplyTicketStatusChange(id, status, note)
	return nil
}

// UpdateTicketPriority changes a ticket's priority.
func (d *Desk) UpdateTicketPriority(ctx context.Context, id domain.ID, priority string) error {
	if _, err := d.api.UpdateTicketPriority(ctx, id, priority); err != nil {
		return err
	}
	d.store.ApplyTicketPriorityChange(id, priority)
	return nil
}

// UpdateTicket edits a ticket. Agent notes in u are appended.
func (d *Desk) UpdateTicket(ctx context.Context, id domain.ID, u domain.TicketUpdate) error {
	send := u
	if u.AgentNotes != nil {
		notes := d.accumulatedNotes(id, *u.AgentNotes)
		send.AgentNotes = &notes
	}
	if _, err := d.api.UpdateTicket(ctx, id, send); err != nil {
		return err
	}
	d.store.ApplyTicketUpdate(id, u)
	return nil
}

// ResolveTicket sets the status to RESOLVED and then records the
// resolution. Either call succeeding resolves the ticket locally; the
// resolution text is kept only when its update went through.
func (d *Desk) ResolveTicket(ctx context.Context, id domain.ID, resolution string) error {
	_, statusErr := d.api.UpdateTicketStatus(ctx, id, domain.TicketResolved, "")
	if statusErr != nil {
		d.log.Warn().Err(statusErr).Str("ticket", id.String()).Msg("status update during resolve failed")
	}

	var updateErr error
	applied := ""
	if resolution != "" {
		status := domain.TicketResolved
		_, updateErr = d.api.UpdateTicket(ctx, id, domain.TicketUpdate{Status: &status, Resolution: &resolution})
		if updateErr != nil {
			d.log.Warn().Err(updateErr).Str("ticket", id.String()).Msg("resolution update failed")
		} else {
			applied = resolution
		}
	}

	if statusErr != nil && (resolution == "" || updateErr != nil) {
		return fmt.Errorf("failed to resolve ticket: %w", errors.Join(statusErr, updateErr))
	}
	if applied == "" {
		if t, ok := d.store.Ticket(id); ok {
			applied = t.Resolution
		}
	}
	d.store.ApplyTicketResolved(id, applied, d.now())
	return nil
}

// CloseTicket closes a ticket; an empty status means CLOSED.
func (d *Desk) CloseTicket(ctx context.Context, id domain.ID, status string) error {
	t, err := d.api.CloseTicket(ctx, id, status)
	if err != nil {
		return err
	}
	if status == "" {
		status = t.Status
	}
	d.store.ApplyTicketClosed(id, status, d.now())
	return nil
}

// ReopenTicket reopens a ticket; an empty status means REOPENED.
func (d *Desk) ReopenTicket(ctx context.Context, id domain.ID, status string) error {
	t, err := d.api.ReopenTicket(ctx, id, status)
	if err != nil {
		return err
	}
	if status == "" {
		status = t.Status
	}
	d.store.ApplyTicketReopened(id, status, d.now())
	return nil
}
