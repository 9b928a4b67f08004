package state

import (
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// ReconcileEmbeddedTicket folds a ticket summary carried by a conversation
// into the ticket store. A ticket seen for the first time is selected; a
// known one is only selected when no ticket is selected.
func (s *Store) ReconcileEmbeddedTicket(conversationID domain.ID, t domain.Ticket) {
	s.mutate(func() []Change {
		if !s.reconcileTicket(conversationID, t, true) {
			return nil
		}
		return []Change{{Kind: ChangeTickets, ID: t.ID}}
	})
}

// reconcileTicket reports whether anything changed. Callers hold the lock.
func (s *Store) reconcileTicket(conversationID domain.ID, t domain.Ticket, autoSelect bool) bool {
	if t.ID.IsZero() || conversationID.IsZero() {
		return false
	}
	if t.ConversationID.IsZero() {
		t.ConversationID = conversationID
	}
	if !s.tickets.Has(t.ID) {
		s.tickets.Upsert(t, nil)
		s.tickets.IndexUnderParent(conversationID, t.ID)
		if autoSelect {
			s.selectedTicket = t.ID
		}
		return true
	}
	if autoSelect && s.selectedTicket.IsZero() {
		s.selectedTicket = t.ID
		return true
	}
	return false
}

// UpsertTicket merges a fetched ticket and indexes it under its conversation.
func (s *Store) UpsertTicket(t domain.Ticket) {
	if t.ID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		s.tickets.Upsert(t, nil)
		s.tickets.IndexUnderParent(t.ConversationID, t.ID)
		return []Change{{Kind: ChangeTickets, ID: t.ID}}
	})
}

// ReplaceConversationTickets stores the tickets fetched for one
// conversation and replaces that conversation's index entry.
func (s *Store) ReplaceConversationTickets(conversationID domain.ID, tickets []domain.Ticket) {
	if conversationID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		ids := make([]domain.ID, 0, len(tickets))
		for _, t := range tickets {
			if t.ID.IsZero() {
				continue
			}
			if t.ConversationID.IsZero() {
				t.ConversationID = conversationID
			}
			s.tickets.Upsert(t, nil)
			ids = append(ids, t.ID)
		}
		s.tickets.SetChildren(conversationID, ids)
		return []Change{{Kind: ChangeTickets, ID: conversationID}}
	})
}

// AddCreatedTicket stores a newly created ticket and selects it.
func (s *Store) AddCreatedTicket(t domain.Ticket) {
	s.storeAndSelectTicket(t)
}

// ApplyFetchedTicket stores a ticket looked up by id or number and selects it.
func (s *Store) ApplyFetchedTicket(t domain.Ticket) {
	s.storeAndSelectTicket(t)
}

func (s *Store) storeAndSelectTicket(t domain.Ticket) {
	if t.ID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		s.tickets.Upsert(t, nil)
		s.tickets.IndexUnderParent(t.ConversationID, t.ID)
		s.selectedTicket = t.ID
		return []Change{{Kind: ChangeTickets, ID: t.ID}, {Kind: ChangeSelection, ID: t.ID}}
	})
}

// ApplyTicketStatusChange patches the status. Non-empty notes are appended
// to agent_notes on their own line; existing notes are never replaced.
func (s *Store) ApplyTicketStatusChange(id domain.ID, status, notes string) {
	s.patchTicket(id, func(t *domain.Ticket) {
		t.Status = status
		t.AgentNotes = domain.AppendNote(t.AgentNotes, notes)
		t.UpdatedAt = domain.NewTimestamp(time.Now())
	})
}

// ApplyTicketPriorityChange patches the priority.
func (s *Store) ApplyTicketPriorityChange(id domain.ID, priority string) {
	s.patchTicket(id, func(t *domain.Ticket) {
		t.Priority = priority
		t.UpdatedAt = domain.NewTimestamp(time.Now())
	})
}

// ApplyTicketUpdate patches the fields set in u. Agent notes append.
func (s *Store) ApplyTicketUpdate(id domain.ID, u domain.TicketUpdate) {
	s.patchTicket(id, func(t *domain.Ticket) {
		if u.Status != nil {
			t.Status = *u.Status
		}
		if u.Priority != nil {
			t.Priority = *u.Priority
		}
		if u.Title != nil {
			t.Title = *u.Title
		}
		if u.Resolution != nil {
			t.Resolution = *u.Resolution
		}
		if u.AgentNotes != nil {
			t.AgentNotes = domain.AppendNote(t.AgentNotes, *u.AgentNotes)
		}
		t.UpdatedAt = domain.NewTimestamp(time.Now())
	})
}

// ApplyTicketResolved marks the ticket RESOLVED with a resolution text.
func (s *Store) ApplyTicketResolved(id domain.ID, resolution string, at time.Time) {
	s.patchTicket(id, func(t *domain.Ticket) {
		t.Status = domain.TicketResolved
		t.Resolution = resolution
		t.ResolvedAt = domain.NewTimestamp(at)
	})
}

// ApplyTicketClosed closes the ticket. An empty status means CLOSED.
func (s *Store) ApplyTicketClosed(id domain.ID, status string, at time.Time) {
	if status == "" {
		status = domain.TicketClosed
	}
	s.patchTicket(id, func(t *domain.Ticket) {
		t.Status = status
		t.ResolvedAt = domain.NewTimestamp(at)
	})
}

// ApplyTicketReopened reopens the ticket and clears resolved_at. An empty
// status means REOPENED.
func (s *Store) ApplyTicketReopened(id domain.ID, status string, at time.Time) {
	if status == "" {
		status = domain.TicketReopened
	}
	s.patchTicket(id, func(t *domain.Ticket) {
		t.Status = status
		t.ReopenedAt = domain.NewTimestamp(at)
		t.ResolvedAt = domain.Timestamp{}
	})
}

func (s *Store) patchTicket(id domain.ID, fn func(*domain.Ticket)) {
	s.mutate(func() []Change {
		if !s.tickets.Update(id, fn) {
			return nil
		}
		return []Change{{Kind: ChangeTickets, ID: id}}
	})
}

// SelectTicket sets the selected ticket.
func (s *Store) SelectTicket(id domain.ID) {
	s.mutate(func() []Change {
		s.selectedTicket = id
		return []Change{{Kind: ChangeSelection, ID: id}}
	})
}

// ClearSelectedTicket drops the ticket selection.
func (s *Store) ClearSelectedTicket() {
	s.SelectTicket("")
}

// Ticket returns one ticket by id.
func (s *Store) Ticket(id domain.ID) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickets.Get(id)
}

// SelectedTicket returns the selected ticket, if any.
func (s *Store) SelectedTicket() (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedTicket.IsZero() {
		return domain.Ticket{}, false
	}
	return s.tickets.Get(s.selectedTicket)
}

// TicketsByConversation resolves the tickets indexed under a conversation.
func (s *Store) TicketsByConversation(conversationID domain.ID) []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickets.Children(conversationID)
}

// TicketIDs returns the ordered ticket id list.
func (s *Store) TicketIDs() []domain.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickets.IDs()
}
