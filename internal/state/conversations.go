package state

import (
	"fmt"
	"slices"
	"sort"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Applied reports what ApplyIncomingMessage did with a message.
type Applied struct {
	Duplicate         bool
	Appended          bool
	KnownConversation bool
	Reactivated       bool
	PreviousStatus    domain.ConversationStatus
	UnreadCount       int
}

// ApplyIncomingMessage records a message against its conversation. It is
// used both for pushed messages and for the result of a local send.
//
// A message id that was already applied is ignored entirely.
func (s *Store) ApplyIncomingMessage(msg domain.Message) Applied {
	var res Applied
	if msg.ID.IsZero() || msg.ConversationID.IsZero() {
		s.log.Warn().Str("message", msg.ID.String()).Msg("ignoring message without id or conversation")
		return res
	}

	s.mutate(func() []Change {
		if s.seen.has(msg.ID) {
			res.Duplicate = true
			return nil
		}
		s.seen.add(msg.ID)

		var changes []Change
		selected := msg.ConversationID == s.selectedConversation
		if selected {
			if _, dup := s.messageIdx[msg.ID]; !dup {
				s.appendMessage(msg)
				res.Appended = true
				changes = append(changes, Change{Kind: ChangeMessages, ID: msg.ConversationID})
			}
		}

		res.KnownConversation = s.conversations.Update(msg.ConversationID, func(c *domain.Conversation) {
			snap := msg.Snapshot()
			c.LastMessage = &snap
			c.LastActivity = msg.CreatedAt
			res.PreviousStatus = c.Status
			if c.Status.Reactivates() {
				c.Status = domain.ConversationActive
				res.Reactivated = true
			}
			if msg.FromCustomer() && !selected {
				c.UnreadCount = max(c.UnreadCount, s.unread.counts[c.ID]) + 1
				s.unread.counts[c.ID] = c.UnreadCount
				c.HasUnseenMessages = true
				s.unread.unreadMessageIDs[c.ID] = append(s.unread.unreadMessageIDs[c.ID], msg.ID)
			}
			res.UnreadCount = c.UnreadCount
		})
		if res.KnownConversation {
			changes = append(changes, Change{Kind: ChangeConversations, ID: msg.ConversationID})
			if msg.FromCustomer() && !selected {
				changes = append(changes, Change{Kind: ChangeUnread, ID: msg.ConversationID})
			}
		}
		return changes
	})

	if res.Reactivated {
		s.log.Debug().
			Str("conversation", msg.ConversationID.String()).
			Str("from", string(res.PreviousStatus)).
			Msg("conversation reactivated")
	}
	return res
}

// appendMessage adds msg to the live sequence. Callers hold the lock.
func (s *Store) appendMessage(msg domain.Message) {
	s.messageIdx[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	s.seen.add(msg.ID)
}

// ValidateConversationStatus returns ErrInvalidStatus for anything outside
// the lifecycle statuses.
func ValidateConversationStatus(status domain.ConversationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return nil
}

// ApplyConversationStatusChange patches the status of one conversation.
func (s *Store) ApplyConversationStatusChange(id domain.ID, status domain.ConversationStatus) error {
	if err := ValidateConversationStatus(status); err != nil {
		return err
	}
	s.mutate(func() []Change {
		if !s.conversations.Update(id, func(c *domain.Conversation) { c.Status = status }) {
			return nil
		}
		return []Change{{Kind: ChangeConversations, ID: id}}
	})
	return nil
}

// ApplyAssignment patches the assignee and, when given, the history.
func (s *Store) ApplyAssignment(a domain.Assignment) {
	s.mutate(func() []Change {
		ok := s.conversations.Update(a.ID, func(c *domain.Conversation) {
			c.AssigneeID = a.AssigneeID
			if a.AssignmentHistory != nil {
				c.AssignmentHistory = slices.Clone(a.AssignmentHistory)
			}
		})
		if !ok {
			return nil
		}
		return []Change{{Kind: ChangeConversations, ID: a.ID}}
	})
}

// ReplaceConversations swaps in a freshly fetched list. Locally tracked
// positive unread counts survive the replacement, and embedded tickets are
// reconciled into the ticket store without changing the selection.
func (s *Store) ReplaceConversations(list []domain.Conversation) {
	s.mutate(func() []Change {
		prev := make(map[domain.ID]int)
		for _, c := range s.conversations.All() {
			if c.UnreadCount > 0 {
				prev[c.ID] = c.UnreadCount
			}
		}

		fresh := make([]domain.Conversation, 0, len(list))
		for _, c := range list {
			if n, ok := prev[c.ID]; ok && c.UnreadCount <= 0 {
				c.UnreadCount = n
			}
			fresh = append(fresh, c)
		}
		s.conversations.ReplaceAll(fresh)

		changes := []Change{{Kind: ChangeConversations}}
		for _, c := range fresh {
			if c.Ticket != nil && s.reconcileTicket(c.ID, *c.Ticket, false) {
				changes = append(changes, Change{Kind: ChangeTickets, ID: c.Ticket.ID})
			}
		}
		return changes
	})
}

// MergeConversationDetails applies a detail fetch: the conversation is
// merged into the store and its history becomes the live sequence.
func (s *Store) MergeConversationDetails(details domain.ConversationDetails) {
	conv := details.Conversation
	if conv.ID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		conv.UnreadCount = 0
		conv.HasUnseenMessages = false
		s.conversations.Upsert(conv, mergeConversation)

		history := slices.Clone(details.Messages)
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].CreatedAt.Before(history[j].CreatedAt.Time)
		})
		s.messages = nil
		s.messageIdx = make(map[domain.ID]int, len(history))
		for _, m := range history {
			if m.ID.IsZero() {
				continue
			}
			if _, dup := s.messageIdx[m.ID]; dup {
				continue
			}
			s.appendMessage(m)
		}
		s.selectedConversation = conv.ID
		s.unread.clear(conv.ID)
		s.pending = nil

		changes := []Change{
			{Kind: ChangeConversations, ID: conv.ID},
			{Kind: ChangeMessages, ID: conv.ID},
			{Kind: ChangeAttachments},
		}
		changes = append(changes, s.dropForeignSelectionLocked(conv.ID)...)
		if conv.Ticket != nil && s.reconcileTicket(conv.ID, *conv.Ticket, true) {
			changes = append(changes, Change{Kind: ChangeTickets, ID: conv.Ticket.ID})
		}
		return changes
	})
}

// dropForeignSelectionLocked clears the selected ticket and issue when they
// belong to a conversation other than id.
func (s *Store) dropForeignSelectionLocked(id domain.ID) []Change {
	var changes []Change
	if !s.selectedTicket.IsZero() {
		if t, ok := s.tickets.Get(s.selectedTicket); !ok || t.ConversationID != id {
			s.selectedTicket = ""
			changes = append(changes, Change{Kind: ChangeSelection})
		}
	}
	if !s.selectedIssue.IsZero() {
		if i, ok := s.issues.Get(s.selectedIssue); !ok || i.ConversationID != id {
			s.selectedIssue = ""
			changes = append(changes, Change{Kind: ChangeSelection})
		}
	}
	return changes
}

// mergeConversation patches existing with the non-empty fields of incoming.
func mergeConversation(existing, incoming domain.Conversation) domain.Conversation {
	out := existing
	if incoming.CustomerName != "" {
		out.CustomerName = incoming.CustomerName
	}
	if incoming.PhoneNumber != "" {
		out.PhoneNumber = incoming.PhoneNumber
	}
	if incoming.Status != "" {
		out.Status = incoming.Status
	}
	if !incoming.AssigneeID.IsZero() {
		out.AssigneeID = incoming.AssigneeID
	}
	if incoming.AssignmentHistory != nil {
		out.AssignmentHistory = incoming.AssignmentHistory
	}
	if !incoming.CreatedAt.IsZero() {
		out.CreatedAt = incoming.CreatedAt
	}
	if !incoming.LastActivity.IsZero() {
		out.LastActivity = incoming.LastActivity
	}
	if incoming.LastMessage != nil {
		out.LastMessage = incoming.LastMessage
	}
	if incoming.Ticket != nil {
		out.Ticket = incoming.Ticket
	}
	if incoming.Metadata != nil {
		out.Metadata = incoming.Metadata
	}
	if incoming.Tags != nil {
		out.Tags = incoming.Tags
	}
	out.UnreadCount = incoming.UnreadCount
	out.HasUnseenMessages = incoming.HasUnseenMessages
	out.OpenIssueCount = incoming.OpenIssueCount
	return out
}

// SelectConversation marks id as the open conversation and zeroes its
// unread count. Switching to another conversation drops the live sequence.
func (s *Store) SelectConversation(id domain.ID) {
	if id.IsZero() {
		return
	}
	s.mutate(func() []Change {
		changes := []Change{{Kind: ChangeSelection, ID: id}}
		if s.selectedConversation != id {
			s.messages = nil
			s.messageIdx = make(map[domain.ID]int)
			changes = append(changes, Change{Kind: ChangeMessages, ID: id})
		}
		s.selectedConversation = id
		s.conversations.Update(id, func(c *domain.Conversation) {
			c.UnreadCount = 0
		})
		s.unread.counts[id] = 0
		return append(changes, Change{Kind: ChangeUnread, ID: id})
	})
}

// ClearSelectedConversation closes the open conversation and drops its
// messages.
func (s *Store) ClearSelectedConversation() {
	s.mutate(func() []Change {
		prev := s.selectedConversation
		s.selectedConversation = ""
		s.messages = nil
		s.messageIdx = make(map[domain.ID]int)
		return []Change{{Kind: ChangeSelection}, {Kind: ChangeMessages, ID: prev}}
	})
}

// SelectedConversationID returns the open conversation, if any.
func (s *Store) SelectedConversationID() domain.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedConversation
}

// Conversation returns one conversation by id.
func (s *Store) Conversation(id domain.ID) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations.Get(id)
}

// Conversations returns all listed conversations in list order.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations.All()
}

// FilteredConversations applies f to the listed conversations. The open
// issue count is taken from the issue store when it knows the conversation.
func (s *Store) FilteredConversations(f domain.ConversationFilters) []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Conversation
	for _, c := range s.conversations.All() {
		if ids := s.issues.ChildIDs(c.ID); len(ids) > 0 {
			c.OpenIssueCount = s.openIssueCount(c.ID)
		}
		if f.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

// SetFilters stores the active list filters.
func (s *Store) SetFilters(f domain.ConversationFilters) {
	s.mutate(func() []Change {
		s.filters = f
		return []Change{{Kind: ChangeFilters}}
	})
}

// ClearFilters resets the active list filters.
func (s *Store) ClearFilters() {
	s.SetFilters(domain.ConversationFilters{})
}

// Filters returns the active list filters.
func (s *Store) Filters() domain.ConversationFilters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// Messages returns the live sequence of the open conversation.
func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}
