package state

import (
	"maps"
	"slices"

	"github.com/soyeahso/agentdesk/internal/domain"
)

type unreadState struct {
	total            int
	withUnread       []domain.ID
	counts           map[domain.ID]int
	unreadMessageIDs map[domain.ID][]domain.ID
}

func newUnreadState() unreadState {
	return unreadState{
		counts:           make(map[domain.ID]int),
		unreadMessageIDs: make(map[domain.ID][]domain.ID),
	}
}

// clear zeroes the local bookkeeping of one conversation. The server total
// is left for the next stats fetch.
func (u *unreadState) clear(id domain.ID) {
	u.counts[id] = 0
	delete(u.unreadMessageIDs, id)
}

// UnreadSnapshot is a copy of the unread bookkeeping.
type UnreadSnapshot struct {
	Total                   int               `json:"total"`
	ConversationsWithUnread []domain.ID       `json:"conversationsWithUnread"`
	Counts                  map[domain.ID]int `json:"counts"`
	Notifications           int               `json:"notifications"`
}

// Badge is the single visible count: unread messages plus unread
// notifications.
func (u UnreadSnapshot) Badge() int {
	return u.Total + u.Notifications
}

// ApplyUnreadStats replaces the unread bookkeeping with a server snapshot
// and writes the per-conversation counts onto the conversations.
func (s *Store) ApplyUnreadStats(stats domain.UnreadStats) {
	s.mutate(func() []Change {
		s.unread.total = stats.TotalUnreadMessages
		s.unread.withUnread = slices.Clone(stats.ConversationsWithUnread)
		s.unread.counts = make(map[domain.ID]int, len(stats.ConversationUnreadCounts))
		maps.Copy(s.unread.counts, stats.ConversationUnreadCounts)

		for id, n := range stats.ConversationUnreadCounts {
			s.conversations.Update(id, func(c *domain.Conversation) {
				c.UnreadCount = n
				c.HasUnseenMessages = n > 0
			})
		}
		return []Change{{Kind: ChangeUnread}, {Kind: ChangeConversations}}
	})
}

// MarkConversationRead clears the unread state of one conversation and
// takes its previous count off the total.
func (s *Store) MarkConversationRead(id domain.ID) {
	if id.IsZero() {
		return
	}
	s.mutate(func() []Change {
		prev := s.unread.counts[id]
		s.conversations.Update(id, func(c *domain.Conversation) {
			if prev == 0 {
				prev = c.UnreadCount
			}
			c.UnreadCount = 0
			c.HasUnseenMessages = false
		})
		s.unread.clear(id)
		s.unread.total = max(0, s.unread.total-prev)
		s.unread.withUnread = slices.DeleteFunc(s.unread.withUnread, func(x domain.ID) bool { return x == id })
		return []Change{{Kind: ChangeUnread, ID: id}, {Kind: ChangeConversations, ID: id}}
	})
}

// MarkMessagesUnread flags messageIDs of a conversation as unread again.
func (s *Store) MarkMessagesUnread(id domain.ID, messageIDs []domain.ID) {
	if id.IsZero() || len(messageIDs) == 0 {
		return
	}
	s.mutate(func() []Change {
		uniq := make([]domain.ID, 0, len(messageIDs))
		for _, m := range messageIDs {
			if !m.IsZero() && !slices.Contains(uniq, m) {
				uniq = append(uniq, m)
			}
		}
		s.unread.unreadMessageIDs[id] = uniq
		s.unread.counts[id] = len(uniq)
		if !slices.Contains(s.unread.withUnread, id) {
			s.unread.withUnread = append(s.unread.withUnread, id)
		}
		total := 0
		for _, n := range s.unread.counts {
			total += n
		}
		s.unread.total = total

		s.conversations.Update(id, func(c *domain.Conversation) {
			c.UnreadCount = len(uniq)
			c.HasUnseenMessages = true
		})
		return []Change{{Kind: ChangeUnread, ID: id}, {Kind: ChangeConversations, ID: id}}
	})
}

// UnreadCount returns the local unread count of one conversation.
func (s *Store) UnreadCount(id domain.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread.counts[id]
}

// UnreadMessageIDs returns the messages flagged unread in one conversation.
func (s *Store) UnreadMessageIDs(id domain.ID) []domain.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.unread.unreadMessageIDs[id])
}

// Unread returns a copy of the unread bookkeeping.
func (s *Store) Unread() UnreadSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return UnreadSnapshot{
		Total:                   s.unread.total,
		ConversationsWithUnread: slices.Clone(s.unread.withUnread),
		Counts:                  maps.Clone(s.unread.counts),
		Notifications:           s.unreadNotifications(),
	}
}

// TotalUnread is the badge total: server unread messages plus unread
// notifications.
func (s *Store) TotalUnread() int {
	return s.Unread().Badge()
}
