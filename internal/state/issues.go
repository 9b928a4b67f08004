package state

import (
	"slices"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// ReplaceConversationIssues stores the issues fetched for one conversation
// and replaces that conversation's index entry.
func (s *Store) ReplaceConversationIssues(conversationID domain.ID, issues []domain.Issue) {
	if conversationID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		ids := make([]domain.ID, 0, len(issues))
		for _, i := range issues {
			if i.ID.IsZero() {
				continue
			}
			if i.ConversationID.IsZero() {
				i.ConversationID = conversationID
			}
			s.issues.Upsert(i, nil)
			ids = append(ids, i.ID)
		}
		s.issues.SetChildren(conversationID, ids)
		s.syncOpenIssueCount(conversationID)
		return []Change{{Kind: ChangeIssues, ID: conversationID}}
	})
}

// UpsertIssue stores one fetched or updated issue.
func (s *Store) UpsertIssue(i domain.Issue) {
	if i.ID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		s.issues.Upsert(i, nil)
		s.issues.IndexUnderParent(i.ConversationID, i.ID)
		s.syncOpenIssueCount(i.ConversationID)
		return []Change{{Kind: ChangeIssues, ID: i.ID}}
	})
}

// AddCreatedIssue stores a newly created issue and selects it.
func (s *Store) AddCreatedIssue(i domain.Issue) {
	if i.ID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		s.issues.Upsert(i, nil)
		s.issues.IndexUnderParent(i.ConversationID, i.ID)
		s.selectedIssue = i.ID
		s.syncOpenIssueCount(i.ConversationID)
		return []Change{{Kind: ChangeIssues, ID: i.ID}, {Kind: ChangeSelection, ID: i.ID}}
	})
}

// ApplyIssueResolved stores the resolved issue. When the server did not
// report a resolution time it is computed from created_at and closed_at.
func (s *Store) ApplyIssueResolved(i domain.Issue, at time.Time) {
	if i.ID.IsZero() {
		return
	}
	i.Status = domain.IssueResolved
	if i.ClosedAt.IsZero() {
		i.ClosedAt = domain.NewTimestamp(at)
	}
	if i.ResolutionTime == nil {
		if minutes, ok := i.ComputeResolutionTime(); ok {
			i.ResolutionTime = &minutes
		}
	}
	s.UpsertIssue(i)
}

// CanReopenIssue returns ErrIssueNotResolved unless the issue is RESOLVED.
func (s *Store) CanReopenIssue(id domain.ID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.issues.Get(id)
	if !ok || i.Status != domain.IssueResolved {
		return ErrIssueNotResolved
	}
	return nil
}

// ApplyIssueReopened marks the issue REOPENED and clears closed_at.
func (s *Store) ApplyIssueReopened(id domain.ID, reason string) {
	s.mutate(func() []Change {
		var conv domain.ID
		ok := s.issues.Update(id, func(i *domain.Issue) {
			i.Status = domain.IssueReopened
			i.ReopenReason = reason
			i.ClosedAt = domain.Timestamp{}
			i.ResolutionTime = nil
			i.UpdatedAt = domain.NewTimestamp(time.Now())
			conv = i.ConversationID
		})
		if !ok {
			return nil
		}
		s.syncOpenIssueCount(conv)
		return []Change{{Kind: ChangeIssues, ID: id}}
	})
}

// AttachMessageToIssue links a message to an issue. It reports whether the
// message was already attached, in which case nothing changes.
func (s *Store) AttachMessageToIssue(issueID, messageID domain.ID) (alreadyAttached bool) {
	s.mutate(func() []Change {
		i, ok := s.issues.Get(issueID)
		if !ok {
			return nil
		}
		if i.HasMessage(messageID) {
			alreadyAttached = true
			return nil
		}
		i.AttachedMessages = append(slices.Clone(i.AttachedMessages), messageID)
		s.issues.Upsert(i, nil)

		changes := []Change{{Kind: ChangeIssues, ID: issueID}}
		if idx, ok := s.messageIdx[messageID]; ok {
			s.messages[idx].IssueID = issueID
			changes = append(changes, Change{Kind: ChangeMessages, ID: s.messages[idx].ConversationID})
		}
		return changes
	})
	return alreadyAttached
}

// SelectIssue sets the selected issue.
func (s *Store) SelectIssue(id domain.ID) {
	s.mutate(func() []Change {
		s.selectedIssue = id
		return []Change{{Kind: ChangeSelection, ID: id}}
	})
}

// SelectedIssue returns the selected issue, if any.
func (s *Store) SelectedIssue() (domain.Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedIssue.IsZero() {
		return domain.Issue{}, false
	}
	return s.issues.Get(s.selectedIssue)
}

// Issue returns one issue by id.
func (s *Store) Issue(id domain.ID) (domain.Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issues.Get(id)
}

// IssuesByConversation resolves the issues indexed under a conversation.
func (s *Store) IssuesByConversation(conversationID domain.ID) []domain.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issues.Children(conversationID)
}

// OpenIssues returns the conversation's issues that are not resolved.
func (s *Store) OpenIssues(conversationID domain.ID) []domain.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Issue
	for _, i := range s.issues.Children(conversationID) {
		if i.Status.IsOpen() {
			out = append(out, i)
		}
	}
	return out
}

func (s *Store) openIssueCount(conversationID domain.ID) int {
	n := 0
	for _, i := range s.issues.Children(conversationID) {
		if i.Status.IsOpen() {
			n++
		}
	}
	return n
}

// syncOpenIssueCount writes the derived count onto the conversation.
func (s *Store) syncOpenIssueCount(conversationID domain.ID) {
	if conversationID.IsZero() {
		return
	}
	n := s.openIssueCount(conversationID)
	s.conversations.Update(conversationID, func(c *domain.Conversation) {
		c.OpenIssueCount = n
	})
}
