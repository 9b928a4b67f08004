package desk

import (
	"context"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// FetchIssues loads the issues of a conversation.
func (d *Desk) FetchIssues(ctx context.Context, conversationID domain.ID) ([]domain.Issue, error) {
	list, err := d.api.ListIssues(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	d.store.ReplaceConversationIssues(conversationID, list)
	return list, nil
}

// FetchIssue loads one issue.
func (d *Desk) FetchIssue(ctx context.Context, id domain.ID) (domain.Issue, error) {
	i, err := d.api.GetIssue(ctx, id)
	if err != nil {
		return i, err
	}
	d.store.UpsertIssue(i)
	return i, nil
}

// CreateIssue opens an issue and selects it.
func (d *Desk) CreateIssue(ctx context.Context, draft domain.IssueDraft) (domain.Issue, error) {
	i, err := d.api.CreateIssue(ctx, draft)
	if err != nil {
		return i, err
	}
	if i.ConversationID.IsZero() {
		i.ConversationID = draft.ConversationID
	}
	d.store.AddCreatedIssue(i)
	return i, nil
}

// UpdateIssue edits an issue.
func (d *Desk) UpdateIssue(ctx context.Context, id domain.ID, u domain.IssueUpdate) (domain.Issue, error) {
	i, err := d.api.UpdateIssue(ctx, id, u)
	if err != nil {
		return i, err
	}
	d.store.UpsertIssue(i)
	return i, nil
}

// ResolveIssue resolves an issue with a summary.
func (d *Desk) ResolveIssue(ctx context.Context, id domain.ID, summary string) (domain.Issue, error) {
	i, err := d.api.ResolveIssue(ctx, id, domain.IssueResolution{Summary: summary})
	if err != nil {
		return i, err
	}
	if i.ID.IsZero() {
		i, _ = d.store.Issue(id)
	}
	if i.ResolutionSummary == "" {
		i.ResolutionSummary = summary
	}
	d.store.ApplyIssueResolved(i, d.now())
	return i, nil
}

// ReopenIssue reopens a resolved issue. Issues in any other status are
// refused without calling the backend.
func (d *Desk) ReopenIssue(ctx context.Context, id domain.ID, reason string) error {
	if err := d.store.CanReopenIssue(id); err != nil {
		return err
	}
	if _, err := d.api.ReopenIssue(ctx, id, reason); err != nil {
		return err
	}
	d.store.ApplyIssueReopened(id, reason)
	return nil
}

// AttachMessage links a message to an issue. A message already attached is
// not sent again.
func (d *Desk) AttachMessage(ctx context.Context, issueID, messageID domain.ID) error {
	if i, ok := d.store.Issue(issueID); ok && i.HasMessage(messageID) {
		return nil
	}
	if _, err := d.api.AttachMessage(ctx, issueID, messageID); err != nil {
		return err
	}
	d.store.AttachMessageToIssue(issueID, messageID)
	return nil
}
