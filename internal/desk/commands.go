package desk

import (
	"context"
	"strings"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/state"
)

// FetchConversations replaces the list with the backend's view under the
// current filters and returns the filtered result.
func (d *Desk) FetchConversations(ctx context.Context) ([]domain.Conversation, error) {
	f := d.store.Filters()
	list, err := d.api.ListConversations(ctx, f)
	if err != nil {
		return nil, err
	}
	d.store.ReplaceConversations(list)
	if d.opts.Snapshots != nil {
		if err := d.opts.Snapshots.SaveConversations(d.store.Conversations()); err != nil {
			d.log.Warn().Err(err).Msg("saving conversation snapshot failed")
		}
	}
	d.log.Debug().Int("count", len(list)).Msg("conversations fetched")
	return d.store.FilteredConversations(f), nil
}

// ApplyFilters stores f and fetches the list under it.
func (d *Desk) ApplyFilters(ctx context.Context, f domain.ConversationFilters) ([]domain.Conversation, error) {
	d.store.SetFilters(f)
	return d.FetchConversations(ctx)
}

// OpenConversation loads a conversation with its history, tickets and
// issues, selects it and joins its room. Ticket and issue fetch failures
// are logged; the conversation stays open.
func (d *Desk) OpenConversation(ctx context.Context, id domain.ID) (domain.ConversationDetails, error) {
	prev := d.store.SelectedConversationID()
	details, err := d.api.GetConversation(ctx, id)
	if err != nil {
		return details, err
	}
	if details.Conversation.ID.IsZero() {
		details.Conversation.ID = id
	}
	if prev != id {
		d.leave(prev)
	}
	if _, err := d.MarkSeen(ctx, id); err != nil {
		d.log.Warn().Err(err).Str("conversation", id.String()).Msg("marking seen failed")
	}
	d.store.MergeConversationDetails(details)
	d.archive(details.Messages...)

	if tickets, err := d.api.ListTickets(ctx, id); err != nil {
		d.log.Warn().Err(err).Str("conversation", id.String()).Msg("fetching tickets failed")
	} else {
		d.store.ReplaceConversationTickets(id, tickets)
	}
	if issues, err := d.api.ListIssues(ctx, id); err != nil {
		d.log.Warn().Err(err).Str("conversation", id.String()).Msg("fetching issues failed")
	} else {
		d.store.ReplaceConversationIssues(id, issues)
	}

	d.join(id)
	return details, nil
}

// CloseConversation leaves the selected conversation's room and clears the
// selection.
func (d *Desk) CloseConversation() {
	id := d.store.SelectedConversationID()
	if id.IsZero() {
		return
	}
	d.leave(id)
	d.store.ClearSelectedConversation()
}

// SendMessage sends content with the pending attachments into the selected
// conversation. Sending is refused while an upload runs. On failure the
// store and pending attachments are left as they were.
func (d *Desk) SendMessage(ctx context.Context, content string, issueID domain.ID) (domain.Message, error) {
	id := d.store.SelectedConversationID()
	if id.IsZero() {
		return domain.Message{}, ErrNoConversation
	}
	if uploading, _ := d.store.Uploading(); uploading {
		return domain.Message{}, state.ErrUploadInProgress
	}
	attachments := d.store.PendingAttachmentIDs()
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return domain.Message{}, ErrEmptyMessage
	}

	msg, err := d.api.SendMessage(ctx, id, domain.OutgoingMessage{
		Content:     content,
		Attachments: attachments,
		IssueID:     issueID,
	})
	if err != nil {
		return msg, err
	}
	d.store.ApplyIncomingMessage(msg)
	d.store.ClearPendingAttachments()
	d.archive(msg)
	if !issueID.IsZero() && !msg.ID.IsZero() {
		d.store.AttachMessageToIssue(issueID, msg.ID)
	}
	return msg, nil
}

// UpdateConversationStatus validates status, sends it and applies the
// result.
func (d *Desk) UpdateConversationStatus(ctx context.Context, id domain.ID, status domain.ConversationStatus) error {
	if err := state.ValidateConversationStatus(status); err != nil {
		return err
	}
	res, err := d.api.UpdateConversationStatus(ctx, id, status)
	if err != nil {
		return err
	}
	if !res.Status.Valid() {
		res.Status = status
	}
	return d.store.ApplyConversationStatusChange(res.ID, res.Status)
}

// AssignConversation assigns a conversation to an agent.
func (d *Desk) AssignConversation(ctx context.Context, id, agentID domain.ID) error {
	res, err := d.api.AssignConversation(ctx, id, agentID)
	if err != nil {
		return err
	}
	d.store.ApplyAssignment(res)
	return nil
}

// UploadAttachment uploads a file and adds it to the pending attachments.
// Only one upload runs at a time.
func (d *Desk) UploadAttachment(ctx context.Context, name string, data []byte) (domain.Attachment, error) {
	if uploading, _ := d.store.Uploading(); uploading {
		return domain.Attachment{}, state.ErrUploadInProgress
	}
	d.store.BeginUpload()
	defer d.store.EndUpload()

	att, err := d.api.UploadAttachment(ctx, name, data, d.store.SetUploadProgress)
	if err != nil {
		return att, err
	}
	d.store.AddPendingAttachment(att)
	return att, nil
}

// MarkSeen tells the backend every message of id was seen and clears the
// local unread count.
func (d *Desk) MarkSeen(ctx context.Context, id domain.ID) (domain.SeenResult, error) {
	res, err := d.api.MarkSeen(ctx, id)
	if err != nil {
		return res, err
	}
	d.store.MarkConversationRead(id)
	return res, nil
}
