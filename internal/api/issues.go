package api

import (
	"context"
	"net/http"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// ListIssues fetches the issues of one conversation.
func (c *Client) ListIssues(ctx context.Context, conversationID domain.ID) ([]domain.Issue, error) {
	var out []domain.Issue
	err := c.call(ctx, request{method: http.MethodGet, path: "conversations/" + escape(conversationID) + "/issues"}, &out)
	return out, err
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, id domain.ID) (domain.Issue, error) {
	var out domain.Issue
	err := c.call(ctx, request{method: http.MethodGet, path: "issues/" + escape(id)}, &out)
	return out, err
}

// CreateIssue opens an issue inside a conversation.
func (c *Client) CreateIssue(ctx context.Context, draft domain.IssueDraft) (domain.Issue, error) {
	return c.issueCall(ctx, http.MethodPost, "issues", draft)
}

// UpdateIssue edits an issue.
func (c *Client) UpdateIssue(ctx context.Context, id domain.ID, u domain.IssueUpdate) (domain.Issue, error) {
	return c.issueCall(ctx, http.MethodPut, "issues/"+escape(id), u)
}

// ResolveIssue resolves an issue with a summary.
func (c *Client) ResolveIssue(ctx context.Context, id domain.ID, r domain.IssueResolution) (domain.Issue, error) {
	return c.issueCall(ctx, http.MethodPut, "issues/"+escape(id)+"/resolve", r)
}

// ReopenIssue reopens a resolved issue.
func (c *Client) ReopenIssue(ctx context.Context, id domain.ID, reason string) (domain.Issue, error) {
	return c.issueCall(ctx, http.MethodPut, "issues/"+escape(id)+"/reopen", map[string]string{"reason": reason})
}

// AttachMessage links a message to an issue.
func (c *Client) AttachMessage(ctx context.Context, issueID, messageID domain.ID) (domain.Issue, error) {
	return c.issueCall(ctx, http.MethodPost, "issues/"+escape(issueID)+"/messages", map[string]string{"message_id": messageID.String()})
}

func (c *Client) issueCall(ctx context.Context, method, path string, body any) (domain.Issue, error) {
	var out domain.Issue
	req, err := jsonRequest(method, path, body)
	if err != nil {
		return out, err
	}
	err = c.call(ctx, req, &out)
	return out, err
}
