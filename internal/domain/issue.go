package domain

import (
	"math"
	"slices"
)

// IssueStatus is the state of an issue.
type IssueStatus string

const (
	IssueOpen            IssueStatus = "OPEN"
	IssueInProgress      IssueStatus = "IN_PROGRESS"
	IssueWaitingCustomer IssueStatus = "WAITING_CUSTOMER"
	IssueResolved        IssueStatus = "RESOLVED"
	IssueReopened        IssueStatus = "REOPENED"
)

// IsOpen reports whether the issue still needs work.
func (s IssueStatus) IsOpen() bool {
	switch s {
	case IssueOpen, IssueInProgress, IssueWaitingCustomer, IssueReopened:
		return true
	}
	return false
}

// Issue is an internal sub-case tracked within a conversation.
type Issue struct {
	ID                ID          `json:"id"`
	ConversationID    ID          `json:"conversation_id"`
	Title             string      `json:"title"`
	Description       string      `json:"description,omitempty"`
	Status            IssueStatus `json:"status"`
	Priority          string      `json:"priority,omitempty"`
	Category          string      `json:"category,omitempty"`
	AssignedAgent     ID          `json:"assigned_agent,omitempty"`
	CreatedAt         Timestamp   `json:"created_at"`
	UpdatedAt         Timestamp   `json:"updated_at"`
	ClosedAt          Timestamp   `json:"closed_at"`
	ResolutionSummary string      `json:"resolution_summary,omitempty"`
	ResolutionTime    *int        `json:"resolution_time,omitempty"`
	ReopenReason      string      `json:"reopen_reason,omitempty"`
	AttachedMessages  []ID        `json:"attached_messages,omitempty"`
}

// ComputeResolutionTime returns closed_at minus created_at in whole
// minutes, rounded. ok is false when either timestamp is missing.
func (i Issue) ComputeResolutionTime() (minutes int, ok bool) {
	if i.CreatedAt.IsZero() || i.ClosedAt.IsZero() {
		return 0, false
	}
	d := i.ClosedAt.Sub(i.CreatedAt.Time)
	return int(math.Round(d.Minutes())), true
}

// HasMessage reports whether messageID is attached to the issue.
func (i Issue) HasMessage(messageID ID) bool {
	return slices.Contains(i.AttachedMessages, messageID)
}

// IssueDraft holds the fields for creating an issue.
type IssueDraft struct {
	ConversationID ID     `json:"conversation_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Priority       string `json:"priority,omitempty"`
	Category       string `json:"category,omitempty"`
	AssignedAgent  ID     `json:"assigned_agent,omitempty"`
	MessageIDs     []ID   `json:"message_ids,omitempty"`
}

// IssueResolution is the outcome recorded when resolving an issue.
type IssueResolution struct {
	Summary string `json:"summary"`
}

// IssueUpdate carries the fields of an issue edit; nil fields are left alone.
type IssueUpdate struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Status      *IssueStatus `json:"status,omitempty"`
	Priority    *string      `json:"priority,omitempty"`
	Category    *string      `json:"category,omitempty"`
}
