package domain

import "strings"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationResolved ConversationStatus = "RESOLVED"
	ConversationDormant  ConversationStatus = "DORMANT"
	ConversationArchived ConversationStatus = "ARCHIVED"

	// Filter-only values. They never appear as a stored status.
	ConversationTransferred ConversationStatus = "TRANSFERRED"
	ConversationClosed      ConversationStatus = "CLOSED"
)

// ConversationStatuses lists the statuses a conversation can be set to.
var ConversationStatuses = []ConversationStatus{
	ConversationActive,
	ConversationResolved,
	ConversationDormant,
	ConversationArchived,
}

// Valid reports whether s is a lifecycle status a conversation can hold.
func (s ConversationStatus) Valid() bool {
	for _, v := range ConversationStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Reactivates reports whether a new message moves a conversation in this
// status back to ACTIVE.
func (s ConversationStatus) Reactivates() bool {
	return s == ConversationResolved || s == ConversationDormant
}

// Conversation is one customer's WhatsApp thread.
type Conversation struct {
	ID                ID                 `json:"id"`
	CustomerName      string             `json:"customer_name,omitempty"`
	PhoneNumber       string             `json:"phone_number,omitempty"`
	Status            ConversationStatus `json:"status"`
	AssigneeID        ID                 `json:"assignee_id,omitempty"`
	AssignmentHistory []AssignmentEntry  `json:"assignment_history,omitempty"`
	CreatedAt         Timestamp          `json:"created_at"`
	LastActivity      Timestamp          `json:"last_activity"`
	LastMessage       *LastMessage       `json:"lastMessage,omitempty"`
	UnreadCount       int                `json:"unread_count"`
	HasUnseenMessages bool               `json:"has_unseen_messages,omitempty"`
	OpenIssueCount    int                `json:"openIssueCount,omitempty"`
	Ticket            *Ticket            `json:"ticket,omitempty"`
	Metadata          *ConversationMeta  `json:"metadata,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
}

// LastMessage is the denormalized snapshot of the most recent message.
type LastMessage struct {
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
	Direction Direction `json:"direction,omitempty"`
	Source    Source    `json:"source,omitempty"`
}

// ConversationMeta carries optional customer account details.
type ConversationMeta struct {
	CustomerID  string `json:"customer_id,omitempty"`
	AccountType string `json:"account_type,omitempty"`
}

// AssignmentEntry records one assignment of a conversation to an agent.
type AssignmentEntry struct {
	AgentID   ID        `json:"agent_id"`
	Timestamp Timestamp `json:"timestamp"`
}

// Assignment is the result of assigning a conversation.
type Assignment struct {
	ID                ID                `json:"id"`
	AssigneeID        ID                `json:"assignee_id"`
	AssignmentHistory []AssignmentEntry `json:"assignment_history,omitempty"`
}

// StatusChange is the result of a conversation status update.
type StatusChange struct {
	ID     ID                 `json:"id"`
	Status ConversationStatus `json:"status"`
}

// ConversationDetails is a conversation with its full message history.
type ConversationDetails struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}

// ConversationFilters narrows a conversation list. Zero values match all.
type ConversationFilters struct {
	Status        ConversationStatus `json:"status,omitempty"`
	AssignedTo    ID                 `json:"assignedTo,omitempty"`
	HasOpenIssues bool               `json:"hasOpenIssues,omitempty"`
	SearchTerm    string             `json:"searchTerm,omitempty"`
}

// Match reports whether c passes the filters. Name and last message are
// searched case-insensitively; the phone number is matched as typed.
func (f ConversationFilters) Match(c Conversation) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && c.AssigneeID != f.AssignedTo {
		return false
	}
	if f.HasOpenIssues && c.OpenIssueCount <= 0 {
		return false
	}
	if f.SearchTerm != "" {
		lower := strings.ToLower(f.SearchTerm)
		name := strings.Contains(strings.ToLower(c.CustomerName), lower)
		phone := strings.Contains(c.PhoneNumber, f.SearchTerm)
		last := c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), lower)
		if !name && !phone && !last {
			return false
		}
	}
	return true
}
