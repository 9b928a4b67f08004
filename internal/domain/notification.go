package domain

// Notification kinds and importance levels.
const (
	NotificationMessage = "message"
	NotificationHandoff = "handoff"
	NotificationTicket  = "ticket"
	NotificationSystem  = "system"

	ImportanceLow    = "low"
	ImportanceMedium = "medium"
	ImportanceHigh   = "high"
)

// Notification is a client-only toast/badge item.
type Notification struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	ConversationID ID             `json:"conversationId,omitempty"`
	TicketID       ID             `json:"ticketId,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Importance     string         `json:"importance"`
	Timestamp      Timestamp      `json:"timestamp"`
	Read           bool           `json:"read"`
	AutoClose      bool           `json:"autoClose"`
}

// UnreadStats is the server's unread-message summary.
type UnreadStats struct {
	TotalUnreadMessages      int        `json:"total_unread_messages"`
	ConversationsWithUnread  []ID       `json:"conversations_with_unread"`
	ConversationUnreadCounts map[ID]int `json:"conversation_unread_counts"`
}

// SeenResult is the outcome of marking a conversation as seen.
type SeenResult struct {
	ConversationID ID  `json:"conversation_id"`
	UpdatedCount   int `json:"updated_count"`
}

// Agent is the signed-in support agent.
type Agent struct {
	ID       ID     `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
}
